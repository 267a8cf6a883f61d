// Package narrative turns normalized forecasts into short Estonian weather
// narratives, using a generative backend with a deterministic fallback.
package narrative

import (
	"context"
	"errors"
	"time"

	"github.com/toomja/ilm/internal/weather"
)

// Narrative errors.
var (
	// ErrBackendNotConfigured is returned when no generative backend is set.
	ErrBackendNotConfigured = errors.New("narrative backend not configured")

	// ErrEmptyCompletion is returned when the backend produced no text.
	ErrEmptyCompletion = errors.New("narrative backend returned empty text")
)

// FallbackModel is the SourceModel of template-generated narratives.
const FallbackModel = "fallback"

// Record is an immutable generated narrative.
type Record struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	SourceModel string    `json:"sourceModel"`
	TokenCount  *int      `json:"tokenCount"`
	CreatedAt   time.Time `json:"createdAt"`

	// WeatherSnapshot is the current conditions the text was written for.
	WeatherSnapshot weather.CurrentConditions `json:"weatherSnapshot"`
}

// IsFallback reports whether the record came from the template fallback.
func (r *Record) IsFallback() bool {
	return r.SourceModel == FallbackModel
}

// Store persists narratives.
type Store interface {
	InsertNarrative(ctx context.Context, record *Record) error

	// RecentNarratives returns up to limit records, newest first.
	RecentNarratives(ctx context.Context, limit int) ([]Record, error)

	// TrimNarratives keeps the newest keep records and deletes the rest.
	TrimNarratives(ctx context.Context, keep int) (int64, error)
}
