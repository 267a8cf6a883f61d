package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/toomja/ilm/internal/provider/resilience"
	"github.com/toomja/ilm/internal/weather"
)

// Completion is the text returned by a generative backend.
type Completion struct {
	Text  string
	Model string

	// TotalTokens is nil when the backend does not report usage.
	TotalTokens *int
}

// Backend is a chat-completion style text generator. Rate limiting should
// be reported as *resilience.RateLimitError and upstream faults as
// *resilience.ServerError so Generate can pick the backoff.
type Backend interface {
	Complete(ctx context.Context, system, user string) (Completion, error)
}

// DefaultPolicy returns the generation retry envelope: 3 attempts with
// 1s/2s/4s exponential waits, 10s linear steps on 429 and a 60s timeout per
// attempt.
func DefaultPolicy() resilience.Policy {
	return resilience.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		Multiplier:      2,
		RateLimitStep:   10 * time.Second,
		BaseTimeout:     60 * time.Second,
	}
}

// GeneratorConfig holds configuration for the generator.
type GeneratorConfig struct {
	// Backend produces the text (optional). Without it Generate fails with
	// ErrBackendNotConfigured.
	Backend Backend

	// Policy is the retry envelope (optional, defaults to DefaultPolicy).
	Policy *resilience.Policy

	// Clock stamps records and drives backoff waits (optional).
	Clock clockwork.Clock

	// Notify is called before each backoff wait (optional).
	Notify func(attempt int, err error, wait time.Duration)
}

// Generator writes narratives for forecasts.
type Generator struct {
	backend Backend
	policy  resilience.Policy
	clock   clockwork.Clock
	notify  func(attempt int, err error, wait time.Duration)
}

// NewGenerator creates a new narrative generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	policy := DefaultPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Generator{
		backend: cfg.Backend,
		policy:  policy,
		clock:   clock,
		notify:  cfg.Notify,
	}
}

// Configured reports whether a backend is set.
func (g *Generator) Configured() bool {
	return g.backend != nil
}

// Generate asks the backend for a narrative. Errors propagate after the
// retry envelope is exhausted; choosing the fallback is up to the caller.
func (g *Generator) Generate(ctx context.Context, f *weather.NormalizedForecast, history []string) (*Record, error) {
	if g.backend == nil {
		return nil, ErrBackendNotConfigured
	}

	prompt := BuildPrompt(f, history, g.clock.Now())

	completion, err := resilience.Retry(ctx, g.policy, resilience.Options{Clock: g.clock, Notify: g.notify},
		func(ctx context.Context, _ int) (Completion, error) {
			c, err := g.backend.Complete(ctx, SystemPrompt, prompt)
			if err != nil {
				return Completion{}, err
			}
			c.Text = strings.TrimSpace(c.Text)
			if c.Text == "" {
				return Completion{}, backoff.Permanent(ErrEmptyCompletion)
			}
			return c, nil
		})
	if err != nil {
		return nil, fmt.Errorf("generating narrative: %w", err)
	}

	return g.stamp(&Record{
		Text:            completion.Text,
		SourceModel:     completion.Model,
		TokenCount:      completion.TotalTokens,
		WeatherSnapshot: f.Current,
	}), nil
}

// GenerateFallback builds the template narrative. It never fails and never
// calls the backend.
func (g *Generator) GenerateFallback(f *weather.NormalizedForecast) *Record {
	return g.stamp(&Record{
		Text:            FallbackText(f),
		SourceModel:     FallbackModel,
		WeatherSnapshot: f.Current,
	})
}

func (g *Generator) stamp(r *Record) *Record {
	r.ID = uuid.NewString()
	r.CreatedAt = g.clock.Now().UTC()
	return r
}

// NoDataText is the fallback when not even the temperature is known.
const NoDataText = "Ilmaandmed puuduvad"

// FallbackText renders "<temp>°C • <phenomenon> • Tuul <wind> m/s",
// omitting unknown parts. It is deterministic.
func FallbackText(f *weather.NormalizedForecast) string {
	if f == nil || f.Current.Temperature == nil {
		return NoDataText
	}

	c := f.Current
	parts := []string{fmt.Sprintf("%.1f°C", *c.Temperature)}
	if c.Phenomenon != "" {
		parts = append(parts, c.Phenomenon)
	}
	if c.WindSpeed != nil {
		parts = append(parts, fmt.Sprintf("Tuul %.1f m/s", *c.WindSpeed))
	}
	return strings.Join(parts, " • ")
}
