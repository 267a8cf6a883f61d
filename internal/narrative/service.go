package narrative

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/toomja/ilm/internal/weather"
)

// ServiceConfig holds configuration for the narrative service.
type ServiceConfig struct {
	// Generator writes the narratives.
	Generator *Generator

	// Store persists them.
	Store Store

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service chooses between the generative backend and the fallback,
// persists the result and applies the retention trim.
type Service struct {
	generator *Generator
	store     Store
	logger    zerolog.Logger
}

// NewService creates a new narrative service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		generator: cfg.Generator,
		store:     cfg.Store,
		logger:    cfg.Logger,
	}
}

// Narrate generates, persists and returns the narrative text for f.
// Backend failures fall back to the template; only persistence errors are
// returned.
func (s *Service) Narrate(ctx context.Context, f *weather.NormalizedForecast) (string, error) {
	record, err := s.generate(ctx, f)
	if err != nil {
		return "", err
	}

	if err := s.store.InsertNarrative(ctx, record); err != nil {
		return "", fmt.Errorf("storing narrative: %w", err)
	}

	trimmed, err := s.store.TrimNarratives(ctx, weather.NarrativeRetention)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to trim narrative history")
	}

	s.logger.Info().
		Str("narrative_id", record.ID).
		Str("model", record.SourceModel).
		Int64("trimmed", trimmed).
		Msg("narrative stored")

	return record.Text, nil
}

func (s *Service) generate(ctx context.Context, f *weather.NormalizedForecast) (*Record, error) {
	if !s.generator.Configured() {
		s.logger.Debug().Msg("narrative backend not configured, using fallback")
		return s.generator.GenerateFallback(f), nil
	}

	recent, err := s.store.RecentNarratives(ctx, maxHistory)
	if err != nil {
		// History only improves variety.
		s.logger.Warn().Err(err).Msg("failed to load narrative history")
	}
	history := make([]string, 0, len(recent))
	for _, r := range recent {
		history = append(history, r.Text)
	}

	record, err := s.generator.Generate(ctx, f, history)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().Err(err).Msg("narrative backend failed, using fallback")
		return s.generator.GenerateFallback(f), nil
	}
	return record, nil
}

// Latest returns the newest stored narrative, or nil.
func (s *Service) Latest(ctx context.Context) (*Record, error) {
	records, err := s.store.RecentNarratives(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("reading narratives: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}
