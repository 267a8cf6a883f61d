package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Narrator turns a forecast into persisted narrative text.
type Narrator interface {
	Narrate(ctx context.Context, forecast *NormalizedForecast) (string, error)
}

// ServiceConfig holds configuration for the weather pipeline service.
type ServiceConfig struct {
	// Aggregator fetches and merges the sources.
	Aggregator *Aggregator

	// Cache stores aggregated forecasts.
	Cache *Cache

	// Narrator generates the narrative (optional).
	Narrator Narrator

	// Location is the cache key of the configured location.
	Location string

	// CacheTTL is how long an aggregated forecast stays fresh (default: 1 hour).
	CacheTTL time.Duration

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service runs aggregation cycles and serves cached forecasts. It is the
// only layer of the pipeline that logs.
type Service struct {
	aggregator *Aggregator
	cache      *Cache
	narrator   Narrator
	location   string
	cacheTTL   time.Duration
	logger     zerolog.Logger
}

// NewService creates a new weather pipeline service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}

	return &Service{
		aggregator: cfg.Aggregator,
		cache:      cfg.Cache,
		narrator:   cfg.Narrator,
		location:   cfg.Location,
		cacheTTL:   cacheTTL,
		logger:     cfg.Logger,
	}
}

// Location returns the configured location key.
func (s *Service) Location() string {
	return s.location
}

// CycleResult describes one completed aggregation cycle.
type CycleResult struct {
	Entry     *CacheEntry
	Outcomes  []Outcome
	Narrative string
}

// RunCycle aggregates both sources, caches the result and narrates it.
// Only total source failure and cache write failure are returned as errors;
// narrative failures are logged.
func (s *Service) RunCycle(ctx context.Context) (*CycleResult, error) {
	result, outcomes, err := s.aggregator.Run(ctx)
	for _, o := range outcomes {
		if o.Err != nil {
			s.logger.Warn().
				Err(o.Err).
				Str("provider", o.Provider).
				Msg("weather source failed")
		}
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("aggregation failed for all sources")
		return &CycleResult{Outcomes: outcomes}, err
	}

	for _, alert := range result.Alerts {
		s.logger.Info().
			Str("type", string(alert.Type)).
			Str("severity", string(alert.Severity)).
			Msg(alert.Message)
	}

	entry, err := s.cache.Put(ctx, s.location, result, s.cacheTTL)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to cache forecast")
		return &CycleResult{Outcomes: outcomes}, err
	}

	cycle := &CycleResult{Entry: entry, Outcomes: outcomes}

	event := s.logger.Info().
		Str("source", string(result.Forecast.Source)).
		Time("expires_at", entry.ExpiresAt)
	if result.Comparison != nil && result.Comparison.AgreementScore != nil {
		event = event.Float64("agreement_score", *result.Comparison.AgreementScore)
	}
	event.Msg("forecast cached")

	if s.narrator != nil {
		text, err := s.narrator.Narrate(ctx, result.Forecast)
		if err != nil {
			s.logger.Error().Err(err).Msg("narrative generation failed")
		} else {
			cycle.Narrative = text
		}
	}

	return cycle, nil
}

// Current returns the freshest cached forecast. When no fresh entry exists
// it falls back to the newest stale one and reports stale as true.
func (s *Service) Current(ctx context.Context) (entry *CacheEntry, stale bool, err error) {
	entry, err = s.cache.Get(ctx, s.location)
	if err != nil {
		return nil, false, err
	}
	if entry != nil {
		return entry, false, nil
	}

	entry, err = s.cache.GetStale(ctx, s.location)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, ErrWeatherUnavailable
	}

	s.logger.Warn().
		Time("cached_at", entry.CachedAt).
		Msg("serving stale forecast")
	return entry, true, nil
}

// Sweep runs the cache maintenance sweep.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	res, err := s.cache.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("maintenance sweep failed")
		return res, fmt.Errorf("sweep: %w", err)
	}

	s.logger.Info().
		Int64("expired_entries", res.ExpiredEntries).
		Int64("trimmed_narratives", res.TrimmedNarratives).
		Msg("maintenance sweep completed")
	return res, nil
}

// IsUnavailable reports whether err means no forecast could be served.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrWeatherUnavailable) || errors.Is(err, ErrAllSourcesFailed)
}
