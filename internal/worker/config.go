// Package worker runs the weather aggregation pipeline in the background.
package worker

import (
	"time"

	"github.com/toomja/ilm/internal/app"
)

// Config holds configuration for the scheduled jobs.
type Config struct {
	// CycleInterval is the time between aggregation cycles.
	// Default: 30 minutes
	CycleInterval time.Duration

	// SweepInterval is the time between maintenance sweeps.
	// Default: 1 hour
	SweepInterval time.Duration

	// CycleTimeout bounds a single aggregation cycle, narrative included.
	// Default: 5 minutes
	CycleTimeout time.Duration

	// SweepTimeout bounds a single maintenance sweep.
	// Default: 1 minute
	SweepTimeout time.Duration

	// RunOnStart runs a cycle immediately instead of waiting one interval.
	// Default: true
	RunOnStart bool
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		CycleInterval: 30 * time.Minute,
		SweepInterval: time.Hour,
		CycleTimeout:  5 * time.Minute,
		SweepTimeout:  time.Minute,
		RunOnStart:    true,
	}
}

// withDefaults fills zero durations from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CycleInterval <= 0 {
		c.CycleInterval = d.CycleInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = d.CycleTimeout
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = d.SweepTimeout
	}
	return c
}

// ConfigFromEnv reads WORKER_CYCLE_INTERVAL and WORKER_SWEEP_INTERVAL over
// DefaultConfig.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	var err error
	if cfg.CycleInterval, err = app.DurationEnv("WORKER_CYCLE_INTERVAL", cfg.CycleInterval); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = app.DurationEnv("WORKER_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
