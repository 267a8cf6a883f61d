package worker

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Scheduler triggers aggregation cycles and maintenance sweeps on fixed
// intervals.
type Scheduler struct {
	job    *CycleJob
	config Config
	clock  clockwork.Clock
	logger zerolog.Logger
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Job    *CycleJob
	Config Config

	// Clock drives the tickers (optional).
	Clock clockwork.Clock

	Logger zerolog.Logger
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Scheduler{
		job:    cfg.Job,
		config: cfg.Config.withDefaults(),
		clock:  clock,
		logger: cfg.Logger,
	}
}

// Start runs the schedule until ctx is cancelled. Cycles run in their own
// goroutine so a slow cycle does not delay sweeps. A tick that arrives while
// a cycle is still running is skipped by CycleJob.Run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info().
		Dur("cycle_interval", s.config.CycleInterval).
		Dur("sweep_interval", s.config.SweepInterval).
		Msg("starting scheduler")

	cycles := s.clock.NewTicker(s.config.CycleInterval)
	defer cycles.Stop()
	sweeps := s.clock.NewTicker(s.config.SweepInterval)
	defer sweeps.Stop()

	done := make(chan struct{})
	var inFlight int
	cycle := func() {
		inFlight++
		go func() {
			defer func() { done <- struct{}{} }()
			s.runCycle(ctx)
		}()
	}

	if s.config.RunOnStart {
		cycle()
	}

	for {
		select {
		case <-ctx.Done():
			for ; inFlight > 0; inFlight-- {
				<-done
			}
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-done:
			inFlight--
		case <-cycles.Chan():
			cycle()
		case <-sweeps.Chan():
			if _, err := s.job.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduled sweep failed")
			}
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.job.Run(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		s.logger.Error().Err(err).Msg("scheduled cycle failed")
	}
}
