package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/toomja/ilm/internal/observability"
	"github.com/toomja/ilm/internal/telemetry"
	"github.com/toomja/ilm/internal/weather"
)

// ErrCycleInProgress is returned when a cycle is requested while another
// one is still running.
var ErrCycleInProgress = errors.New("aggregation cycle already running")

// Pipeline is the part of weather.Service the jobs drive.
type Pipeline interface {
	RunCycle(ctx context.Context) (*weather.CycleResult, error)
	Sweep(ctx context.Context) (weather.SweepResult, error)
}

// CycleJob runs aggregation cycles and maintenance sweeps. Overlapping
// cycles are skipped rather than queued.
type CycleJob struct {
	pipeline Pipeline
	config   Config
	metrics  *observability.Metrics
	clock    clockwork.Clock
	logger   zerolog.Logger

	running atomic.Bool
	stats   *JobStats
}

// JobStats tracks cycle job statistics.
type JobStats struct {
	mu sync.RWMutex

	// Counters
	TotalCycles      int64
	SuccessfulCycles int64
	FailedCycles     int64
	SkippedCycles    int64
	Sweeps           int64

	// Timings
	LastCycleAt       time.Time
	LastCycleDuration time.Duration
	LastSuccessAt     time.Time
	LastSweepAt       time.Time

	LastError string
}

// CycleJobConfig holds configuration for creating a CycleJob.
type CycleJobConfig struct {
	Pipeline Pipeline
	Config   Config

	// Metrics receives the Prometheus observations (optional).
	Metrics *observability.Metrics

	// Clock measures durations (optional).
	Clock clockwork.Clock

	Logger zerolog.Logger
}

// NewCycleJob creates a new cycle job.
func NewCycleJob(cfg CycleJobConfig) *CycleJob {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &CycleJob{
		pipeline: cfg.Pipeline,
		config:   cfg.Config.withDefaults(),
		metrics:  metrics,
		clock:    clock,
		logger:   cfg.Logger,
		stats:    &JobStats{},
	}
}

// CycleReport summarizes one aggregation cycle.
type CycleReport struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Source is the provenance of the cached forecast, empty on failure.
	Source weather.Source

	// FailedSources names the providers that produced no forecast.
	FailedSources []string

	Alerts    int
	Narrative string
	Entry     *weather.CacheEntry
}

// Run executes one aggregation cycle under the configured timeout.
func (j *CycleJob) Run(ctx context.Context) (*CycleReport, error) {
	if !j.running.CompareAndSwap(false, true) {
		j.metrics.Cycles.WithLabelValues("skipped").Inc()
		j.stats.mu.Lock()
		j.stats.SkippedCycles++
		j.stats.mu.Unlock()

		j.logger.Warn().Msg("previous cycle still running, skipping")
		return nil, ErrCycleInProgress
	}
	defer j.running.Store(false)

	cycleCtx, cancel := context.WithTimeout(ctx, j.config.CycleTimeout)
	defer cancel()

	cycleCtx, span := telemetry.Tracer().Start(cycleCtx, "weather.cycle")
	defer span.End()

	report := &CycleReport{StartTime: j.clock.Now()}
	result, err := j.pipeline.RunCycle(cycleCtx)
	report.EndTime = j.clock.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)

	if result != nil {
		for _, o := range result.Outcomes {
			if o.Err != nil {
				report.FailedSources = append(report.FailedSources, o.Provider)
				j.metrics.SourceFailures.WithLabelValues(o.Provider).Inc()
			}
		}
	}
	j.metrics.CycleDuration.Observe(report.Duration.Seconds())

	span.SetAttributes(attribute.StringSlice("weather.failed_sources", report.FailedSources))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cycle failed")
		j.metrics.Cycles.WithLabelValues("failed").Inc()
		j.updateStats(report, err)
		return report, err
	}

	report.Entry = result.Entry
	report.Narrative = result.Narrative
	if result.Entry != nil {
		report.Source = result.Entry.Payload.Source
		report.Alerts = len(result.Entry.Alerts)
	}

	span.SetAttributes(
		attribute.String("weather.source", string(report.Source)),
		attribute.Int("weather.alerts", report.Alerts),
	)

	j.observe(report)
	j.updateStats(report, nil)

	j.logger.Info().
		Dur("duration", report.Duration).
		Str("source", string(report.Source)).
		Strs("failed_sources", report.FailedSources).
		Int("alerts", report.Alerts).
		Bool("narrative", report.Narrative != "").
		Msg("aggregation cycle completed")

	return report, nil
}

func (j *CycleJob) observe(report *CycleReport) {
	j.metrics.Cycles.WithLabelValues("success").Inc()
	j.metrics.LastSuccess.Set(float64(report.EndTime.Unix()))

	for _, s := range []weather.Source{weather.SourceEstonian, weather.SourceOpenMeteo, weather.SourceAggregated} {
		v := 0.0
		if s == report.Source {
			v = 1
		}
		j.metrics.LastCycleSource.WithLabelValues(string(s)).Set(v)
	}

	if report.Narrative != "" {
		j.metrics.Narratives.WithLabelValues("stored").Inc()
	} else {
		j.metrics.Narratives.WithLabelValues("missing").Inc()
	}

	if report.Entry == nil {
		return
	}
	if c := report.Entry.Comparison; c != nil && c.AgreementScore != nil {
		j.metrics.AgreementScore.Set(*c.AgreementScore)
	}
	for _, a := range report.Entry.Alerts {
		j.metrics.Alerts.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}
}

// Sweep executes one maintenance sweep under the configured timeout.
func (j *CycleJob) Sweep(ctx context.Context) (weather.SweepResult, error) {
	sweepCtx, cancel := context.WithTimeout(ctx, j.config.SweepTimeout)
	defer cancel()

	res, err := j.pipeline.Sweep(sweepCtx)
	if err != nil {
		j.metrics.Sweeps.WithLabelValues("failed").Inc()
		return res, err
	}

	j.metrics.Sweeps.WithLabelValues("success").Inc()
	j.metrics.ExpiredEntries.Add(float64(res.ExpiredEntries))
	j.metrics.TrimmedNarratives.Add(float64(res.TrimmedNarratives))

	j.stats.mu.Lock()
	j.stats.Sweeps++
	j.stats.LastSweepAt = j.clock.Now()
	j.stats.mu.Unlock()

	return res, nil
}

// Running reports whether a cycle is in progress.
func (j *CycleJob) Running() bool {
	return j.running.Load()
}

func (j *CycleJob) updateStats(report *CycleReport, err error) {
	j.stats.mu.Lock()
	defer j.stats.mu.Unlock()

	j.stats.TotalCycles++
	j.stats.LastCycleAt = report.EndTime
	j.stats.LastCycleDuration = report.Duration
	if err != nil {
		j.stats.FailedCycles++
		j.stats.LastError = err.Error()
		return
	}
	j.stats.SuccessfulCycles++
	j.stats.LastSuccessAt = report.EndTime
	j.stats.LastError = ""
}

// GetStats returns a copy of the current statistics.
func (j *CycleJob) GetStats() JobStats {
	j.stats.mu.RLock()
	defer j.stats.mu.RUnlock()

	return JobStats{
		TotalCycles:       j.stats.TotalCycles,
		SuccessfulCycles:  j.stats.SuccessfulCycles,
		FailedCycles:      j.stats.FailedCycles,
		SkippedCycles:     j.stats.SkippedCycles,
		Sweeps:            j.stats.Sweeps,
		LastCycleAt:       j.stats.LastCycleAt,
		LastCycleDuration: j.stats.LastCycleDuration,
		LastSuccessAt:     j.stats.LastSuccessAt,
		LastSweepAt:       j.stats.LastSweepAt,
		LastError:         j.stats.LastError,
	}
}

// StatsSnapshot returns a snapshot of the current statistics as a map.
func (j *CycleJob) StatsSnapshot() map[string]interface{} {
	s := j.GetStats()
	return map[string]interface{}{
		"total_cycles":        s.TotalCycles,
		"successful_cycles":   s.SuccessfulCycles,
		"failed_cycles":       s.FailedCycles,
		"skipped_cycles":      s.SkippedCycles,
		"sweeps":              s.Sweeps,
		"last_cycle_at":       s.LastCycleAt,
		"last_cycle_duration": s.LastCycleDuration.String(),
		"last_success_at":     s.LastSuccessAt,
		"last_sweep_at":       s.LastSweepAt,
		"last_error":          s.LastError,
		"running":             j.Running(),
	}
}
