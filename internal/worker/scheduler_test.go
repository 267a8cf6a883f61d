package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toomja/ilm/internal/worker"
)

func startScheduler(t *testing.T, pipeline *fakePipeline, runOnStart bool) (*clockwork.FakeClock, context.CancelFunc, <-chan error) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	cfg := worker.Config{
		CycleInterval: 30 * time.Minute,
		SweepInterval: time.Hour,
		CycleTimeout:  time.Second,
		RunOnStart:    runOnStart,
	}
	job := worker.NewCycleJob(worker.CycleJobConfig{Pipeline: pipeline, Config: cfg, Logger: zerolog.Nop()})
	scheduler := worker.NewScheduler(worker.SchedulerConfig{Job: job, Config: cfg, Clock: clock, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- scheduler.Start(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 2), "both tickers registered")

	return clock, cancel, errCh
}

func TestScheduler_RunsOnIntervals(t *testing.T) {
	pipeline := &fakePipeline{result: successfulCycle()}
	clock, cancel, errCh := startScheduler(t, pipeline, false)

	assert.Zero(t, pipeline.cycles.Load())

	clock.Advance(30 * time.Minute)
	require.Eventually(t, func() bool { return pipeline.cycles.Load() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, pipeline.sweeps.Load())

	clock.Advance(30 * time.Minute)
	require.Eventually(t, func() bool { return pipeline.cycles.Load() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return pipeline.sweeps.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestScheduler_RunOnStart(t *testing.T) {
	pipeline := &fakePipeline{result: successfulCycle()}
	_, cancel, errCh := startScheduler(t, pipeline, true)

	require.Eventually(t, func() bool { return pipeline.cycles.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestScheduler_StopWaitsForCycle(t *testing.T) {
	pipeline := &fakePipeline{result: successfulCycle(), block: make(chan struct{})}
	_, cancel, errCh := startScheduler(t, pipeline, true)

	require.Eventually(t, func() bool { return pipeline.cycles.Load() == 1 }, time.Second, time.Millisecond)

	// The blocked cycle observes the cancellation and returns.
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
