package narrative_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toomja/ilm/internal/history"
	"github.com/toomja/ilm/internal/narrative"
	"github.com/toomja/ilm/internal/provider/resilience"
	"github.com/toomja/ilm/internal/weather"
)

func newTestService(backend narrative.Backend) (*narrative.Service, *history.InMemoryRepository, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(now)
	repo := history.NewInMemoryRepository()
	cfg := narrative.GeneratorConfig{Policy: fastPolicy(), Clock: clock}
	if backend != nil {
		cfg.Backend = backend
	}
	svc := narrative.NewService(narrative.ServiceConfig{
		Generator: narrative.NewGenerator(cfg),
		Store:     repo,
		Logger:    zerolog.Nop(),
	})
	return svc, repo, clock
}

func TestService_Narrate(t *testing.T) {
	backend := &fakeBackend{text: "Päike piilub pilvede vahelt."}
	svc, repo, _ := newTestService(backend)
	ctx := context.Background()

	text, err := svc.Narrate(ctx, sampleForecast())
	require.NoError(t, err)
	assert.Equal(t, "Päike piilub pilvede vahelt.", text)

	stored, err := repo.RecentNarratives(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "test-model", stored[0].SourceModel)
	assert.Equal(t, text, stored[0].Text)

	latest, err := svc.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, stored[0].ID, latest.ID)
}

func TestService_Narrate_FallbackWithoutBackend(t *testing.T) {
	svc, repo, _ := newTestService(nil)
	ctx := context.Background()

	text, err := svc.Narrate(ctx, sampleForecast())
	require.NoError(t, err)
	assert.Equal(t, "2.6°C • Vahelduv pilvisus • Tuul 4.2 m/s", text)

	latest, err := svc.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.IsFallback())

	stored, _ := repo.RecentNarratives(ctx, 10)
	assert.Len(t, stored, 1, "fallback narratives are persisted too")
}

func TestService_Narrate_FallbackOnBackendFailure(t *testing.T) {
	permanent := &resilience.StatusError{StatusCode: 400}
	backend := &fakeBackend{errs: []error{permanent}}
	svc, _, _ := newTestService(backend)

	text, err := svc.Narrate(context.Background(), sampleForecast())
	require.NoError(t, err)
	assert.Equal(t, narrative.FallbackText(sampleForecast()), text)
	assert.Equal(t, 1, backend.calls())
}

func TestService_Narrate_PassesHistory(t *testing.T) {
	backend := &fakeBackend{}
	svc, _, clock := newTestService(backend)
	ctx := context.Background()

	for i := range 6 {
		backend.text = fmt.Sprintf("tekst %d", i)
		_, err := svc.Narrate(ctx, sampleForecast())
		require.NoError(t, err)
		clock.Advance(30 * time.Minute)
	}

	last := backend.prompts[len(backend.prompts)-1]
	for _, want := range []string{"tekst 4", "tekst 3", "tekst 2", "tekst 1"} {
		assert.Contains(t, last, want)
	}
	assert.NotContains(t, last, "tekst 0", "only the four newest narratives are shown")
}

func TestService_Narrate_TrimsHistory(t *testing.T) {
	svc, repo, clock := newTestService(nil)
	ctx := context.Background()

	for range 25 {
		_, err := svc.Narrate(ctx, sampleForecast())
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	stored, err := repo.RecentNarratives(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, stored, weather.NarrativeRetention)
	assert.Equal(t, now.Add(24*time.Minute), stored[0].CreatedAt)
}

func TestService_Narrate_CanceledContext(t *testing.T) {
	backend := &fakeBackend{errs: []error{errors.New("boom"), errors.New("boom"), errors.New("boom")}}
	svc, repo, _ := newTestService(backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Narrate(ctx, sampleForecast())
	assert.ErrorIs(t, err, context.Canceled)

	stored, _ := repo.RecentNarratives(context.Background(), 10)
	assert.Empty(t, stored)
}

func TestService_Latest_Empty(t *testing.T) {
	svc, _, _ := newTestService(nil)

	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}
