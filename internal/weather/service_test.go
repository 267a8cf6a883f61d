package weather_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toomja/ilm/internal/history"
	"github.com/toomja/ilm/internal/weather"
)

// recordingNarrator records the forecasts it was asked to narrate.
type recordingNarrator struct {
	mu        sync.Mutex
	forecasts []*weather.NormalizedForecast
	err       error
}

func (n *recordingNarrator) Narrate(_ context.Context, f *weather.NormalizedForecast) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.forecasts = append(n.forecasts, f)
	if n.err != nil {
		return "", n.err
	}
	return "Ilus ilm", nil
}

func newTestService(t *testing.T, a, b weather.Provider, narrator weather.Narrator) (*weather.Service, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	svc := weather.NewService(weather.ServiceConfig{
		Aggregator: weather.NewAggregator(weather.AggregatorConfig{SourceA: a, SourceB: b, Clock: clock}),
		Cache:      weather.NewCache(history.NewInMemoryRepository(), clock),
		Narrator:   narrator,
		Location:   "Toomja",
		CacheTTL:   time.Hour,
		Logger:     zerolog.Nop(),
	})
	return svc, clock
}

func TestService_RunCycle(t *testing.T) {
	a := &stubProvider{name: "open-meteo", source: weather.SourceOpenMeteo, forecast: forecast(weather.SourceOpenMeteo, 10, 2, 0)}
	b := &stubProvider{name: "estonian", source: weather.SourceEstonian, forecast: forecast(weather.SourceEstonian, 16, 2, 0)}
	narrator := &recordingNarrator{}
	svc, _ := newTestService(t, a, b, narrator)

	cycle, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cycle.Entry)
	assert.Equal(t, "Toomja", cycle.Entry.Location)
	assert.Equal(t, "Ilus ilm", cycle.Narrative)
	require.NotNil(t, cycle.Entry.Comparison)
	assert.Len(t, cycle.Entry.Alerts, 1)

	require.Len(t, narrator.forecasts, 1)
	assert.Equal(t, weather.SourceAggregated, narrator.forecasts[0].Source)

	entry, stale, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.False(t, stale)
	assert.InDelta(t, 14.8, *entry.Payload.Current.Temperature, 1e-9)
}

func TestService_RunCycle_NarrativeFailureIsSoft(t *testing.T) {
	a := &stubProvider{name: "open-meteo", source: weather.SourceOpenMeteo, forecast: forecast(weather.SourceOpenMeteo, 10, 2, 0)}
	b := &stubProvider{name: "estonian", source: weather.SourceEstonian, err: weather.ErrSourceUnavailable}
	svc, _ := newTestService(t, a, b, &recordingNarrator{err: errors.New("store down")})

	cycle, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cycle.Narrative)
	assert.Equal(t, weather.SourceOpenMeteo, cycle.Entry.Payload.Source)
}

func TestService_RunCycle_AllSourcesFailed(t *testing.T) {
	a := &stubProvider{name: "open-meteo", source: weather.SourceOpenMeteo, err: weather.ErrSourceUnavailable}
	b := &stubProvider{name: "estonian", source: weather.SourceEstonian, err: weather.ErrSourceUnavailable}
	narrator := &recordingNarrator{}
	svc, _ := newTestService(t, a, b, narrator)

	cycle, err := svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, weather.ErrAllSourcesFailed)
	assert.True(t, weather.IsUnavailable(err))
	assert.Nil(t, cycle.Entry)
	assert.Empty(t, narrator.forecasts)

	_, _, err = svc.Current(context.Background())
	assert.ErrorIs(t, err, weather.ErrWeatherUnavailable)
}

func TestService_CurrentFallsBackToStale(t *testing.T) {
	a := &stubProvider{name: "open-meteo", source: weather.SourceOpenMeteo, forecast: forecast(weather.SourceOpenMeteo, 3, 2, 0)}
	b := &stubProvider{name: "estonian", source: weather.SourceEstonian, forecast: forecast(weather.SourceEstonian, 3, 2, 0)}
	svc, clock := newTestService(t, a, b, nil)

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	entry, stale, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, stale)
	assert.InDelta(t, 3.0, *entry.Payload.Current.Temperature, 1e-9)
}

func TestService_Sweep(t *testing.T) {
	a := &stubProvider{name: "open-meteo", source: weather.SourceOpenMeteo, forecast: forecast(weather.SourceOpenMeteo, 3, 2, 0)}
	b := &stubProvider{name: "estonian", source: weather.SourceEstonian, forecast: forecast(weather.SourceEstonian, 3, 2, 0)}
	svc, clock := newTestService(t, a, b, nil)

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	clock.Advance(time.Hour)

	res, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ExpiredEntries)
	assert.Equal(t, "Toomja", svc.Location())
}
