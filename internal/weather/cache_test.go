package weather_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toomja/ilm/internal/history"
	"github.com/toomja/ilm/internal/narrative"
	"github.com/toomja/ilm/internal/weather"
)

func TestCache_GetBeforeAndAfterExpiry(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(now)
	cache := weather.NewCache(history.NewInMemoryRepository(), clock)

	result := &weather.AggregatedResult{Forecast: forecast(weather.SourceAggregated, 6.5, 3, 0)}
	_, err := cache.Put(ctx, "Toomja", result, time.Hour)
	require.NoError(t, err)

	entry, err := cache.Get(ctx, "Toomja")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.InDelta(t, 6.5, *entry.Payload.Current.Temperature, 1e-9)
	assert.Equal(t, now.Add(time.Hour), entry.ExpiresAt)

	clock.Advance(59 * time.Minute)
	entry, err = cache.Get(ctx, "Toomja")
	require.NoError(t, err)
	assert.NotNil(t, entry)

	clock.Advance(time.Minute)
	entry, err = cache.Get(ctx, "Toomja")
	require.NoError(t, err)
	assert.Nil(t, entry, "expired entries are not served")

	stale, err := cache.GetStale(ctx, "Toomja")
	require.NoError(t, err)
	require.NotNil(t, stale)
	assert.InDelta(t, 6.5, *stale.Payload.Current.Temperature, 1e-9)
}

func TestCache_Miss(t *testing.T) {
	cache := weather.NewCache(history.NewInMemoryRepository(), clockwork.NewFakeClockAt(now))

	entry, err := cache.Get(context.Background(), "Toomja")
	require.NoError(t, err)
	assert.Nil(t, entry)

	stale, err := cache.GetStale(context.Background(), "Toomja")
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestCache_PutSupersedes(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(now)
	cache := weather.NewCache(history.NewInMemoryRepository(), clock)

	first, err := cache.Put(ctx, "Toomja", &weather.AggregatedResult{Forecast: forecast(weather.SourceAggregated, 1, 1, 0)}, time.Hour)
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	second, err := cache.Put(ctx, "Toomja", &weather.AggregatedResult{Forecast: forecast(weather.SourceAggregated, 2, 1, 0)}, time.Hour)
	require.NoError(t, err)

	entry, err := cache.Get(ctx, "Toomja")
	require.NoError(t, err)
	assert.Equal(t, second.ID, entry.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.InDelta(t, 1.0, *first.Payload.Current.Temperature, 1e-9, "prior entry is not mutated")
}

func TestCache_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(now)
	repo := history.NewInMemoryRepository()
	cache := weather.NewCache(repo, clock)

	for range 3 {
		_, err := cache.Put(ctx, "Toomja", &weather.AggregatedResult{Forecast: forecast(weather.SourceAggregated, 1, 1, 0)}, time.Hour)
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}
	for i := range 30 {
		require.NoError(t, repo.InsertNarrative(ctx, &narrative.Record{
			ID:        fmt.Sprintf("n-%d", i),
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	res, err := cache.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.ExpiredEntries)
	assert.Equal(t, int64(10), res.TrimmedNarratives)

	res, err = cache.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, weather.SweepResult{}, res)

	records, err := repo.RecentNarratives(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, records, weather.NarrativeRetention)
}
