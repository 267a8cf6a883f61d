package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toomja/ilm/internal/history"
	"github.com/toomja/ilm/internal/narrative"
	"github.com/toomja/ilm/internal/weather"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func cacheEntry(location string, cachedAt time.Time, ttl time.Duration, temp float64) *weather.CacheEntry {
	return &weather.CacheEntry{
		Location: location,
		Payload: weather.NormalizedForecast{
			Location: location,
			Current: weather.CurrentConditions{
				Conditions: weather.Conditions{Temperature: weather.Float(temp)},
			},
			Source: weather.SourceAggregated,
		},
		CachedAt:  cachedAt,
		ExpiresAt: cachedAt.Add(ttl),
	}
}

func TestInMemoryRepository_CacheIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	repo := history.NewInMemoryRepository()

	first := cacheEntry("Toomja", base, time.Hour, 5)
	second := cacheEntry("Toomja", base.Add(30*time.Minute), time.Hour, 7)
	require.NoError(t, repo.InsertCache(ctx, first))
	require.NoError(t, repo.InsertCache(ctx, second))
	assert.NotEqual(t, first.ID, second.ID)

	latest, err := repo.LatestCache(ctx, "Toomja")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.InDelta(t, 7.0, *latest.Payload.Current.Temperature, 0.001)

	other, err := repo.LatestCache(ctx, "Tallinn")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestInMemoryRepository_LatestValidCache(t *testing.T) {
	ctx := context.Background()
	repo := history.NewInMemoryRepository()

	require.NoError(t, repo.InsertCache(ctx, cacheEntry("Toomja", base, time.Hour, 5)))

	valid, err := repo.LatestValidCache(ctx, "Toomja", base.Add(59*time.Minute))
	require.NoError(t, err)
	assert.NotNil(t, valid)

	expired, err := repo.LatestValidCache(ctx, "Toomja", base.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, expired, "expiry at now is already expired")

	stale, err := repo.LatestCache(ctx, "Toomja")
	require.NoError(t, err)
	assert.NotNil(t, stale)
}

func TestInMemoryRepository_DeleteExpiredCache(t *testing.T) {
	ctx := context.Background()
	repo := history.NewInMemoryRepository()

	require.NoError(t, repo.InsertCache(ctx, cacheEntry("Toomja", base, time.Hour, 1)))
	require.NoError(t, repo.InsertCache(ctx, cacheEntry("Toomja", base.Add(time.Hour), time.Hour, 2)))
	require.NoError(t, repo.InsertCache(ctx, cacheEntry("Toomja", base.Add(2*time.Hour), time.Hour, 3)))

	deleted, err := repo.DeleteExpiredCache(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = repo.DeleteExpiredCache(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted, "sweep is idempotent")

	latest, err := repo.LatestCache(ctx, "Toomja")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 3.0, *latest.Payload.Current.Temperature, 0.001)
}

func TestInMemoryRepository_TrimNarrativesKeepsNewest(t *testing.T) {
	ctx := context.Background()
	repo := history.NewInMemoryRepository()

	// Insert out of order so trimming has to sort by creation time.
	for i := 29; i >= 0; i-- {
		require.NoError(t, repo.InsertNarrative(ctx, &narrative.Record{
			ID:          fmt.Sprintf("n-%02d", i),
			Text:        fmt.Sprintf("narrative %d", i),
			SourceModel: narrative.FallbackModel,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	deleted, err := repo.TrimNarratives(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(10), deleted)

	records, err := repo.RecentNarratives(ctx, 100)
	require.NoError(t, err)
	require.Len(t, records, 20)
	assert.Equal(t, "n-29", records[0].ID)
	assert.Equal(t, "n-10", records[19].ID)

	deleted, err = repo.TrimNarratives(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestInMemoryRepository_TrimNarrativesKeepsTieOrder(t *testing.T) {
	ctx := context.Background()
	repo := history.NewInMemoryRepository()

	for i := range 3 {
		require.NoError(t, repo.InsertNarrative(ctx, &narrative.Record{
			ID:        fmt.Sprintf("n-%d", i),
			CreatedAt: base,
		}))
	}

	records, err := repo.RecentNarratives(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "n-2", records[0].ID)

	deleted, err := repo.TrimNarratives(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err = repo.RecentNarratives(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "n-2", records[0].ID)
	assert.Equal(t, "n-1", records[1].ID)

	require.NoError(t, repo.InsertNarrative(ctx, &narrative.Record{ID: "n-3", CreatedAt: base}))
	records, err = repo.RecentNarratives(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "n-3", records[0].ID)
}

func TestInMemoryRepository_RecentNarrativesLimit(t *testing.T) {
	ctx := context.Background()
	repo := history.NewInMemoryRepository()

	for i := range 6 {
		require.NoError(t, repo.InsertNarrative(ctx, &narrative.Record{
			ID:        fmt.Sprintf("n-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	records, err := repo.RecentNarratives(ctx, 4)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "n-5", records[0].ID)
	assert.Equal(t, "n-2", records[3].ID)
}
