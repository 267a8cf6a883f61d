// Package history persists cached forecasts and generated narratives.
package history

import (
	"github.com/toomja/ilm/internal/narrative"
	"github.com/toomja/ilm/internal/weather"
)

// Repository is the row-store contract for the weather_cache and
// weather_blurbs tables. Both tables are append-only; rows are removed only
// by DeleteExpiredCache and TrimNarratives.
type Repository interface {
	weather.CacheStore
	narrative.Store
}

var (
	_ Repository = (*InMemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
