package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the weather history tables. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS weather_cache (
		id              BIGSERIAL PRIMARY KEY,
		cached_at       TIMESTAMPTZ NOT NULL,
		location        TEXT NOT NULL,
		forecast_json   JSONB NOT NULL,
		comparison_json JSONB,
		expires_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS weather_cache_location_cached_at_idx
		ON weather_cache (location, cached_at DESC)`,
	`CREATE INDEX IF NOT EXISTS weather_cache_expires_at_idx
		ON weather_cache (expires_at)`,
	`CREATE TABLE IF NOT EXISTS weather_blurbs (
		id           UUID PRIMARY KEY,
		created_at   TIMESTAMPTZ NOT NULL,
		blurb_text   TEXT NOT NULL,
		weather_data JSONB NOT NULL,
		temperature  DOUBLE PRECISION,
		phenomenon   TEXT,
		wind_speed   DOUBLE PRECISION,
		model        TEXT NOT NULL,
		token_count  INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS weather_blurbs_created_at_idx
		ON weather_blurbs (created_at DESC)`,
}

// Migrate applies the schema to the database.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
