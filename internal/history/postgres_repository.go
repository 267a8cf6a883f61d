package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toomja/ilm/internal/narrative"
	"github.com/toomja/ilm/internal/weather"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL history repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// comparisonColumn is the JSON layout of weather_cache.comparison_json.
type comparisonColumn struct {
	Comparison *weather.SourceComparison   `json:"comparison"`
	Alerts     []weather.DisagreementAlert `json:"alerts"`
}

// InsertCache appends a cache entry and assigns its ID.
func (r *PostgresRepository) InsertCache(ctx context.Context, entry *weather.CacheEntry) error {
	forecastJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal forecast: %w", err)
	}
	comparisonJSON, err := json.Marshal(comparisonColumn{Comparison: entry.Comparison, Alerts: entry.Alerts})
	if err != nil {
		return fmt.Errorf("marshal comparison: %w", err)
	}

	query := `
		INSERT INTO weather_cache (cached_at, location, forecast_json, comparison_json, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	return r.pool.QueryRow(ctx, query,
		entry.CachedAt,
		entry.Location,
		forecastJSON,
		comparisonJSON,
		entry.ExpiresAt,
	).Scan(&entry.ID)
}

// LatestCache returns the newest entry for location, or nil.
func (r *PostgresRepository) LatestCache(ctx context.Context, location string) (*weather.CacheEntry, error) {
	query := `
		SELECT id, cached_at, location, forecast_json, comparison_json, expires_at
		FROM weather_cache
		WHERE location = $1
		ORDER BY cached_at DESC, id DESC
		LIMIT 1
	`

	return r.scanCacheEntry(ctx, query, location)
}

// LatestValidCache returns the newest unexpired entry for location, or nil.
func (r *PostgresRepository) LatestValidCache(ctx context.Context, location string, now time.Time) (*weather.CacheEntry, error) {
	query := `
		SELECT id, cached_at, location, forecast_json, comparison_json, expires_at
		FROM weather_cache
		WHERE location = $1 AND expires_at > $2
		ORDER BY cached_at DESC, id DESC
		LIMIT 1
	`

	return r.scanCacheEntry(ctx, query, location, now)
}

func (r *PostgresRepository) scanCacheEntry(ctx context.Context, query string, args ...any) (*weather.CacheEntry, error) {
	var (
		entry          weather.CacheEntry
		forecastJSON   []byte
		comparisonJSON []byte
	)

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&entry.ID,
		&entry.CachedAt,
		&entry.Location,
		&forecastJSON,
		&comparisonJSON,
		&entry.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(forecastJSON, &entry.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal forecast: %w", err)
	}
	if len(comparisonJSON) > 0 {
		var col comparisonColumn
		if err := json.Unmarshal(comparisonJSON, &col); err != nil {
			return nil, fmt.Errorf("unmarshal comparison: %w", err)
		}
		entry.Comparison = col.Comparison
		entry.Alerts = col.Alerts
	}

	return &entry, nil
}

// DeleteExpiredCache removes entries whose expiry is at or before now.
func (r *PostgresRepository) DeleteExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM weather_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertNarrative appends a narrative record with its scalar extracts.
func (r *PostgresRepository) InsertNarrative(ctx context.Context, record *narrative.Record) error {
	snapshotJSON, err := json.Marshal(record.WeatherSnapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO weather_blurbs (
			id, created_at, blurb_text, weather_data,
			temperature, phenomenon, wind_speed, model, token_count
		)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	snap := record.WeatherSnapshot
	_, err = r.pool.Exec(ctx, query,
		record.ID,
		record.CreatedAt,
		record.Text,
		snapshotJSON,
		snap.Temperature,
		snap.Phenomenon,
		snap.WindSpeed,
		record.SourceModel,
		record.TokenCount,
	)
	return err
}

// RecentNarratives returns up to limit records, newest first.
func (r *PostgresRepository) RecentNarratives(ctx context.Context, limit int) ([]narrative.Record, error) {
	query := `
		SELECT id::text, created_at, blurb_text, weather_data, model, token_count
		FROM weather_blurbs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []narrative.Record
	for rows.Next() {
		var (
			rec          narrative.Record
			snapshotJSON []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.CreatedAt,
			&rec.Text,
			&snapshotJSON,
			&rec.SourceModel,
			&rec.TokenCount,
		); err != nil {
			return nil, err
		}
		if len(snapshotJSON) > 0 {
			if err := json.Unmarshal(snapshotJSON, &rec.WeatherSnapshot); err != nil {
				return nil, fmt.Errorf("unmarshal snapshot: %w", err)
			}
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// TrimNarratives keeps the newest keep records by creation time.
func (r *PostgresRepository) TrimNarratives(ctx context.Context, keep int) (int64, error) {
	query := `
		DELETE FROM weather_blurbs
		WHERE id NOT IN (
			SELECT id FROM weather_blurbs
			ORDER BY created_at DESC
			LIMIT $1
		)
	`

	tag, err := r.pool.Exec(ctx, query, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
