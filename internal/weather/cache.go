package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// NarrativeRetention is how many narratives the maintenance sweep keeps.
const NarrativeRetention = 20

// CacheStore is the row-store contract the cache is built on.
type CacheStore interface {
	InsertCache(ctx context.Context, entry *CacheEntry) error
	LatestCache(ctx context.Context, location string) (*CacheEntry, error)
	LatestValidCache(ctx context.Context, location string, now time.Time) (*CacheEntry, error)
	DeleteExpiredCache(ctx context.Context, now time.Time) (int64, error)
	TrimNarratives(ctx context.Context, keep int) (int64, error)
}

// SweepResult reports what a maintenance sweep removed.
type SweepResult struct {
	ExpiredEntries    int64
	TrimmedNarratives int64
}

// Cache is an append-only forecast cache with read-time expiry.
type Cache struct {
	store CacheStore
	clock clockwork.Clock
}

// NewCache creates a cache over store. clock may be nil.
func NewCache(store CacheStore, clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{store: store, clock: clock}
}

// Get returns the newest unexpired entry for location, or nil.
func (c *Cache) Get(ctx context.Context, location string) (*CacheEntry, error) {
	entry, err := c.store.LatestValidCache(ctx, location, c.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	return entry, nil
}

// GetStale returns the newest entry for location regardless of expiry, or
// nil. It serves the emergency fallback when live aggregation fails.
func (c *Cache) GetStale(ctx context.Context, location string) (*CacheEntry, error) {
	entry, err := c.store.LatestCache(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("reading stale cache: %w", err)
	}
	return entry, nil
}

// Put inserts a new entry for the result. Prior entries are left untouched.
func (c *Cache) Put(ctx context.Context, location string, result *AggregatedResult, ttl time.Duration) (*CacheEntry, error) {
	now := c.clock.Now()
	entry := &CacheEntry{
		Location:   location,
		Payload:    *result.Forecast,
		Comparison: result.Comparison,
		Alerts:     result.Alerts,
		CachedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := c.store.InsertCache(ctx, entry); err != nil {
		return nil, fmt.Errorf("writing cache: %w", err)
	}
	return entry, nil
}

// Sweep deletes expired entries and trims narrative history. It is
// idempotent.
func (c *Cache) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	expired, err := c.store.DeleteExpiredCache(ctx, c.clock.Now())
	if err != nil {
		return res, fmt.Errorf("deleting expired cache: %w", err)
	}
	res.ExpiredEntries = expired

	trimmed, err := c.store.TrimNarratives(ctx, NarrativeRetention)
	if err != nil {
		return res, fmt.Errorf("trimming narratives: %w", err)
	}
	res.TrimmedNarratives = trimmed

	return res, nil
}
