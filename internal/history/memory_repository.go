package history

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/toomja/ilm/internal/narrative"
	"github.com/toomja/ilm/internal/weather"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local runs. Production should use
// PostgresRepository.
type InMemoryRepository struct {
	mu         sync.RWMutex
	nextID     int64
	cache      []weather.CacheEntry
	narratives []narrative.Record
}

// NewInMemoryRepository creates a new in-memory history repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// InsertCache appends a cache entry and assigns its ID.
func (r *InMemoryRepository) InsertCache(_ context.Context, entry *weather.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	entry.ID = r.nextID
	r.cache = append(r.cache, *entry)
	return nil
}

// LatestCache returns the newest entry for location, or nil.
func (r *InMemoryRepository) LatestCache(_ context.Context, location string) (*weather.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.latest(location, func(*weather.CacheEntry) bool { return true }), nil
}

// LatestValidCache returns the newest entry for location that has not
// expired at now, or nil.
func (r *InMemoryRepository) LatestValidCache(_ context.Context, location string, now time.Time) (*weather.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.latest(location, func(e *weather.CacheEntry) bool { return !e.Expired(now) }), nil
}

func (r *InMemoryRepository) latest(location string, keep func(*weather.CacheEntry) bool) *weather.CacheEntry {
	var found *weather.CacheEntry
	for i := range r.cache {
		e := &r.cache[i]
		if e.Location != location || !keep(e) {
			continue
		}
		if found == nil || !e.CachedAt.Before(found.CachedAt) {
			found = e
		}
	}
	if found == nil {
		return nil
	}

	// Return a copy
	cpy := *found
	return &cpy
}

// DeleteExpiredCache removes entries whose expiry is at or before now.
func (r *InMemoryRepository) DeleteExpiredCache(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.cache[:0]
	var deleted int64
	for _, e := range r.cache {
		if e.Expired(now) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.cache = kept
	return deleted, nil
}

// InsertNarrative appends a narrative record.
func (r *InMemoryRepository) InsertNarrative(_ context.Context, record *narrative.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.narratives = append(r.narratives, *record)
	return nil
}

// RecentNarratives returns up to limit records, newest first.
func (r *InMemoryRepository) RecentNarratives(_ context.Context, limit int) ([]narrative.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := r.newestFirst()
	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// TrimNarratives keeps the newest keep records by creation time.
func (r *InMemoryRepository) TrimNarratives(_ context.Context, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	if len(r.narratives) <= keep {
		return 0, nil
	}

	sorted := r.newestFirst()
	deleted := int64(len(sorted) - keep)
	kept := sorted[:keep]
	// Storage order is oldest first.
	slices.Reverse(kept)
	r.narratives = kept
	return deleted, nil
}

// newestFirst returns a copy of the narratives ordered by creation time,
// newest first. Records created at the same instant keep insertion order
// reversed.
func (r *InMemoryRepository) newestFirst() []narrative.Record {
	sorted := make([]narrative.Record, len(r.narratives))
	for i, rec := range r.narratives {
		sorted[len(r.narratives)-1-i] = rec
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}
