package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

const dateLayout = "2006-01-02"

// Cache stamps payloads with the logical day and treats entries from other days as misses.
type Cache struct {
	store  ports.CacheStore
	loc    *time.Location
	cutoff time.Duration
	now    func() time.Time
}

// New builds a cache over store using the configured offset and cutoff hour.
func New(store ports.CacheStore, cfg config.CacheConfig) *Cache {
	return &Cache{
		store:  store,
		loc:    cfg.Location(),
		cutoff: time.Duration(cfg.CutoffHour) * time.Hour,
		now:    time.Now,
	}
}

// WithClock replaces the wall clock, mostly for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// LogicalDate returns the day t belongs to; the day only rolls over at the cutoff hour in the cache zone.
func (c *Cache) LogicalDate(t time.Time) string {
	return t.In(c.loc).Add(-c.cutoff).Format(dateLayout)
}

// Today is the logical date of the current instant.
func (c *Cache) Today() string {
	return c.LogicalDate(c.now())
}

// NextRollover returns the first instant after t at which the logical date changes.
func (c *Cache) NextRollover(t time.Time) time.Time {
	local := t.In(c.loc)
	boundary := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc).Add(c.cutoff)
	for !boundary.After(local) {
		boundary = boundary.AddDate(0, 0, 1)
	}
	return boundary
}

// Get decodes the entry under key when it was written on the current logical day.
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T
	entry, err := c.store.GetCacheEntry(ctx, key)
	if err != nil {
		return zero, false, fmt.Errorf("read cache %s: %w", key, err)
	}
	if entry == nil || entry.CacheDate != c.Today() {
		return zero, false, nil
	}

	var value T
	if err := json.Unmarshal(entry.Data, &value); err != nil {
		return zero, false, fmt.Errorf("decode cache %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key stamped with the current logical day.
func Set[T any](ctx context.Context, c *Cache, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", key, err)
	}
	entry := domain.CacheEntry{Key: key, CacheDate: c.Today(), Data: data}
	if err := c.store.SetCacheEntry(ctx, entry); err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	return nil
}
