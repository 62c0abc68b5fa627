// Package cache keeps ranked segment ids per normalized query for a fixed TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jamesfarrell.me/youtube-segment-search/internal/storage"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

const DefaultTTL = 24 * time.Hour

type Cache struct {
	store storage.CacheStore
	ttl   time.Duration
	now   func() time.Time
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(store storage.CacheStore, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{store: store, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Normalize lower-cases q and collapses runs of whitespace.
func Normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Get returns the ids cached for q if an entry expires strictly after now.
func (c *Cache) Get(ctx context.Context, q string) ([]string, bool, error) {
	entry, err := c.store.FindLiveCacheEntry(ctx, Normalize(q), c.now())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}
	return entry.SegmentIDs, true, nil
}

// Put records ids for q. Entries are never updated in place; a newer entry
// shadows older ones.
func (c *Cache) Put(ctx context.Context, q string, ids []string) error {
	entry := &models.CacheEntry{
		Query:      Normalize(q),
		SegmentIDs: ids,
		ExpiresAt:  c.now().Add(c.ttl),
	}
	if err := c.store.InsertCacheEntry(ctx, entry); err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}
