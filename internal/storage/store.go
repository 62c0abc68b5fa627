// Package storage defines the persistence contract shared by the Postgres,
// bbolt and Qdrant-backed stores.
package storage

import (
	"context"
	"errors"
	"time"

	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

type VideoStore interface {
	// FindVideoByExternalID returns ErrNotFound when no video has the id.
	FindVideoByExternalID(ctx context.Context, externalID string) (*models.Video, error)
	// CreateVideo is idempotent on externalID: an existing record is returned unchanged.
	CreateVideo(ctx context.Context, externalID, title string) (*models.Video, error)
}

// SegmentStore reads never populate Segment.Embedding.
type SegmentStore interface {
	// InsertSegment assigns ID and CreatedAt when they are empty.
	InsertSegment(ctx context.Context, seg *models.Segment) error
	// SegmentsByIDs resolves ids in the given order, skipping ids that no longer exist.
	SegmentsByIDs(ctx context.Context, ids []string) ([]models.SegmentResult, error)
	// SegmentsByVideo returns the segments of one video ordered by start time.
	SegmentsByVideo(ctx context.Context, videoID string) ([]models.Segment, error)
	// Nearest returns up to limit segments by ascending cosine distance to vec.
	// Equal distances are ordered by creation time, then id.
	Nearest(ctx context.Context, vec []float32, limit int) ([]models.SegmentResult, error)
}

type CacheStore interface {
	InsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error
	// FindLiveCacheEntry returns the most recently created entry for query
	// whose expiry is strictly after now, or ErrNotFound.
	FindLiveCacheEntry(ctx context.Context, query string, now time.Time) (*models.CacheEntry, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	VideoStore
	SegmentStore
	CacheStore

	// DeleteAll removes cache entries, segments and videos.
	DeleteAll(ctx context.Context) error
	Close() error
}

// Reaper is implemented by stores that can drop expired cache rows.
type Reaper interface {
	ReapExpiredCache(ctx context.Context, now time.Time) (int64, error)
}
