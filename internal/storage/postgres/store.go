package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jamesfarrell.me/youtube-segment-search/internal/storage"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

// Store composes the repositories into a storage.Store.
type Store struct {
	db       *sql.DB
	videos   *VideoRepository
	segments *SegmentRepository
	cache    *CacheRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		videos:   NewVideoRepository(db),
		segments: NewSegmentRepository(db),
		cache:    NewCacheRepository(db),
	}
}

func (s *Store) FindVideoByExternalID(ctx context.Context, externalID string) (*models.Video, error) {
	return s.videos.GetByExternalID(ctx, externalID)
}

func (s *Store) CreateVideo(ctx context.Context, externalID, title string) (*models.Video, error) {
	return s.videos.Create(ctx, externalID, title)
}

func (s *Store) InsertSegment(ctx context.Context, seg *models.Segment) error {
	return s.segments.Insert(ctx, seg)
}

func (s *Store) SegmentsByIDs(ctx context.Context, ids []string) ([]models.SegmentResult, error) {
	return s.segments.ByIDs(ctx, ids)
}

func (s *Store) SegmentsByVideo(ctx context.Context, videoID string) ([]models.Segment, error) {
	return s.segments.ByVideo(ctx, videoID)
}

func (s *Store) Nearest(ctx context.Context, vec []float32, limit int) ([]models.SegmentResult, error) {
	return s.segments.Nearest(ctx, vec, limit)
}

func (s *Store) InsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error {
	return s.cache.Insert(ctx, entry)
}

func (s *Store) FindLiveCacheEntry(ctx context.Context, query string, now time.Time) (*models.CacheEntry, error) {
	return s.cache.FindLive(ctx, query, now)
}

func (s *Store) ReapExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	return s.cache.ReapExpired(ctx, now)
}

// DeleteAll clears cache, segments and videos in one transaction.
func (s *Store) DeleteAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin delete all: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM query_cache`,
		`DELETE FROM segments`,
		`DELETE FROM videos`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: %s: %w", stmt, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Reaper = (*Store)(nil)
)
