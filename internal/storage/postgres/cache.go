package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"jamesfarrell.me/youtube-segment-search/internal/storage"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

type CacheRepository struct {
	db *sql.DB
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

func (r *CacheRepository) Insert(ctx context.Context, entry *models.CacheEntry) error {
	const query = `
		INSERT INTO query_cache (query, segment_ids, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	ids := entry.SegmentIDs
	if ids == nil {
		ids = []string{}
	}
	err := r.db.QueryRowContext(ctx, query, entry.Query, pq.Array(ids), entry.ExpiresAt).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert cache entry: %w", err)
	}
	return nil
}

func (r *CacheRepository) FindLive(ctx context.Context, q string, now time.Time) (*models.CacheEntry, error) {
	const query = `
		SELECT id, query, segment_ids, expires_at, created_at
		FROM query_cache
		WHERE query = $1 AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	var entry models.CacheEntry
	err := r.db.QueryRowContext(ctx, query, q, now).Scan(
		&entry.ID,
		&entry.Query,
		pq.Array(&entry.SegmentIDs),
		&entry.ExpiresAt,
		&entry.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find cache entry: %w", err)
	}
	return &entry, nil
}

func (r *CacheRepository) ReapExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM query_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: reap cache: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: reap cache rows affected: %w", err)
	}
	return rows, nil
}
