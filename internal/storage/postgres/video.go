package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jamesfarrell.me/youtube-segment-search/internal/storage"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

type VideoRepository struct {
	db *sql.DB
}

func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// Create inserts the video unless one with the same youtube id exists, in
// which case the existing row is returned.
func (r *VideoRepository) Create(ctx context.Context, externalID, title string) (*models.Video, error) {
	const query = `
		WITH inserted AS (
			INSERT INTO videos (youtube_id, title)
			VALUES ($1, $2)
			ON CONFLICT (youtube_id) DO NOTHING
			RETURNING id, youtube_id, title, created_at
		)
		SELECT id, youtube_id, title, created_at FROM inserted
		UNION ALL
		SELECT id, youtube_id, title, created_at FROM videos WHERE youtube_id = $1
		LIMIT 1
	`

	var video models.Video
	err := r.db.QueryRowContext(ctx, query, externalID, title).Scan(
		&video.ID,
		&video.ExternalID,
		&video.Title,
		&video.CreatedAt,
	)
	// A concurrent insert committed after this statement's snapshot: the
	// conflict hides both rows, so read the winner.
	if errors.Is(err, sql.ErrNoRows) {
		return r.GetByExternalID(ctx, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: create video %s: %w", externalID, err)
	}
	return &video, nil
}

func (r *VideoRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Video, error) {
	const query = `
		SELECT id, youtube_id, title, created_at
		FROM videos
		WHERE youtube_id = $1
	`

	var video models.Video
	err := r.db.QueryRowContext(ctx, query, externalID).Scan(
		&video.ID,
		&video.ExternalID,
		&video.Title,
		&video.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get video %s: %w", externalID, err)
	}
	return &video, nil
}
