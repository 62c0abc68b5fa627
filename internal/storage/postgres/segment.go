package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

type SegmentRepository struct {
	db *sql.DB
}

func NewSegmentRepository(db *sql.DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

const segmentColumns = `
	s.id, s.video_id, s.start_time, s.end_time, s.transcript, s.summary, s.created_at,
	v.id, v.youtube_id, v.title`

func (r *SegmentRepository) Insert(ctx context.Context, seg *models.Segment) error {
	const query = `
		INSERT INTO segments (id, video_id, start_time, end_time, transcript, summary, embedding)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	summary := sql.NullString{String: seg.Summary, Valid: seg.Summary != ""}
	err := r.db.QueryRowContext(ctx, query,
		seg.ID,
		seg.VideoID,
		seg.StartTime,
		seg.EndTime,
		seg.Transcript,
		summary,
		pgvector.NewVector(seg.Embedding),
	).Scan(&seg.ID, &seg.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert segment: %w", err)
	}
	return nil
}

// ByIDs returns segments in the order of ids; ids without a row are skipped.
func (r *SegmentRepository) ByIDs(ctx context.Context, ids []string) ([]models.SegmentResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + segmentColumns + `
		FROM segments s
		JOIN videos v ON v.id = s.video_id
		WHERE s.id::text = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("postgres: segments by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]models.SegmentResult, len(ids))
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan segment: %w", err)
		}
		byID[res.ID] = res
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: segments by ids: %w", err)
	}

	results := make([]models.SegmentResult, 0, len(byID))
	for _, id := range ids {
		if res, ok := byID[id]; ok {
			results = append(results, res)
		}
	}
	return results, nil
}

func (r *SegmentRepository) ByVideo(ctx context.Context, videoID string) ([]models.Segment, error) {
	query := `SELECT ` + segmentColumns + `
		FROM segments s
		JOIN videos v ON v.id = s.video_id
		WHERE s.video_id = $1
		ORDER BY s.start_time
	`

	rows, err := r.db.QueryContext(ctx, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("postgres: segments by video: %w", err)
	}
	defer rows.Close()

	var segments []models.Segment
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan segment: %w", err)
		}
		segments = append(segments, res.Segment)
	}
	return segments, rows.Err()
}

// Nearest ranks by pgvector cosine distance (<=>).
func (r *SegmentRepository) Nearest(ctx context.Context, vec []float32, limit int) ([]models.SegmentResult, error) {
	query := `SELECT ` + segmentColumns + `, s.embedding <=> $1 AS distance
		FROM segments s
		JOIN videos v ON v.id = s.video_id
		ORDER BY distance, s.created_at, s.id
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: nearest segments: %w", err)
	}
	defer rows.Close()

	var results []models.SegmentResult
	for rows.Next() {
		var distance float64
		res, err := scanResult(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan segment: %w", err)
		}
		res.Distance = &distance
		results = append(results, res)
	}
	return results, rows.Err()
}

func scanResult(rows *sql.Rows, extra ...any) (models.SegmentResult, error) {
	var (
		res     models.SegmentResult
		summary sql.NullString
	)
	dest := []any{
		&res.ID,
		&res.VideoID,
		&res.StartTime,
		&res.EndTime,
		&res.Transcript,
		&summary,
		&res.CreatedAt,
		&res.Video.ID,
		&res.Video.ExternalID,
		&res.Video.Title,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return res, err
	}
	res.Summary = summary.String
	return res, nil
}
