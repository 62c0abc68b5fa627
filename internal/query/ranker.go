// Package query answers natural-language searches over stored segments,
// serving repeated queries from the TTL cache.
package query

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"jamesfarrell.me/youtube-segment-search/internal/cache"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

// DefaultLimit is used when a caller passes a non-positive limit. Misses are
// always ranked and cached at least this deep.
const DefaultLimit = 50

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Store interface {
	SegmentsByIDs(ctx context.Context, ids []string) ([]models.SegmentResult, error)
	Nearest(ctx context.Context, vec []float32, limit int) ([]models.SegmentResult, error)
}

type Ranker struct {
	store    Store
	cache    *cache.Cache
	embedder Embedder
	log      *slog.Logger
	tracer   trace.Tracer
}

func NewRanker(store Store, c *cache.Cache, embedder Embedder, log *slog.Logger) *Ranker {
	if log == nil {
		log = slog.Default()
	}
	return &Ranker{
		store:    store,
		cache:    c,
		embedder: embedder,
		log:      log,
		tracer:   otel.Tracer("youtube-segment-search/query"),
	}
}

// Rank returns at most limit segments ordered by ascending distance to text.
// A cache hit resolves the stored ids in order and never calls the embedder.
func (r *Ranker) Rank(ctx context.Context, text string, limit int) (results []models.SegmentResult, err error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := cache.Normalize(text)

	ctx, span := r.tracer.Start(ctx, "query.Rank", trace.WithAttributes(
		attribute.String("query", q),
		attribute.Int("limit", limit),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ids, hit, err := r.cache.Get(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", hit))

	if hit {
		if len(ids) > limit {
			ids = ids[:limit]
		}
		results, err = r.store.SegmentsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("query: resolve cached ids: %w", err)
		}
		r.log.Debug("query served from cache", "query", q, "results", len(results))
		return results, nil
	}

	vec, err := r.embedder.Embed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query: embed: %w", err)
	}

	depth := max(limit, DefaultLimit)
	ranked, err := r.store.Nearest(ctx, vec, depth)
	if err != nil {
		return nil, fmt.Errorf("query: nearest: %w", err)
	}

	ids = make([]string, len(ranked))
	for i, res := range ranked {
		ids[i] = res.ID
	}
	if err := r.cache.Put(ctx, q, ids); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	r.log.Debug("query ranked", "query", q, "results", len(ranked))
	return ranked, nil
}
