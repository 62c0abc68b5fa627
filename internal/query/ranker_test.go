package query

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"jamesfarrell.me/youtube-segment-search/internal/cache"
	"jamesfarrell.me/youtube-segment-search/internal/storage/bolt"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

type countingEmbedder struct {
	calls int
	vec   []float32
	err   error
}

func (e *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	e.calls++
	return e.vec, e.err
}

func newTestRanker(t *testing.T, embedder Embedder, segments int) (*Ranker, *bolt.Store, *cache.Cache) {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "query.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	video, err := store.CreateVideo(ctx, "jNQXAC9IVRw", "Me at the zoo")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < segments; i++ {
		seg := &models.Segment{
			VideoID:    video.ID,
			StartTime:  float64(i * 30),
			EndTime:    float64(i*30 + 30),
			Transcript: "segment",
			Embedding:  []float32{1, float32(i)},
		}
		if err := store.InsertSegment(ctx, seg); err != nil {
			t.Fatal(err)
		}
	}

	c := cache.New(store, time.Hour)
	return NewRanker(store, c, embedder, nil), store, c
}

func ids(results []models.SegmentResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestRankMissThenHit(t *testing.T) {
	emb := &countingEmbedder{vec: []float32{1, 0}}
	r, _, _ := newTestRanker(t, emb, 8)
	ctx := context.Background()

	first, err := r.Rank(ctx, "Zoo animals", 5)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(first) != 5 {
		t.Fatalf("got %d results, want 5", len(first))
	}
	for i, res := range first {
		if res.StartTime >= res.EndTime {
			t.Errorf("result %d has start %v >= end %v", i, res.StartTime, res.EndTime)
		}
		if res.Video.ExternalID != "jNQXAC9IVRw" || res.Video.Title != "Me at the zoo" {
			t.Errorf("result %d missing video enrichment: %+v", i, res.Video)
		}
		if i > 0 && *res.Distance < *first[i-1].Distance {
			t.Errorf("distance decreased at %d", i)
		}
	}
	if emb.calls != 1 {
		t.Fatalf("embedder called %d times on miss, want 1", emb.calls)
	}

	second, err := r.Rank(ctx, "  zoo   ANIMALS ", 5)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if emb.calls != 1 {
		t.Errorf("embedder called on cache hit")
	}
	a, b := ids(first), ids(second)
	if len(a) != len(b) {
		t.Fatalf("hit returned %d ids, miss returned %d", len(b), len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("id %d differs: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestRankDefaultLimit(t *testing.T) {
	emb := &countingEmbedder{vec: []float32{1, 0}}
	r, _, _ := newTestRanker(t, emb, 60)

	results, err := r.Rank(context.Background(), "anything", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != DefaultLimit {
		t.Errorf("got %d results, want %d", len(results), DefaultLimit)
	}
}

func TestRankCachesAtDefaultDepth(t *testing.T) {
	emb := &countingEmbedder{vec: []float32{1, 0}}
	r, _, c := newTestRanker(t, emb, 10)
	ctx := context.Background()

	if _, err := r.Rank(ctx, "zoo", 3); err != nil {
		t.Fatal(err)
	}
	cached, ok, err := c.Get(ctx, "zoo")
	if err != nil || !ok {
		t.Fatalf("cache miss after Rank: ok=%v err=%v", ok, err)
	}
	if len(cached) != 10 {
		t.Errorf("cached %d ids, want all 10 ranked", len(cached))
	}

	more, err := r.Rank(ctx, "zoo", 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(more) != 7 || emb.calls != 1 {
		t.Errorf("got %d results with %d embed calls", len(more), emb.calls)
	}
}

func TestRankEmbedErrorIsNotCached(t *testing.T) {
	emb := &countingEmbedder{err: errors.New("openai down")}
	r, _, c := newTestRanker(t, emb, 2)
	ctx := context.Background()

	if _, err := r.Rank(ctx, "zoo", 5); err == nil {
		t.Fatal("expected embed error")
	}
	if _, ok, _ := c.Get(ctx, "zoo"); ok {
		t.Error("failed query was cached")
	}
}

func TestRankAfterDeleteAll(t *testing.T) {
	emb := &countingEmbedder{vec: []float32{1, 0}}
	r, store, _ := newTestRanker(t, emb, 4)
	ctx := context.Background()

	if _, err := r.Rank(ctx, "zoo animals", 5); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteAll(ctx); err != nil {
		t.Fatal(err)
	}
	results, err := r.Rank(ctx, "zoo animals", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results after DeleteAll, want 0", len(results))
	}
}
