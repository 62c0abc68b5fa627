package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"jamesfarrell.me/youtube-segment-search/internal/storage"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateVideoIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.FindVideoByExternalID(ctx, "abc"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before create, got %v", err)
	}

	first, err := s.CreateVideo(ctx, "abc", "First title")
	if err != nil {
		t.Fatalf("CreateVideo() error = %v", err)
	}
	second, err := s.CreateVideo(ctx, "abc", "Other title")
	if err != nil {
		t.Fatalf("CreateVideo() error = %v", err)
	}
	if first.ID != second.ID || second.Title != "First title" {
		t.Errorf("second create = %+v, want existing %+v", second, first)
	}

	found, err := s.FindVideoByExternalID(ctx, "abc")
	if err != nil {
		t.Fatalf("FindVideoByExternalID() error = %v", err)
	}
	if found.ID != first.ID {
		t.Errorf("found id %s, want %s", found.ID, first.ID)
	}
}

func TestInsertSegmentRequiresVideo(t *testing.T) {
	s := openTestStore(t)
	err := s.InsertSegment(context.Background(), &models.Segment{VideoID: "missing", Embedding: []float32{1}})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func seedSegments(t *testing.T, s *Store, embeddings ...[]float32) (*models.Video, []models.Segment) {
	t.Helper()
	ctx := context.Background()
	video, err := s.CreateVideo(ctx, "vid", "A video")
	if err != nil {
		t.Fatalf("CreateVideo() error = %v", err)
	}
	var segs []models.Segment
	for i, emb := range embeddings {
		seg := models.Segment{
			VideoID:    video.ID,
			StartTime:  float64(i * 30),
			EndTime:    float64((i + 1) * 30),
			Transcript: "segment",
			Embedding:  emb,
		}
		if err := s.InsertSegment(ctx, &seg); err != nil {
			t.Fatalf("InsertSegment() error = %v", err)
		}
		segs = append(segs, seg)
	}
	return video, segs
}

func TestNearestOrdering(t *testing.T) {
	s := openTestStore(t)
	video, segs := seedSegments(t, s,
		[]float32{0, 1},
		[]float32{1, 0},
		[]float32{2, 0},
		[]float32{1, 1},
	)

	results, err := s.Nearest(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Nearest() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	// segs[1] and segs[2] tie at distance 0; creation order breaks the tie.
	want := []string{segs[1].ID, segs[2].ID, segs[3].ID}
	for i, r := range results {
		if r.ID != want[i] {
			t.Errorf("result %d = %s, want %s", i, r.ID, want[i])
		}
		if r.Distance == nil {
			t.Fatalf("result %d has no distance", i)
		}
		if i > 0 && *r.Distance < *results[i-1].Distance {
			t.Errorf("distances not ascending at %d", i)
		}
		if r.Video.ExternalID != video.ExternalID || r.Video.Title != video.Title {
			t.Errorf("result %d video = %+v", i, r.Video)
		}
	}
}

func TestSegmentsByIDsPreservesOrder(t *testing.T) {
	s := openTestStore(t)
	_, segs := seedSegments(t, s, []float32{1, 0}, []float32{0, 1}, []float32{1, 1})

	ids := []string{segs[2].ID, "gone", segs[0].ID}
	results, err := s.SegmentsByIDs(context.Background(), ids)
	if err != nil {
		t.Fatalf("SegmentsByIDs() error = %v", err)
	}
	if len(results) != 2 || results[0].ID != segs[2].ID || results[1].ID != segs[0].ID {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Distance != nil {
		t.Errorf("resolved results should not carry a distance")
	}
}

func TestSegmentsByVideo(t *testing.T) {
	s := openTestStore(t)
	video, _ := seedSegments(t, s, []float32{1, 0}, []float32{0, 1})

	segs, err := s.SegmentsByVideo(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("SegmentsByVideo() error = %v", err)
	}
	if len(segs) != 2 || segs[0].StartTime != 0 || segs[1].StartTime != 30 {
		t.Fatalf("unexpected segments: %+v", segs)
	}
}

func TestCacheLookup(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	entries := []models.CacheEntry{
		{Query: "zoo animals", SegmentIDs: []string{"a"}, ExpiresAt: now.Add(time.Hour)},
		{Query: "zoo animals", SegmentIDs: []string{"b"}, ExpiresAt: now.Add(2 * time.Hour)},
		{Query: "zoo", SegmentIDs: []string{"c"}, ExpiresAt: now.Add(-time.Minute)},
	}
	for i := range entries {
		if err := s.InsertCacheEntry(ctx, &entries[i]); err != nil {
			t.Fatalf("InsertCacheEntry() error = %v", err)
		}
	}

	tests := []struct {
		name    string
		query   string
		at      time.Time
		want    string
		wantErr error
	}{
		{name: "most recent live entry", query: "zoo animals", at: now, want: "b"},
		{name: "older entry expired", query: "zoo animals", at: now.Add(90 * time.Minute), want: "b"},
		{name: "expiry equal to now is a miss", query: "zoo animals", at: now.Add(2 * time.Hour), wantErr: storage.ErrNotFound},
		{name: "expired entry", query: "zoo", at: now, wantErr: storage.ErrNotFound},
		{name: "never stored", query: "zebra", at: now, wantErr: storage.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := s.FindLiveCacheEntry(ctx, tt.query, tt.at)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindLiveCacheEntry() error = %v", err)
			}
			if entry.SegmentIDs[0] != tt.want {
				t.Errorf("got ids %v, want %s", entry.SegmentIDs, tt.want)
			}
		})
	}

	reaped, err := s.ReapExpiredCache(ctx, now.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("ReapExpiredCache() error = %v", err)
	}
	if reaped != 2 {
		t.Errorf("reaped %d entries, want 2", reaped)
	}
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedSegments(t, s, []float32{1, 0})
	if err := s.InsertCacheEntry(ctx, &models.CacheEntry{Query: "q", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}

	results, err := s.Nearest(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Nearest() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no segments, got %d", len(results))
	}
	if _, err := s.FindVideoByExternalID(ctx, "vid"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected video to be gone, got %v", err)
	}
	if _, err := s.FindLiveCacheEntry(ctx, "q", time.Now()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected cache to be empty, got %v", err)
	}
}

func TestStampIsMonotonic(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := openTestStore(t, WithClock(func() time.Time { return fixed }))

	a, b := s.stamp(), s.stamp()
	if !b.After(a) {
		t.Errorf("stamp() not increasing: %v then %v", a, b)
	}
}
