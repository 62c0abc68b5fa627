package qdrant

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"jamesfarrell.me/youtube-segment-search/internal/storage"
	"jamesfarrell.me/youtube-segment-search/internal/storage/bolt"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

type mockPoints struct {
	upserts []*pb.UpsertPoints
	deletes []*pb.DeletePoints
	hits    []*pb.ScoredPoint
	err     error
}

func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deletes = append(m.deletes, in)
	return &pb.PointsOperationResponse{}, nil
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.upserts = append(m.upserts, in)
	return &pb.PointsOperationResponse{}, nil
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	hits := m.hits
	if uint64(len(hits)) > in.GetLimit() {
		hits = hits[:in.GetLimit()]
	}
	return &pb.SearchResponse{Result: hits}, nil
}

type mockCollections struct {
	existing []string
	created  []string
	deleted  []string
}

func (m *mockCollections) List(context.Context, *pb.ListCollectionsRequest, ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	var out []*pb.CollectionDescription
	for _, name := range m.existing {
		out = append(out, &pb.CollectionDescription{Name: name})
	}
	return &pb.ListCollectionsResponse{Collections: out}, nil
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = append(m.created, in.GetCollectionName())
	m.existing = append(m.existing, in.GetCollectionName())
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (m *mockCollections) Delete(_ context.Context, in *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.deleted = append(m.deleted, in.GetCollectionName())
	m.existing = nil
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func scored(id string, score float32) *pb.ScoredPoint {
	return &pb.ScoredPoint{
		Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
		Score: score,
	}
}

func newTestIndex(t *testing.T) (*Index, *mockPoints, *mockCollections) {
	t.Helper()
	base, err := bolt.Open(filepath.Join(t.TempDir(), "base.db"))
	if err != nil {
		t.Fatal(err)
	}
	points := &mockPoints{}
	collections := &mockCollections{}
	idx := newIndex(base, points, collections, "segments", 3)
	t.Cleanup(func() { idx.Close() })
	return idx, points, collections
}

func TestEnsureCollection(t *testing.T) {
	idx, _, collections := newTestIndex(t)
	ctx := context.Background()

	if err := idx.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection() error = %v", err)
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection() error = %v", err)
	}
	if len(collections.created) != 1 {
		t.Errorf("created %d collections, want 1", len(collections.created))
	}
}

func TestInsertAndNearest(t *testing.T) {
	idx, points, _ := newTestIndex(t)
	ctx := context.Background()

	video, err := idx.CreateVideo(ctx, "vid", "Title")
	if err != nil {
		t.Fatal(err)
	}
	var segs []*models.Segment
	for i := 0; i < 3; i++ {
		seg := &models.Segment{
			VideoID:   video.ID,
			StartTime: float64(i * 30),
			EndTime:   float64(i*30 + 30),
			Embedding: []float32{1, float32(i), 0},
		}
		if err := idx.InsertSegment(ctx, seg); err != nil {
			t.Fatalf("InsertSegment() error = %v", err)
		}
		segs = append(segs, seg)
	}
	if len(points.upserts) != 3 {
		t.Fatalf("got %d upserts, want 3", len(points.upserts))
	}
	if got := points.upserts[0].GetPoints()[0].GetId().GetUuid(); got != segs[0].ID {
		t.Errorf("upserted point id %s, want %s", got, segs[0].ID)
	}

	points.hits = []*pb.ScoredPoint{
		scored(segs[2].ID, 0.9),
		scored(segs[0].ID, 0.5),
		scored(segs[1].ID, 0.5),
	}
	results, err := idx.Nearest(ctx, []float32{1, 2, 0}, 3)
	if err != nil {
		t.Fatalf("Nearest() error = %v", err)
	}
	want := []string{segs[2].ID, segs[0].ID, segs[1].ID}
	for i, r := range results {
		if r.ID != want[i] {
			t.Errorf("result %d = %s, want %s", i, r.ID, want[i])
		}
	}
	if d := *results[0].Distance; d < 0.099 || d > 0.101 {
		t.Errorf("distance = %v, want 0.1", d)
	}
}

func TestInsertSegmentUpsertError(t *testing.T) {
	idx, points, _ := newTestIndex(t)
	ctx := context.Background()
	video, _ := idx.CreateVideo(ctx, "vid", "Title")

	points.err = errors.New("unavailable")
	err := idx.InsertSegment(ctx, &models.Segment{VideoID: video.ID, EndTime: 1, Embedding: []float32{1, 0, 0}})
	if err == nil {
		t.Fatal("expected upsert error")
	}

	rows, err := idx.SegmentsByVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("SegmentsByVideo() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("base store kept %d segments after a failed upsert", len(rows))
	}
}

func TestInsertSegmentBaseErrorRemovesPoint(t *testing.T) {
	idx, points, _ := newTestIndex(t)
	ctx := context.Background()

	seg := &models.Segment{VideoID: "no-such-video", EndTime: 1, Embedding: []float32{1, 0, 0}}
	if err := idx.InsertSegment(ctx, seg); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("InsertSegment() error = %v, want ErrNotFound", err)
	}
	if len(points.upserts) != 1 || len(points.deletes) != 1 {
		t.Fatalf("upserts=%d deletes=%d, want 1 and 1", len(points.upserts), len(points.deletes))
	}
	ids := points.deletes[0].GetPoints().GetPoints().GetIds()
	if len(ids) != 1 || ids[0].GetUuid() != seg.ID {
		t.Errorf("deleted points %v, want [%s]", ids, seg.ID)
	}
}

func TestDeleteAllRecreatesCollection(t *testing.T) {
	idx, _, collections := newTestIndex(t)
	ctx := context.Background()
	collections.existing = []string{"segments"}

	if err := idx.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	if len(collections.deleted) != 1 || len(collections.created) != 1 {
		t.Errorf("deleted=%v created=%v", collections.deleted, collections.created)
	}
}
