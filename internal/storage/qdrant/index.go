// Package qdrant mirrors segment embeddings into a Qdrant collection and
// serves nearest-neighbour queries from it. Records stay in the wrapped store.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"jamesfarrell.me/youtube-segment-search/internal/storage"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Index is a storage.Store that delegates records to a base store and
// ranking to Qdrant.
type Index struct {
	storage.Store

	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	dims        int
}

// New dials Qdrant's gRPC endpoint at addr and wraps base.
func New(addr, collection string, dims int, base storage.Store) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	idx := newIndex(base, pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, dims)
	idx.conn = conn
	return idx, nil
}

func newIndex(base storage.Store, points pointsAPI, collections collectionsAPI, collection string, dims int) *Index {
	return &Index{
		Store:       base,
		points:      points,
		collections: collections,
		collection:  collection,
		dims:        dims,
	}
}

// EnsureCollection creates the collection with cosine distance if it is missing.
func (x *Index) EnsureCollection(ctx context.Context) error {
	list, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == x.collection {
			return nil
		}
	}

	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(x.dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", x.collection, err)
	}
	return nil
}

// InsertSegment upserts the point under an id assigned here, then commits
// the segment to the base store. A failed base insert removes the point
// again, so a failure on either side leaves no row behind.
func (x *Index) InsertSegment(ctx context.Context, seg *models.Segment) error {
	if seg.ID == "" {
		seg.ID = uuid.NewString()
	}
	pointID := &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: seg.ID}}

	wait := true
	_, err := x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: pointID,
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: seg.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"video_id":   {Kind: &pb.Value_StringValue{StringValue: seg.VideoID}},
				"start_time": {Kind: &pb.Value_DoubleValue{DoubleValue: seg.StartTime}},
				"end_time":   {Kind: &pb.Value_DoubleValue{DoubleValue: seg.EndTime}},
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert segment %s: %w", seg.ID, err)
	}

	if err := x.Store.InsertSegment(ctx, seg); err != nil {
		_, derr := x.points.Delete(context.WithoutCancel(ctx), &pb.DeletePoints{
			CollectionName: x.collection,
			Wait:           &wait,
			Points: &pb.PointsSelector{
				PointsSelectorOneOf: &pb.PointsSelector_Points{
					Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointID}},
				},
			},
		})
		if derr != nil {
			return errors.Join(err, fmt.Errorf("qdrant: remove point %s: %w", seg.ID, derr))
		}
		return err
	}
	return nil
}

// Nearest searches Qdrant and resolves hits through the base store.
// Distance is 1 - cosine score so it matches pgvector's <=>.
func (x *Index) Nearest(ctx context.Context, vec []float32, limit int) ([]models.SegmentResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         vec,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	hits := resp.GetResult()
	ids := make([]string, 0, len(hits))
	distances := make(map[string]float64, len(hits))
	for _, h := range hits {
		id := h.GetId().GetUuid()
		ids = append(ids, id)
		distances[id] = 1 - float64(h.GetScore())
	}

	results, err := x.Store.SegmentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range results {
		d := distances[results[i].ID]
		results[i].Distance = &d
	}
	storage.SortByDistance(results)
	return results, nil
}

// DeleteAll clears the base store and recreates an empty collection.
func (x *Index) DeleteAll(ctx context.Context) error {
	if err := x.Store.DeleteAll(ctx); err != nil {
		return err
	}
	if _, err := x.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: x.collection}); err != nil {
		return fmt.Errorf("qdrant: delete collection %s: %w", x.collection, err)
	}
	return x.EnsureCollection(ctx)
}

func (x *Index) ReapExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	if r, ok := x.Store.(storage.Reaper); ok {
		return r.ReapExpiredCache(ctx, now)
	}
	return 0, nil
}

func (x *Index) Close() error {
	if x.conn != nil {
		if err := x.conn.Close(); err != nil {
			return err
		}
	}
	return x.Store.Close()
}

var (
	_ storage.Store  = (*Index)(nil)
	_ storage.Reaper = (*Index)(nil)
)
