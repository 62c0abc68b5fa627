// Package bolt implements storage.Store on an embedded bbolt file. It ranks
// segments in process and suits local runs and tests.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"jamesfarrell.me/youtube-segment-search/internal/storage"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
	"jamesfarrell.me/youtube-segment-search/internal/vector"
)

var (
	bucketVideos     = []byte("videos")
	bucketExternalID = []byte("videos_by_external")
	bucketSegments   = []byte("segments")
	bucketCache      = []byte("cache")

	allBuckets = [][]byte{bucketVideos, bucketExternalID, bucketSegments, bucketCache}
)

type Store struct {
	db  *bbolt.DB
	now func() time.Time

	mu          sync.Mutex
	lastCreated time.Time
}

type Option func(*Store)

// WithClock overrides the clock used for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) the bbolt file at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt: create buckets: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// stamp returns a creation time strictly after the previous one so that
// creation order survives coarse clocks.
func (s *Store) stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now().UTC()
	if !t.After(s.lastCreated) {
		t = s.lastCreated.Add(time.Nanosecond)
	}
	s.lastCreated = t
	return t
}

func (s *Store) FindVideoByExternalID(ctx context.Context, externalID string) (*models.Video, error) {
	var video *models.Video
	err := s.db.View(func(tx *bbolt.Tx) error {
		v, err := videoByExternal(tx, externalID)
		video = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return video, nil
}

func (s *Store) CreateVideo(ctx context.Context, externalID, title string) (*models.Video, error) {
	var video *models.Video
	err := s.db.Update(func(tx *bbolt.Tx) error {
		existing, err := videoByExternal(tx, externalID)
		if err == nil {
			video = existing
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		video = &models.Video{
			ID:         uuid.NewString(),
			ExternalID: externalID,
			Title:      title,
			CreatedAt:  s.stamp(),
		}
		data, err := json.Marshal(video)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketVideos).Put([]byte(video.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketExternalID).Put([]byte(externalID), []byte(video.ID))
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: create video %s: %w", externalID, err)
	}
	return video, nil
}

func (s *Store) InsertSegment(ctx context.Context, seg *models.Segment) error {
	if seg.ID == "" {
		seg.ID = uuid.NewString()
	}
	if seg.CreatedAt.IsZero() {
		seg.CreatedAt = s.stamp()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketVideos).Get([]byte(seg.VideoID)) == nil {
			return fmt.Errorf("video %s: %w", seg.VideoID, storage.ErrNotFound)
		}
		data, err := json.Marshal(seg)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSegments).Put([]byte(seg.ID), data)
	})
	if err != nil {
		return fmt.Errorf("bolt: insert segment: %w", err)
	}
	return nil
}

func (s *Store) SegmentsByIDs(ctx context.Context, ids []string) ([]models.SegmentResult, error) {
	results := make([]models.SegmentResult, 0, len(ids))
	err := s.db.View(func(tx *bbolt.Tx) error {
		videos := map[string]models.VideoRef{}
		for _, id := range ids {
			data := tx.Bucket(bucketSegments).Get([]byte(id))
			if data == nil {
				continue
			}
			var seg models.Segment
			if err := json.Unmarshal(data, &seg); err != nil {
				return err
			}
			ref, err := videoRef(tx, videos, seg.VideoID)
			if err != nil {
				return err
			}
			seg.Embedding = nil
			results = append(results, models.SegmentResult{Segment: seg, Video: ref})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: segments by ids: %w", err)
	}
	return results, nil
}

func (s *Store) SegmentsByVideo(ctx context.Context, videoID string) ([]models.Segment, error) {
	var segments []models.Segment
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSegments).ForEach(func(_, data []byte) error {
			var seg models.Segment
			if err := json.Unmarshal(data, &seg); err != nil {
				return err
			}
			if seg.VideoID == videoID {
				seg.Embedding = nil
				segments = append(segments, seg)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: segments by video: %w", err)
	}
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].StartTime < segments[j].StartTime
	})
	return segments, nil
}

func (s *Store) Nearest(ctx context.Context, vec []float32, limit int) ([]models.SegmentResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	var results []models.SegmentResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		videos := map[string]models.VideoRef{}
		return tx.Bucket(bucketSegments).ForEach(func(_, data []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var seg models.Segment
			if err := json.Unmarshal(data, &seg); err != nil {
				return err
			}
			d, err := vector.CosineDistance(vec, seg.Embedding)
			if err != nil {
				return fmt.Errorf("segment %s: %w", seg.ID, err)
			}
			ref, err := videoRef(tx, videos, seg.VideoID)
			if err != nil {
				return err
			}
			seg.Embedding = nil
			results = append(results, models.SegmentResult{Segment: seg, Video: ref, Distance: &d})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: nearest: %w", err)
	}

	storage.SortByDistance(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Cache keys are query + 0x00 + big-endian sequence, so a prefix scan
// visits one query's entries in insertion order.
func cacheKey(query string, seq uint64) []byte {
	key := make([]byte, 0, len(query)+9)
	key = append(key, query...)
	key = append(key, 0)
	return binary.BigEndian.AppendUint64(key, seq)
}

func (s *Store) InsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.stamp()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCache)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(cacheKey(entry.Query, seq), data)
	})
	if err != nil {
		return fmt.Errorf("bolt: insert cache entry: %w", err)
	}
	return nil
}

func (s *Store) FindLiveCacheEntry(ctx context.Context, query string, now time.Time) (*models.CacheEntry, error) {
	var found *models.CacheEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		prefix := append([]byte(query), 0)
		c := tx.Bucket(bucketCache).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			// Skip keys of longer queries that embed a NUL.
			if len(k) != len(prefix)+8 {
				continue
			}
			var entry models.CacheEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if entry.Live(now) {
				e := entry
				found = &e
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: find cache entry: %w", err)
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func (s *Store) ReapExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	var reaped int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCache)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var entry models.CacheEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if !entry.Live(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		reaped = int64(len(expired))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bolt: reap cache: %w", err)
	}
	return reaped, nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketCache, bucketSegments, bucketExternalID, bucketVideos} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bolt: delete all: %w", err)
	}
	return nil
}

func videoByExternal(tx *bbolt.Tx, externalID string) (*models.Video, error) {
	id := tx.Bucket(bucketExternalID).Get([]byte(externalID))
	if id == nil {
		return nil, storage.ErrNotFound
	}
	data := tx.Bucket(bucketVideos).Get(id)
	if data == nil {
		return nil, storage.ErrNotFound
	}
	var video models.Video
	if err := json.Unmarshal(data, &video); err != nil {
		return nil, err
	}
	return &video, nil
}

func videoRef(tx *bbolt.Tx, seen map[string]models.VideoRef, videoID string) (models.VideoRef, error) {
	if ref, ok := seen[videoID]; ok {
		return ref, nil
	}
	data := tx.Bucket(bucketVideos).Get([]byte(videoID))
	if data == nil {
		return models.VideoRef{}, fmt.Errorf("video %s: %w", videoID, storage.ErrNotFound)
	}
	var video models.Video
	if err := json.Unmarshal(data, &video); err != nil {
		return models.VideoRef{}, err
	}
	ref := models.VideoRef{ID: video.ID, ExternalID: video.ExternalID, Title: video.Title}
	seen[videoID] = ref
	return ref, nil
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Reaper = (*Store)(nil)
)
