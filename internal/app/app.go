// Package app hosts the ingestion orchestrator, the query ranker and the
// progress registry over one store. HTTP, the worker and the seed command
// are thin adapters over App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jamesfarrell.me/youtube-segment-search/internal/cache"
	"jamesfarrell.me/youtube-segment-search/internal/pipeline"
	"jamesfarrell.me/youtube-segment-search/internal/progress"
	"jamesfarrell.me/youtube-segment-search/internal/query"
	"jamesfarrell.me/youtube-segment-search/internal/storage"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

// ErrIngestionInFlight is returned by DeleteAll while any video is being ingested.
var ErrIngestionInFlight = errors.New("app: ingestion in flight")

var ErrClosed = errors.New("app: closed")

// Providers are the external computations used by ingestion and queries.
// Summarizer may be nil.
type Providers struct {
	Metadata    pipeline.MetadataProvider
	Downloader  pipeline.Downloader
	Segmenter   pipeline.Segmenter
	Transcriber pipeline.Transcriber
	Embedder    pipeline.Embedder
	Summarizer  pipeline.Summarizer
}

type options struct {
	log             *slog.Logger
	segmentDuration time.Duration
	cacheTTL        time.Duration
	publishers      []progress.Publisher
	clock           func() time.Time
}

type Option func(*options)

func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithSegmentDuration(d time.Duration) Option {
	return func(o *options) { o.segmentDuration = d }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.cacheTTL = ttl }
}

// WithPublisher forwards every progress event to p in addition to the
// in-process channel.
func WithPublisher(p progress.Publisher) Option {
	return func(o *options) { o.publishers = append(o.publishers, p) }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

type App struct {
	store    storage.Store
	channel  *progress.Channel
	pipeline *pipeline.Orchestrator
	ranker   *query.Ranker
	log      *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
}

func New(store storage.Store, p Providers, opts ...Option) *App {
	o := options{
		log:             slog.Default(),
		segmentDuration: pipeline.DefaultSegmentDuration,
		cacheTTL:        cache.DefaultTTL,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	channel := progress.NewChannel()
	pub := progress.Publisher(channel)
	if len(o.publishers) > 0 {
		pub = progress.Tee(append([]progress.Publisher{channel}, o.publishers...)...)
	}

	orch := pipeline.New(pipeline.Deps{
		Store:       store,
		Metadata:    p.Metadata,
		Downloader:  p.Downloader,
		Segmenter:   p.Segmenter,
		Transcriber: p.Transcriber,
		Embedder:    p.Embedder,
		Summarizer:  p.Summarizer,
		Progress:    pub,
	}, pipeline.WithSegmentDuration(o.segmentDuration), pipeline.WithLogger(o.log))

	c := cache.New(store, o.cacheTTL, cache.WithClock(o.clock))

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		store:    store,
		channel:  channel,
		pipeline: orch,
		ranker:   query.NewRanker(store, c, p.Embedder, o.log),
		log:      o.log,
		now:      o.clock,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Progress returns the in-process registry. Relays publish into it.
func (a *App) Progress() *progress.Channel { return a.channel }

// ProcessVideo ingests externalID and blocks until the job ends.
func (a *App) ProcessVideo(ctx context.Context, externalID string) error {
	return a.pipeline.Process(ctx, externalID)
}

// StartVideo launches ingestion in the background and returns at once.
// Progress is published under externalID. The job is canceled by Close,
// not by the caller's request ending.
func (a *App) StartVideo(externalID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	claim, err := a.pipeline.Claim(externalID)
	if err != nil {
		return err
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := claim.Run(a.ctx); err != nil {
			a.log.Debug("ingestion ended", "video_id", externalID, "error", err)
		}
	}()
	return nil
}

// Running reports whether externalID is being ingested.
func (a *App) Running(externalID string) bool { return a.pipeline.Running(externalID) }

func (a *App) Query(ctx context.Context, text string, limit int) ([]models.SegmentResult, error) {
	return a.ranker.Rank(ctx, text, limit)
}

// DeleteAll empties the store. It refuses while ingestion runs so no
// segment can be written under a deleted video.
func (a *App) DeleteAll(ctx context.Context) error {
	if n := a.pipeline.InFlight(); n > 0 {
		a.log.Warn("delete refused", "in_flight", n)
		return ErrIngestionInFlight
	}
	if err := a.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("app: delete all: %w", err)
	}
	a.log.Info("store emptied")
	return nil
}

// Subscribe registers for the progress events of jobID. Callers must Close
// the subscription.
func (a *App) Subscribe(jobID string) *progress.Subscription {
	return a.channel.Subscribe(jobID, progress.DefaultBuffer)
}

// Segments returns a stored video and its segments ordered by start time.
// It returns storage.ErrNotFound for unknown ids.
func (a *App) Segments(ctx context.Context, externalID string) (*models.Video, []models.Segment, error) {
	video, err := a.store.FindVideoByExternalID(ctx, externalID)
	if err != nil {
		return nil, nil, err
	}
	segs, err := a.store.SegmentsByVideo(ctx, video.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("app: segments: %w", err)
	}
	return video, segs, nil
}

// ReapExpiredCache drops expired cache rows when the store supports it.
func (a *App) ReapExpiredCache(ctx context.Context) (int64, error) {
	r, ok := a.store.(storage.Reaper)
	if !ok {
		return 0, nil
	}
	return r.ReapExpiredCache(ctx, a.now())
}

// Close cancels background ingestions, waits for them and closes the store.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
	return a.store.Close()
}
