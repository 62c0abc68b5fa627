// Package pipeline drives the ingestion of one video: fetch metadata,
// download, segment, then transcribe and embed each segment in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"jamesfarrell.me/youtube-segment-search/internal/progress"
	"jamesfarrell.me/youtube-segment-search/internal/storage"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

const DefaultSegmentDuration = 30 * time.Second

// Deps are the collaborators of an Orchestrator. Summarizer may be nil.
type Deps struct {
	Store       Store
	Metadata    MetadataProvider
	Downloader  Downloader
	Segmenter   Segmenter
	Transcriber Transcriber
	Embedder    Embedder
	Summarizer  Summarizer
	Progress    progress.Publisher
}

type Option func(*Orchestrator)

func WithSegmentDuration(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.segmentDuration = d
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

type Orchestrator struct {
	Deps

	segmentDuration time.Duration
	log             *slog.Logger
	tracer          trace.Tracer

	mu      sync.Mutex
	running map[string]struct{}
}

func New(deps Deps, opts ...Option) *Orchestrator {
	if deps.Progress == nil {
		deps.Progress = progress.Discard
	}
	o := &Orchestrator{
		Deps:            deps,
		segmentDuration: DefaultSegmentDuration,
		log:             slog.Default(),
		tracer:          otel.Tracer("youtube-segment-search/pipeline"),
		running:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// InFlight returns the number of ingestions currently running.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

// Running reports whether externalID is being ingested.
func (o *Orchestrator) Running(externalID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[externalID]
	return ok
}

func (o *Orchestrator) acquire(externalID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.running[externalID]; ok {
		return false
	}
	o.running[externalID] = struct{}{}
	return true
}

func (o *Orchestrator) release(externalID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, externalID)
}

// Process ingests externalID, publishing progress under the same id. It
// returns ErrAlreadyRunning without emitting events if the id is in flight,
// and otherwise a *Error after publishing exactly one Failed event.
// Segments committed before a failure are kept.
func (o *Orchestrator) Process(ctx context.Context, externalID string) error {
	c, err := o.Claim(externalID)
	if err != nil {
		return err
	}
	return c.Run(ctx)
}

// Claim reserves externalID for one later Run, so callers can reject a
// duplicate synchronously before starting the work elsewhere. It returns
// ErrAlreadyRunning if the id is in flight.
func (o *Orchestrator) Claim(externalID string) (*Claim, error) {
	if !o.acquire(externalID) {
		return nil, ErrAlreadyRunning
	}
	return &Claim{o: o, id: externalID}, nil
}

// Claim is a reserved ingestion. Exactly one of Run or Release must be called.
type Claim struct {
	o    *Orchestrator
	id   string
	once sync.Once
}

// Run ingests the claimed id and releases the claim.
func (c *Claim) Run(ctx context.Context) error {
	defer c.Release()
	return c.o.process(ctx, c.id)
}

// Release gives the id back without running. Safe to call twice.
func (c *Claim) Release() {
	c.once.Do(func() { c.o.release(c.id) })
}

func (o *Orchestrator) process(ctx context.Context, externalID string) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.Process",
		trace.WithAttributes(attribute.String("video.external_id", externalID)))
	defer span.End()

	j := &job{id: externalID, pub: o.Progress, log: o.log.With("job", externalID)}
	start := time.Now()

	if err := o.run(ctx, j); err != nil {
		pe := asError(err)
		span.RecordError(pe)
		span.SetStatus(codes.Error, pe.Error())
		j.fail(ctx, pe)
		j.log.Error("ingestion failed", "kind", pe.Kind.String(), "err", pe.Err, "duration", time.Since(start))
		return pe
	}

	j.log.Info("ingestion completed", "duration", time.Since(start))
	return nil
}

func (o *Orchestrator) run(ctx context.Context, j *job) error {
	if err := ctx.Err(); err != nil {
		return fail(Canceled, err)
	}

	j.emit(ctx, progress.Event{Stage: progress.Fetching, Message: "Fetching video details"})
	details, err := o.Metadata.VideoDetails(ctx, j.id)
	switch {
	case errors.Is(err, ErrVideoNotFound), err == nil && details == nil:
		return fail(MetadataNotFound, ErrVideoNotFound)
	case err != nil:
		return fail(metadataKind(ctx, err), err)
	}

	video, err := o.findOrCreateVideo(ctx, j.id, details.Title)
	if err != nil {
		return fail(PersistenceFailed, err)
	}
	j.log = j.log.With("video_id", video.ID)

	if err := ctx.Err(); err != nil {
		return fail(Canceled, err)
	}
	j.emit(ctx, progress.Event{Stage: progress.Downloading, Message: "Downloading video"})
	mediaPath, err := o.Downloader.Download(ctx, j.id)
	if err != nil {
		return fail(stageKind(ctx, DownloadFailed), err)
	}
	defer removeFile(j.log, mediaPath)

	if err := ctx.Err(); err != nil {
		return fail(Canceled, err)
	}
	j.emit(ctx, progress.Event{Stage: progress.Segmenting, Message: "Segmenting video", Percent: progress.Percent(0)})
	chunks, err := o.Segmenter.Split(ctx, mediaPath, o.segmentDuration, j.segmentingProgress(ctx))
	j.endSegmenting()
	if err != nil {
		removeFiles(j.log, chunks)
		return fail(stageKind(ctx, SegmentationFailed), err)
	}
	if len(chunks) == 0 {
		return fail(SegmentationFailed, errors.New("segmenter produced no chunks"))
	}

	if err := o.processSegments(ctx, j, video, details.Duration, chunks); err != nil {
		return err
	}

	removeFile(j.log, mediaPath)
	j.emit(ctx, progress.Event{Stage: progress.Completed, Message: "Processing complete", Percent: progress.Percent(100)})
	return nil
}

func (o *Orchestrator) findOrCreateVideo(ctx context.Context, externalID, title string) (*models.Video, error) {
	video, err := o.Store.FindVideoByExternalID(ctx, externalID)
	if err == nil {
		return video, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return o.Store.CreateVideo(ctx, externalID, title)
}

func metadataKind(ctx context.Context, err error) Kind {
	if ctx.Err() != nil {
		return Canceled
	}
	return MetadataUnavailable
}

func stageKind(ctx context.Context, kind Kind) Kind {
	if ctx.Err() != nil {
		return Canceled
	}
	return kind
}

// job carries per-ingestion progress state. Stages only move forward and
// percentages within a stage never decrease.
type job struct {
	id  string
	pub progress.Publisher
	log *slog.Logger

	mu          sync.Mutex
	stage       progress.Stage
	lastPercent float64
	segmenting  bool
}

func (j *job) emit(ctx context.Context, ev progress.Event) {
	j.mu.Lock()
	if ev.Stage < j.stage || j.stage.Terminal() {
		j.mu.Unlock()
		return
	}
	if ev.Stage != j.stage {
		j.lastPercent = -1
	}
	if ev.Percent != nil {
		if ev.Stage == j.stage && *ev.Percent <= j.lastPercent {
			j.mu.Unlock()
			return
		}
		j.lastPercent = *ev.Percent
	}
	j.stage = ev.Stage
	j.segmenting = ev.Stage == progress.Segmenting
	j.mu.Unlock()

	j.log.Debug("progress", "stage", ev.Stage.String(), "message", ev.Message)
	j.pub.Publish(ctx, j.id, ev)
}

// segmentingProgress adapts segmenter callbacks into Segmenting events.
// Callbacks arriving after Split returns are ignored.
func (j *job) segmentingProgress(ctx context.Context) func(float64) {
	return func(pct float64) {
		j.mu.Lock()
		active := j.segmenting
		j.mu.Unlock()
		if !active {
			return
		}
		j.emit(ctx, progress.Event{
			Stage:   progress.Segmenting,
			Message: fmt.Sprintf("Segmenting video: %.0f%%", pct),
			Percent: progress.Percent(pct),
		})
	}
}

func (j *job) endSegmenting() {
	j.mu.Lock()
	j.segmenting = false
	j.mu.Unlock()
}

func (j *job) fail(ctx context.Context, pe *Error) {
	j.mu.Lock()
	j.stage = progress.Failed
	j.segmenting = false
	j.mu.Unlock()

	j.pub.Publish(ctx, j.id, progress.Event{
		Stage:   progress.Failed,
		Message: pe.Message(),
		Error:   pe.Kind.String(),
		Segment: pe.Segment,
	})
}

func removeFile(log *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("remove temp file", "path", path, "err", err)
	}
}

func removeFiles(log *slog.Logger, paths []string) {
	for _, p := range paths {
		removeFile(log, p)
	}
}
