package pipeline

import (
	"context"
	"time"

	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

// VideoDetails is what the metadata provider knows about a video.
// Duration is in seconds.
type VideoDetails struct {
	Title    string
	Duration float64
}

// MetadataProvider returns (nil, nil) or ErrVideoNotFound for unknown ids.
type MetadataProvider interface {
	VideoDetails(ctx context.Context, externalID string) (*VideoDetails, error)
}

// Downloader fetches the media for externalID and returns a local path.
type Downloader interface {
	Download(ctx context.Context, externalID string) (string, error)
}

// Segmenter splits local media into chunks of nominal length. onProgress is
// called with percentages in [0, 100] and may be called from another goroutine.
type Segmenter interface {
	Split(ctx context.Context, path string, nominal time.Duration, onProgress func(percent float64)) ([]string, error)
	ExtractAudio(ctx context.Context, chunkPath string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Store is the slice of storage.Store the orchestrator writes through.
type Store interface {
	FindVideoByExternalID(ctx context.Context, externalID string) (*models.Video, error)
	CreateVideo(ctx context.Context, externalID, title string) (*models.Video, error)
	InsertSegment(ctx context.Context, seg *models.Segment) error
}
