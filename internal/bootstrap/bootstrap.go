// Package bootstrap builds an app.App from configuration. Every command
// shares it so the service, the worker and the seed script run the same stack.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"jamesfarrell.me/youtube-segment-search/internal/app"
	"jamesfarrell.me/youtube-segment-search/internal/config"
	"jamesfarrell.me/youtube-segment-search/internal/pipeline"
	"jamesfarrell.me/youtube-segment-search/internal/progress"
	"jamesfarrell.me/youtube-segment-search/internal/providers/lemonfox"
	"jamesfarrell.me/youtube-segment-search/internal/providers/media"
	"jamesfarrell.me/youtube-segment-search/internal/providers/openai"
	"jamesfarrell.me/youtube-segment-search/internal/providers/youtube"
	"jamesfarrell.me/youtube-segment-search/internal/storage"
	"jamesfarrell.me/youtube-segment-search/internal/storage/bolt"
	"jamesfarrell.me/youtube-segment-search/internal/storage/db"
	"jamesfarrell.me/youtube-segment-search/internal/storage/postgres"
	"jamesfarrell.me/youtube-segment-search/internal/storage/qdrant"
)

// Runtime is a built App plus the connections it depends on.
type Runtime struct {
	App *app.App

	nc    *nats.Conn
	relay *nats.Subscription
}

// Close stops the App and then the progress bridge.
func (r *Runtime) Close() error {
	err := r.App.Close()
	if r.relay != nil {
		_ = r.relay.Unsubscribe()
	}
	if r.nc != nil {
		r.nc.Close()
	}
	return err
}

func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*Runtime, error) {
	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithSegmentDuration(cfg.SegmentDuration),
		app.WithCacheTTL(cfg.CacheTTL),
	}

	rt := &Runtime{}
	origin := uuid.NewString()
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("youtube-segment-search"))
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("bootstrap: nats connect: %w", err)
		}
		rt.nc = nc
		opts = append(opts, app.WithPublisher(progress.NewNATSPublisher(nc, cfg.ProgressSubject, origin, log)))
		log.Info("progress bridge enabled", "url", cfg.NATSURL, "subject", cfg.ProgressSubject)
	}

	rt.App = app.New(store, NewProviders(cfg, log), opts...)

	if rt.nc != nil {
		sub, err := progress.RelayNATS(rt.nc, cfg.ProgressSubject, origin, rt.App.Progress())
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("bootstrap: nats relay: %w", err)
		}
		rt.relay = sub
	}
	return rt, nil
}

// OpenStore opens the configured backend and, when QDRANT_URL is set,
// wraps it with the Qdrant index.
func OpenStore(ctx context.Context, cfg config.Config, log *slog.Logger) (storage.Store, error) {
	var base storage.Store
	switch cfg.Store {
	case config.StorePostgres:
		conn, err := db.NewConnection(ctx, db.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		base = postgres.NewStore(conn)
	case config.StoreBolt:
		s, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		log.Info("opened bolt store", "path", cfg.BoltPath)
		base = s
	default:
		return nil, fmt.Errorf("bootstrap: unknown store %q", cfg.Store)
	}

	if cfg.QdrantURL == "" {
		return base, nil
	}
	idx, err := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbeddingDims, base)
	if err != nil {
		base.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		idx.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	log.Info("qdrant index enabled", "url", cfg.QdrantURL, "collection", cfg.QdrantCollection)
	return idx, nil
}

// NewProviders picks the provider adapters. Metadata comes from the YouTube
// Data API when a key is set and from yt-dlp otherwise.
func NewProviders(cfg config.Config, log *slog.Logger) app.Providers {
	ai := openai.New(openai.Config{
		APIKey:             cfg.OpenAIAPIKey,
		BaseURL:            cfg.OpenAIBaseURL,
		EmbeddingModel:     cfg.EmbeddingModel,
		Dimensions:         cfg.EmbeddingDims,
		TranscriptionModel: cfg.TranscriptionModel,
		SummaryModel:       cfg.SummaryModel,
	}, log)
	downloader := media.NewDownloader(cfg.WorkDir, cfg.YTDLPFormat, log)

	p := app.Providers{
		Metadata:    downloader,
		Downloader:  downloader,
		Segmenter:   media.NewSegmenter(log),
		Transcriber: ai,
		Embedder:    ai,
	}
	if cfg.YouTubeAPIKey != "" {
		p.Metadata = youtube.NewClient(cfg.YouTubeAPIKey)
	}
	if cfg.Transcriber == config.TranscriberLemonfox {
		p.Transcriber = lemonfox.NewTranscriber(cfg.LemonfoxAPIKey)
	}
	if cfg.SummaryModel != "" {
		p.Summarizer = ai
	}
	return p
}

// LoadConfig reads and validates configuration from the environment.
func LoadConfig(args []string) (config.Config, error) {
	cfg, err := config.Load(args)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// NewLogger returns the JSON stdout logger every command installs as default.
func NewLogger(level slog.Level) *slog.Logger {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log
}

// Describe renders an ingestion error for command-line output.
func Describe(err error) string {
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		return fmt.Sprintf("%s: %s", pe.Kind, pe.Message())
	}
	return err.Error()
}
