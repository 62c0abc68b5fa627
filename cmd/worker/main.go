// Command worker ingests videos announced with NOTIFY on the ingest_video
// channel. The payload is a YouTube id or {"youtubeId": "..."}.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lib/pq"

	"jamesfarrell.me/youtube-segment-search/internal/app"
	"jamesfarrell.me/youtube-segment-search/internal/bootstrap"
	"jamesfarrell.me/youtube-segment-search/internal/config"
	"jamesfarrell.me/youtube-segment-search/internal/pipeline"
	"jamesfarrell.me/youtube-segment-search/internal/storage/db"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

const channel = "ingest_video"

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "err", err)
	}

	cfg, err := bootstrap.LoadConfig(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := bootstrap.NewLogger(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		log.Error("worker needs DATABASE_URL for LISTEN/NOTIFY")
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	listener := pq.NewListener(cfg.DatabaseURL, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Warn("listener event", "event", ev, "err", err)
			}
		})
	defer listener.Close()

	if err := listener.Listen(channel); err != nil {
		return err
	}
	log.Info("listening for videos", "channel", channel, "db", db.MaskDatabaseURL(cfg.DatabaseURL))

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; notifications sent meanwhile are lost.
			if n == nil {
				log.Info("listener reconnected")
				continue
			}
			id := videoID(n.Extra)
			if id == "" {
				log.Warn("ignoring notification without a valid video id", "payload", n.Extra)
				continue
			}
			ingest(ctx, rt.App, id, log)
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				log.Warn("listener ping", "err", err)
			}
			if n, err := rt.App.ReapExpiredCache(ctx); err != nil {
				log.Warn("reap cache", "err", err)
			} else if n > 0 {
				log.Info("reaped expired cache entries", "count", n)
			}
		}
	}
}

func ingest(ctx context.Context, a *app.App, id string, log *slog.Logger) {
	start := time.Now()
	err := a.ProcessVideo(ctx, id)
	switch {
	case err == nil:
		log.Info("video ingested", "video_id", id, "duration", time.Since(start))
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		log.Info("video already being ingested", "video_id", id)
	default:
		log.Error("video ingestion failed", "video_id", id, "err", bootstrap.Describe(err))
	}
}

// videoID accepts a bare id or a JSON object with youtubeId or url. It
// returns "" unless the result is a well-formed video id.
func videoID(payload string) string {
	payload = strings.TrimSpace(payload)
	id := payload
	if strings.HasPrefix(payload, "{") {
		var req models.VideoRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return ""
		}
		id = req.ExternalID()
	}
	if !models.ValidExternalID(id) {
		return ""
	}
	return id
}
