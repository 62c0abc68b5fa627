// Package handlers implements the HTTP endpoints over the application host.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"jamesfarrell.me/youtube-segment-search/internal/progress"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

// Service is the application surface the handlers need.
type Service interface {
	StartVideo(externalID string) error
	Query(ctx context.Context, text string, limit int) ([]models.SegmentResult, error)
	DeleteAll(ctx context.Context) error
	Subscribe(jobID string) *progress.Subscription
	Segments(ctx context.Context, externalID string) (*models.Video, []models.Segment, error)
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	writeJSON(w, log, status, map[string]string{"error": msg})
}

func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
