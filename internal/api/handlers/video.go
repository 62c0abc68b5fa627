package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"jamesfarrell.me/youtube-segment-search/internal/app"
	"jamesfarrell.me/youtube-segment-search/internal/pipeline"
	"jamesfarrell.me/youtube-segment-search/internal/storage"
	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

type VideoHandler struct {
	svc Service
	log *slog.Logger
}

func NewVideoHandler(svc Service, log *slog.Logger) *VideoHandler {
	return &VideoHandler{svc: svc, log: log}
}

// AddVideo starts background ingestion and returns at once. Progress is
// available from the status stream.
func (h *VideoHandler) AddVideo(w http.ResponseWriter, r *http.Request) {
	var req models.VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.log, http.StatusBadRequest, "invalid request body")
		return
	}
	id := req.ExternalID()
	if id == "" {
		writeError(w, h.log, http.StatusBadRequest, "youtubeId is required")
		return
	}
	if !models.ValidExternalID(id) {
		writeError(w, h.log, http.StatusBadRequest, "invalid youtubeId")
		return
	}

	switch err := h.svc.StartVideo(id); {
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		writeError(w, h.log, http.StatusConflict, "video is already being processed")
		return
	case err != nil:
		h.log.Error("start ingestion", "video_id", id, "err", err)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to initiate video processing")
		return
	}

	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "processing", "youtubeId": id})
}

// DeleteVideos removes every video, segment and cache entry.
func (h *VideoHandler) DeleteVideos(w http.ResponseWriter, r *http.Request) {
	switch err := h.svc.DeleteAll(r.Context()); {
	case errors.Is(err, app.ErrIngestionInFlight):
		writeError(w, h.log, http.StatusConflict, "ingestion in progress")
		return
	case err != nil:
		h.log.Error("delete all", "err", err)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to delete videos")
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "success"})
}

type segmentsResponse struct {
	Video    *models.Video    `json:"video"`
	Segments []models.Segment `json:"segments"`
}

func (h *VideoHandler) GetSegments(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["youtubeId"]

	video, segs, err := h.svc.Segments(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, h.log, http.StatusNotFound, "Video not found")
			return
		}
		h.log.Error("list segments", "video_id", id, "err", err)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to load segments")
		return
	}
	if segs == nil {
		segs = []models.Segment{}
	}
	writeJSON(w, h.log, http.StatusOK, segmentsResponse{Video: video, Segments: segs})
}
