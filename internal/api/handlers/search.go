package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"jamesfarrell.me/youtube-segment-search/internal/storage/models"
)

type SearchHandler struct {
	svc Service
	log *slog.Logger
}

func NewSearchHandler(svc Service, log *slog.Logger) *SearchHandler {
	return &SearchHandler{svc: svc, log: log}
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, h.log, http.StatusBadRequest, "Search query is required")
		return
	}
	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, h.log, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	results, err := h.svc.Query(r.Context(), q, limit)
	if err != nil {
		h.log.Error("search", "query", q, "err", err)
		writeError(w, h.log, http.StatusInternalServerError, "Search failed")
		return
	}
	if results == nil {
		results = []models.SegmentResult{}
	}
	writeJSON(w, h.log, http.StatusOK, map[string]any{"results": results})
}
