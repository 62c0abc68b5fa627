// Package api wires the HTTP routes of the segment search service.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"jamesfarrell.me/youtube-segment-search/internal/api/handlers"
	"jamesfarrell.me/youtube-segment-search/internal/api/middleware"
)

type Options struct {
	APIKey     string
	CORSOrigin string
	KeepAlive  time.Duration
	Log        *slog.Logger
}

func NewRouter(svc handlers.Service, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}

	r := mux.NewRouter()

	// Public routes
	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)

	// Protected routes
	protected := r.PathPrefix("").Subrouter()
	protected.Use(mux.MiddlewareFunc(middleware.Auth(opts.APIKey)))

	videoHandler := handlers.NewVideoHandler(svc, log)
	videos := protected.PathPrefix("/videos").Subrouter()
	videos.HandleFunc("", videoHandler.AddVideo).Methods(http.MethodPost)
	videos.HandleFunc("", videoHandler.DeleteVideos).Methods(http.MethodDelete)
	videos.HandleFunc("/{youtubeId}/segments", videoHandler.GetSegments).Methods(http.MethodGet)

	searchHandler := handlers.NewSearchHandler(svc, log)
	protected.HandleFunc("/search", searchHandler.Search).Methods(http.MethodGet)

	statusHandler := handlers.NewStatusHandler(svc, opts.KeepAlive, log)
	protected.HandleFunc("/status/{youtubeId}", statusHandler.Stream).Methods(http.MethodGet)

	return middleware.Chain(r,
		middleware.Recover(log),
		middleware.Logger(log),
		middleware.CORS(opts.CORSOrigin),
		middleware.OTel("youtube-segment-search"),
	)
}
