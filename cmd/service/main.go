// Command service serves the ingestion and search HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"jamesfarrell.me/youtube-segment-search/internal/api"
	"jamesfarrell.me/youtube-segment-search/internal/bootstrap"
	"jamesfarrell.me/youtube-segment-search/internal/config"
)

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

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
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

	if cfg.ServiceAPIKey == "" {
		log.Warn("SERVICE_API_KEY not set, API is unauthenticated")
	}

	handler := api.NewRouter(rt.App, api.Options{
		APIKey:     cfg.ServiceAPIKey,
		CORSOrigin: cfg.CORSOrigin,
		KeepAlive:  cfg.KeepAliveInterval,
		Log:        log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", "port", cfg.Port, "store", cfg.Store)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
