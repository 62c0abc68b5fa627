// Command seed ingests a sample video and prints the results of a sample
// query.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"jamesfarrell.me/youtube-segment-search/internal/bootstrap"
)

func main() {
	var (
		video = flag.String("video", "jNQXAC9IVRw", "YouTube id to ingest")
		query = flag.String("query", "zoo animals", "query to run after ingestion")
		limit = flag.Int("limit", 5, "number of results to print")
		reset = flag.Bool("reset", false, "delete all videos before ingesting")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "err", err)
	}
	cfg, err := bootstrap.LoadConfig(flag.Args())
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := bootstrap.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	if *reset {
		if err := rt.App.DeleteAll(ctx); err != nil {
			log.Error("reset failed", "err", err)
			return
		}
	}

	sub := rt.App.Subscribe(*video)
	defer sub.Close()
	go func() {
		for ev := range sub.Events() {
			if ev.Percent != nil {
				fmt.Printf("[%s] %s (%.0f%%)\n", ev.Stage, ev.Message, *ev.Percent)
			} else {
				fmt.Printf("[%s] %s\n", ev.Stage, ev.Message)
			}
		}
	}()

	if err := rt.App.ProcessVideo(ctx, *video); err != nil {
		log.Error("ingestion failed", "video_id", *video, "err", bootstrap.Describe(err))
		return
	}

	results, err := rt.App.Query(ctx, *query, *limit)
	if err != nil {
		log.Error("query failed", "query", *query, "err", err)
		return
	}
	fmt.Printf("\n%d results for %q\n", len(results), *query)
	for i, r := range results {
		dist := "-"
		if r.Distance != nil {
			dist = fmt.Sprintf("%.4f", *r.Distance)
		}
		fmt.Printf("%2d. %s [%.1fs-%.1fs] distance=%s\n    %s\n", i+1, r.Video.Title, r.StartTime, r.EndTime, dist, r.Transcript)
	}
}
