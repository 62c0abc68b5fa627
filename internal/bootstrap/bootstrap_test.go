package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"jamesfarrell.me/youtube-segment-search/internal/config"
	"jamesfarrell.me/youtube-segment-search/internal/pipeline"
	"jamesfarrell.me/youtube-segment-search/internal/progress"
	"jamesfarrell.me/youtube-segment-search/internal/providers/lemonfox"
	"jamesfarrell.me/youtube-segment-search/internal/providers/media"
	"jamesfarrell.me/youtube-segment-search/internal/providers/youtube"
)

var discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func boltConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Store:           config.StoreBolt,
		BoltPath:        filepath.Join(t.TempDir(), "segments.db"),
		OpenAIAPIKey:    "sk-test",
		EmbeddingDims:   1536,
		Transcriber:     config.TranscriberOpenAI,
		WorkDir:         t.TempDir(),
		SegmentDuration: 30 * time.Second,
		CacheTTL:        time.Hour,
		ProgressSubject: progress.DefaultSubjectPrefix,
	}
}

func TestNewProviders(t *testing.T) {
	cfg := boltConfig(t)

	p := NewProviders(cfg, discardLog)
	if _, ok := p.Metadata.(*media.Downloader); !ok {
		t.Errorf("Metadata = %T, want yt-dlp without an API key", p.Metadata)
	}
	if p.Summarizer != nil {
		t.Error("Summarizer set without SUMMARY_MODEL")
	}

	cfg.YouTubeAPIKey = "yt"
	cfg.Transcriber = config.TranscriberLemonfox
	cfg.SummaryModel = "gpt-4o-mini"
	p = NewProviders(cfg, discardLog)
	if _, ok := p.Metadata.(*youtube.Client); !ok {
		t.Errorf("Metadata = %T, want YouTube client", p.Metadata)
	}
	if _, ok := p.Transcriber.(*lemonfox.Transcriber); !ok {
		t.Errorf("Transcriber = %T, want lemonfox", p.Transcriber)
	}
	if p.Summarizer == nil {
		t.Error("Summarizer not set")
	}
}

func TestOpenStoreUnknown(t *testing.T) {
	cfg := boltConfig(t)
	cfg.Store = "sqlite"
	if _, err := OpenStore(context.Background(), cfg, discardLog); err == nil {
		t.Fatal("expected error")
	}
}

func TestBuildBolt(t *testing.T) {
	rt, err := Build(context.Background(), boltConfig(t), discardLog)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer rt.Close()

	ctx := context.Background()
	if err := rt.App.DeleteAll(ctx); err != nil {
		t.Errorf("DeleteAll() on empty store error = %v", err)
	}
	if n, err := rt.App.ReapExpiredCache(ctx); err != nil || n != 0 {
		t.Errorf("ReapExpiredCache() = %d, %v", n, err)
	}
	if _, _, err := rt.App.Segments(context.Background(), "missing"); err == nil {
		t.Error("Segments() on empty store should fail")
	}
}

func runNATS(t *testing.T) string {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

func TestBuildRelaysProgressAcrossRuntimes(t *testing.T) {
	url := runNATS(t)
	ctx := context.Background()

	cfg := boltConfig(t)
	cfg.NATSURL = url
	rt, err := Build(ctx, cfg, discardLog)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer rt.Close()

	sub := rt.App.Subscribe("jNQXAC9IVRw")
	defer sub.Close()

	// A second process publishing under the same subject prefix.
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	if err := rt.nc.Flush(); err != nil {
		t.Fatal(err)
	}
	remote := progress.NewNATSPublisher(nc, cfg.ProgressSubject, "worker-1", discardLog)
	remote.Publish(ctx, "jNQXAC9IVRw", progress.Event{Stage: progress.Downloading, Message: "Downloading video"})

	select {
	case ev := <-sub.Events():
		if ev.Stage != progress.Downloading || ev.Origin != "worker-1" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relayed event not received")
	}
}

func TestDescribe(t *testing.T) {
	plain := errors.New("boom")
	if got := Describe(plain); got != "boom" {
		t.Errorf("Describe(plain) = %q", got)
	}
	wrapped := fmt.Errorf("ingest: %w", &pipeline.Error{Kind: pipeline.DownloadFailed, Err: errors.New("403")})
	if got := Describe(wrapped); !strings.HasPrefix(got, pipeline.DownloadFailed.String()+": ") {
		t.Errorf("Describe(pipeline error) = %q, want kind-prefixed message", got)
	}
}
