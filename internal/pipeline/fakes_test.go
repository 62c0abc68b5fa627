package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"jamesfarrell.me/youtube-segment-search/internal/progress"
)

type fakeMetadata struct {
	videos map[string]VideoDetails
	err    error
}

func (f *fakeMetadata) VideoDetails(_ context.Context, id string) (*VideoDetails, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.videos[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// fakeDownloader writes a placeholder media file under dir.
type fakeDownloader struct {
	dir   string
	err   error
	block chan struct{}
	paths []string
}

func (f *fakeDownloader) Download(ctx context.Context, id string) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	p := filepath.Join(f.dir, id+".mp4")
	if err := os.WriteFile(p, []byte("media"), 0o600); err != nil {
		return "", err
	}
	f.paths = append(f.paths, p)
	return p, nil
}

// fakeSegmenter creates chunk files and reports progress in steps,
// repeating the middle value to exercise deduplication.
type fakeSegmenter struct {
	chunks     int
	err        error
	audioErrAt int
	audio      []string
}

func (f *fakeSegmenter) Split(_ context.Context, path string, _ time.Duration, onProgress func(float64)) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for i := 0; i < f.chunks; i++ {
		p := fmt.Sprintf("%s.chunk%03d.mp4", strings.TrimSuffix(path, ".mp4"), i)
		if err := os.WriteFile(p, []byte("chunk"), 0o600); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	for _, pct := range []float64{0, 50, 50, 40, 100} {
		onProgress(pct)
	}
	return out, nil
}

func (f *fakeSegmenter) ExtractAudio(_ context.Context, chunk string) (string, error) {
	n := len(f.audio) + 1
	if f.audioErrAt == n {
		f.audio = append(f.audio, "")
		return "", errors.New("ffmpeg exited 1")
	}
	p := chunk + ".mp3"
	if err := os.WriteFile(p, []byte("audio"), 0o600); err != nil {
		return "", err
	}
	f.audio = append(f.audio, p)
	return p, nil
}

type fakeTranscriber struct {
	errAt int
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio string) (string, error) {
	f.calls++
	if f.calls == f.errAt {
		return "", errors.New("whisper unavailable")
	}
	return fmt.Sprintf("transcript number %d about zoo animals", f.calls), nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1, float32(f.calls)}, nil
}

type fakeSummarizer struct {
	err error
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "summary: " + text[:5], nil
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Publish(_ context.Context, _ string, ev progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}
