// Package media wraps the yt-dlp, ffmpeg and ffprobe binaries.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"jamesfarrell.me/youtube-segment-search/internal/pipeline"
)

const DefaultFormat = "best[height<=720]"

func watchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// Downloader fetches videos with yt-dlp into dir.
type Downloader struct {
	dir    string
	format string
	log    *slog.Logger
}

func NewDownloader(dir, format string, log *slog.Logger) *Downloader {
	if format == "" {
		format = DefaultFormat
	}
	return &Downloader{dir: dir, format: format, log: log}
}

func (d *Downloader) Download(ctx context.Context, videoID string) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("media: create work dir: %w", err)
	}
	outputPath := filepath.Join(d.dir, videoID+".mp4")

	cmd := exec.CommandContext(ctx, "yt-dlp",
		"-f", d.format,
		"--no-playlist",
		"--force-overwrites",
		"-o", outputPath,
		watchURL(videoID))

	d.log.Info("downloading video", "video", videoID, "path", outputPath)
	if err := run(cmd); err != nil {
		return "", fmt.Errorf("media: yt-dlp download: %w", err)
	}
	return outputPath, nil
}

// videoInfo is the subset of yt-dlp's info JSON we read.
type videoInfo struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// VideoDetails reads title and duration through yt-dlp, for deployments
// without a YouTube Data API key.
func (d *Downloader) VideoDetails(ctx context.Context, videoID string) (*pipeline.VideoDetails, error) {
	cmd := exec.CommandContext(ctx, "yt-dlp", "--dump-single-json", "--skip-download", "--no-playlist", watchURL(videoID))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if unavailable(stderr.String()) {
			return nil, fmt.Errorf("media: %s: %w", videoID, pipeline.ErrVideoNotFound)
		}
		return nil, fmt.Errorf("media: yt-dlp info: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseVideoInfo(stdout.Bytes())
}

func parseVideoInfo(data []byte) (*pipeline.VideoDetails, error) {
	var info videoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("media: decode yt-dlp info: %w", err)
	}
	return &pipeline.VideoDetails{Title: info.Title, Duration: info.Duration}, nil
}

func unavailable(stderr string) bool {
	for _, marker := range []string{"Video unavailable", "Incomplete YouTube ID", "is not a valid URL", "Private video"} {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}

// run executes cmd and folds its stderr into the error.
func run(cmd *exec.Cmd) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, lastLine(msg))
		}
		return err
	}
	return nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
