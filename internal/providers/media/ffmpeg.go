package media

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Segmenter cuts media into fixed-length chunks and extracts mp3 audio
// with ffmpeg. Chunks are written next to the source file.
type Segmenter struct {
	log *slog.Logger
}

func NewSegmenter(log *slog.Logger) *Segmenter {
	return &Segmenter{log: log}
}

func chunkPrefix(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_seg_"
}

// Split writes <name>_seg_NNN.mp4 chunks of nominal length and returns them
// in playback order.
func (s *Segmenter) Split(ctx context.Context, path string, nominal time.Duration, onProgress func(float64)) ([]string, error) {
	prefix := chunkPrefix(path)
	stale, _ := filepath.Glob(prefix + "*.mp4")
	for _, p := range stale {
		os.Remove(p)
	}

	total, err := s.probeDuration(ctx, path)
	if err != nil {
		s.log.Warn("ffprobe failed, segmenting without progress", "path", path, "err", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", path,
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(nominal.Seconds(), 'f', -1, 64),
		"-reset_timestamps", "1",
		"-progress", "pipe:1", "-nostats",
		prefix+"%03d.mp4")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("media: ffmpeg stdout: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("media: start ffmpeg: %w", err)
	}

	readProgress(stdout, total, onProgress)

	if err := cmd.Wait(); err != nil {
		chunks, _ := filepath.Glob(prefix + "*.mp4")
		for _, p := range chunks {
			os.Remove(p)
		}
		return nil, fmt.Errorf("media: ffmpeg segment: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	chunks, err := filepath.Glob(prefix + "*.mp4")
	if err != nil {
		return nil, err
	}
	sortChunks(chunks, prefix)
	onProgress(100)
	s.log.Info("segmented video", "path", path, "chunks", len(chunks))
	return chunks, nil
}

// ExtractAudio writes the chunk's audio track as <chunk>.mp3.
func (s *Segmenter) ExtractAudio(ctx context.Context, chunkPath string) (string, error) {
	outputPath := chunkPath + ".mp3"
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", chunkPath,
		"-vn", "-f", "mp3",
		outputPath)
	if err := run(cmd); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("media: extract audio: %w", err)
	}
	return outputPath, nil
}

func (s *Segmenter) probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path).Output()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
}

// readProgress consumes ffmpeg -progress output and reports percent of
// total seconds. Nothing is reported when total is unknown.
func readProgress(r io.Reader, total float64, onProgress func(float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok || total <= 0 {
			continue
		}
		switch key {
		// out_time_ms is in microseconds as well.
		case "out_time_us", "out_time_ms":
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || us < 0 {
				continue
			}
			pct := float64(us) / 1e6 / total * 100
			if pct > 100 {
				pct = 100
			}
			onProgress(pct)
		case "progress":
			if value == "end" {
				onProgress(100)
			}
		}
	}
	io.Copy(io.Discard, r)
}

// sortChunks orders chunk paths by their numeric suffix.
func sortChunks(chunks []string, prefix string) {
	index := func(p string) int {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(p, prefix), ".mp4"))
		if err != nil {
			return -1
		}
		return n
	}
	sort.Slice(chunks, func(i, j int) bool { return index(chunks[i]) < index(chunks[j]) })
}
