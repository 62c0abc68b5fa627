// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          string
	ServiceAPIKey string
	CORSOrigin    string
	LogLevel      slog.Level

	Store       string
	DatabaseURL string
	BoltPath    string

	QdrantURL        string
	QdrantCollection string

	NATSURL         string
	ProgressSubject string

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	EmbeddingModel     string
	EmbeddingDims      int
	TranscriptionModel string
	SummaryModel       string
	Transcriber        string
	LemonfoxAPIKey     string

	YouTubeAPIKey string
	YTDLPFormat   string
	WorkDir       string

	SegmentDuration   time.Duration
	CacheTTL          time.Duration
	KeepAliveInterval time.Duration
}

const (
	StorePostgres = "postgres"
	StoreBolt     = "bolt"

	TranscriberOpenAI   = "openai"
	TranscriberLemonfox = "lemonfox"
)

// Load reads the environment. args are the command-line arguments after the
// program name; the first one, if present, selects DATABASE_URL_<ID>.
func Load(args []string) (Config, error) {
	var errs []error
	dur := func(key string, fallback time.Duration) time.Duration {
		d, err := envDuration(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	dims, err := envInt("EMBEDDING_DIMENSIONS", 1536)
	if err != nil {
		errs = append(errs, err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(envOr("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	dbURL := DatabaseURL(args)
	store := envOr("STORE", "")
	if store == "" {
		store = StoreBolt
		if dbURL != "" {
			store = StorePostgres
		}
	}

	cfg := Config{
		Port:          envOr("PORT", "8080"),
		ServiceAPIKey: os.Getenv("SERVICE_API_KEY"),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
		LogLevel:      level,

		Store:       store,
		DatabaseURL: dbURL,
		BoltPath:    envOr("BOLT_PATH", "segments.db"),

		QdrantURL:        os.Getenv("QDRANT_URL"),
		QdrantCollection: envOr("QDRANT_COLLECTION", "segments"),

		NATSURL:         os.Getenv("NATS_URL"),
		ProgressSubject: envOr("NATS_PROGRESS_SUBJECT", "ingest.progress"),

		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		EmbeddingModel:     envOr("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDims:      dims,
		TranscriptionModel: envOr("TRANSCRIPTION_MODEL", "whisper-1"),
		SummaryModel:       os.Getenv("SUMMARY_MODEL"),
		Transcriber:        envOr("TRANSCRIBER", TranscriberOpenAI),
		LemonfoxAPIKey:     os.Getenv("LEMONFOX_API_KEY"),

		YouTubeAPIKey: os.Getenv("YOUTUBE_API_KEY"),
		YTDLPFormat:   envOr("YTDLP_FORMAT", "best[height<=720]"),
		WorkDir:       envOr("WORK_DIR", "temp"),

		SegmentDuration:   dur("SEGMENT_DURATION", 30*time.Second),
		CacheTTL:          dur("CACHE_TTL", 24*time.Hour),
		KeepAliveInterval: dur("KEEPALIVE_INTERVAL", 5*time.Second),
	}
	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var missing []string
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreBolt:
		if c.BoltPath == "" {
			missing = append(missing, "BOLT_PATH")
		}
	default:
		return fmt.Errorf("config: unknown STORE %q", c.Store)
	}
	switch c.Transcriber {
	case TranscriberOpenAI:
	case TranscriberLemonfox:
		if c.LemonfoxAPIKey == "" {
			missing = append(missing, "LEMONFOX_API_KEY")
		}
	default:
		return fmt.Errorf("config: unknown TRANSCRIBER %q", c.Transcriber)
	}
	if c.SegmentDuration <= 0 {
		return fmt.Errorf("config: SEGMENT_DURATION must be positive")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DatabaseURL returns DATABASE_URL_<ID> where ID is the first argument
// (default "DEFAULT"), falling back to DATABASE_URL.
func DatabaseURL(args []string) string {
	dbID := "DEFAULT"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		dbID = strings.ToUpper(args[0])
	}
	if url := os.Getenv("DATABASE_URL_" + dbID); url != "" {
		return url
	}
	return os.Getenv("DATABASE_URL")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// envDuration accepts Go durations ("30s") or plain seconds ("30").
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
