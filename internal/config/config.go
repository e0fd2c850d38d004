package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/esgcompare/internal/metric"
)

type Config struct {
	Port     string
	LogLevel string

	// Auth
	APIKey string

	// Upload limits
	MaxUploadBytes int64
	MaxFiles       int

	// Job layer
	WorkerCount  int
	MaxQueueSize int
	JobTTL       time.Duration

	// Pipeline
	MaxConcurrentDocuments int
	ExtractTimeout         time.Duration
	MaxAttempts            int
	FuzzyThreshold         float64
	PagesPerPart           int
	MaxPartTokens          int
	MetricCategories       []string

	// Extraction service
	ExtractProvider      string // claude or gemini
	AnthropicAPIKey      string
	AnthropicModel       string
	GCPProject           string
	GCPRegion            string
	GeminiModel          string
	ExtractRatePerMinute float64
	ExtractBurst         int

	// Extraction cache
	CacheBackend     string
	CacheDir         string
	CacheDatabaseURL string
	CacheBucket      string
	CacheCollection  string
	CachePrefix      string
	CacheTTL         time.Duration

	// Pathstore connection (cache backend)
	PathstoreURL    string
	PathstoreAPIKey string

	// PDF
	PDFFallbackPdftotext bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:     envOr("PORT", "8090"),
		LogLevel: envOr("LOG_LEVEL", "info"),

		APIKey: os.Getenv("ESGCOMPARE_API_KEY"),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		MaxFiles:       envInt("MAX_FILES", 20),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),
		JobTTL:       envDuration("JOB_TTL", 1*time.Hour),

		MaxConcurrentDocuments: envInt("MAX_CONCURRENT_DOCUMENTS", 4),
		ExtractTimeout:         envDuration("EXTRACT_TIMEOUT", 120*time.Second),
		MaxAttempts:            envInt("MAX_ATTEMPTS", 3),
		FuzzyThreshold:         envFloat("FUZZY_THRESHOLD", 0.75),
		PagesPerPart:           envInt("PAGES_PER_PART", 5),
		MaxPartTokens:          envInt("MAX_PART_TOKENS", 6000),
		MetricCategories:       envList("METRIC_CATEGORIES", nil),

		ExtractProvider:      strings.ToLower(envOr("EXTRACT_PROVIDER", "claude")),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:       envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		GCPProject:           os.Getenv("GCP_PROJECT"),
		GCPRegion:            envOr("GCP_REGION", "us-central1"),
		GeminiModel:          envOr("GEMINI_MODEL", "gemini-1.5-pro"),
		ExtractRatePerMinute: envFloat("EXTRACT_RATE_PER_MINUTE", 50),
		ExtractBurst:         envInt("EXTRACT_BURST", 4),

		CacheBackend:     strings.ToLower(envOr("CACHE_BACKEND", "file")),
		CacheDir:         envOr("CACHE_DIR", ".esgcompare-cache"),
		CacheDatabaseURL: os.Getenv("CACHE_DATABASE_URL"),
		CacheBucket:      os.Getenv("CACHE_BUCKET"),
		CacheCollection:  envOr("CACHE_COLLECTION", "extraction_cache"),
		CachePrefix:      os.Getenv("CACHE_PREFIX"),
		CacheTTL:         envDuration("CACHE_TTL", 0),

		PathstoreURL:    envOr("PATHSTORE_URL", "http://localhost:8080"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 20
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.MaxConcurrentDocuments <= 0 {
		cfg.MaxConcurrentDocuments = 4
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 120 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = 0.75
	}
	if cfg.PagesPerPart <= 0 {
		cfg.PagesPerPart = 5
	}
	if cfg.MaxPartTokens <= 0 {
		cfg.MaxPartTokens = 6000
	}
	if cfg.ExtractBurst <= 0 {
		cfg.ExtractBurst = 1
	}

	return cfg
}

// Validate checks the keys required by the selected provider and cache
// backend. requireAPIKey is false for the CLI, which serves no HTTP.
func (c Config) Validate(requireAPIKey bool) error {
	if requireAPIKey && c.APIKey == "" {
		return fmt.Errorf("ESGCOMPARE_API_KEY is required")
	}
	switch c.ExtractProvider {
	case "claude":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required")
		}
	case "gemini":
		if c.GCPProject == "" {
			return fmt.Errorf("GCP_PROJECT is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unknown EXTRACT_PROVIDER %q", c.ExtractProvider)
	}
	switch c.CacheBackend {
	case "memory":
	case "file", "sqlite":
		if c.CacheDir == "" {
			return fmt.Errorf("CACHE_DIR is required for the %s cache", c.CacheBackend)
		}
	case "postgres":
		if c.CacheDatabaseURL == "" {
			return fmt.Errorf("CACHE_DATABASE_URL is required for the postgres cache")
		}
	case "gcs":
		if c.CacheBucket == "" {
			return fmt.Errorf("CACHE_BUCKET is required for the gcs cache")
		}
	case "firestore":
		if c.GCPProject == "" {
			return fmt.Errorf("GCP_PROJECT is required for the firestore cache")
		}
	case "pathstore":
		if c.PathstoreAPIKey == "" {
			return fmt.Errorf("PATHSTORE_API_KEY is required for the pathstore cache")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.FuzzyThreshold > 1 {
		return fmt.Errorf("FUZZY_THRESHOLD must be in (0, 1], got %v", c.FuzzyThreshold)
	}
	if _, err := c.Schema(); err != nil {
		return fmt.Errorf("METRIC_CATEGORIES: %w", err)
	}
	return nil
}

// Schema returns the metric categories to extract; all known categories
// when METRIC_CATEGORIES is unset.
func (c Config) Schema() (metric.Schema, error) {
	if len(c.MetricCategories) == 0 {
		return metric.DefaultSchema(), nil
	}
	return metric.NewSchema(c.MetricCategories)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated value, dropping blanks.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
