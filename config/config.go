package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultSearchURL = "https://yandex.ru/images/search?text=%D1%85%D0%B0%D1%82%D0%B0%20%D0%BD%D0%B0%20%D0%BD%D0%B3%20%D0%BC%D0%B5%D0%BC"

var (
	ErrInvalidConfig = errors.New("invalid configuration")

	extractors = []string{"query", "origin", "document"}
)

// Config represents the root configuration structure
type Config struct {
	Log       LogConfig
	Sentry    SentryConfig
	Telemetry TelemetryConfig
	Bot       BotConfig
	Cache     CacheConfig
	Search    SearchConfig
	Decider   DeciderConfig
	HTTP      HTTPConfig
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// SentryConfig contains configuration for Sentry error tracking
type SentryConfig struct {
	DSN         string `env:"SENTRY_DSN"`
	Environment string `env:"SENTRY_ENVIRONMENT" envDefault:"production"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set
type TelemetryConfig struct {
	Endpoint    string `env:"OTEL_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"telegram-image-reply-bot"`
}

// BotConfig contains configuration for bot settings
type BotConfig struct {
	Token    string  `env:"TELEGRAM_TOKEN,required,notEmpty"`
	AdminIDs []int64 `env:"BOT_ADMIN_IDS" envSeparator:","`
}

// CacheConfig contains configuration of the on-disk image cache
type CacheConfig struct {
	Dir       string        `env:"CACHE_DIR" envDefault:"/data"`
	MaxAge    time.Duration `env:"CACHE_MAX_AGE" envDefault:"24h"`
	RateLimit time.Duration `env:"REFRESH_RATE_LIMIT" envDefault:"1h"`
}

// SearchConfig contains configuration of the image search refresh
type SearchConfig struct {
	URL         string        `env:"SEARCH_URL"`
	Extractor   string        `env:"SEARCH_EXTRACTOR" envDefault:"query"`
	Timeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	Retries     int           `env:"HTTP_RETRIES" envDefault:"2"`
	UserAgent   string        `env:"HTTP_USER_AGENT" envDefault:"Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"`
	Concurrency int           `env:"DOWNLOAD_CONCURRENCY" envDefault:"4"`
	MaxBytes    int64         `env:"MAX_IMAGE_BYTES" envDefault:"10485760"`
}

// DeciderConfig contains configuration of the reply decision
type DeciderConfig struct {
	Pattern        string `env:"DECIDER_PATTERN"`
	Month          int    `env:"DECIDER_MONTH" envDefault:"12"`
	MinProbability int    `env:"DECIDER_MIN_PROBABILITY" envDefault:"70"`
}

// HTTPConfig enables the HTTP image endpoint when Addr is set
type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR"`
}

// Load creates a new Config instance populated from environment variables.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config: No .env file loaded", "error", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.Search.URL == "" {
		cfg.Search.URL = defaultSearchURL
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if !slices.Contains(extractors, c.Search.Extractor) {
		errs = append(errs, fmt.Errorf("SEARCH_EXTRACTOR must be one of %s, got %q", strings.Join(extractors, ", "), c.Search.Extractor))
	}
	if c.Search.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("DOWNLOAD_CONCURRENCY must be positive, got %d", c.Search.Concurrency))
	}
	if c.Search.Retries < 0 {
		errs = append(errs, fmt.Errorf("HTTP_RETRIES must not be negative, got %d", c.Search.Retries))
	}
	if c.Decider.Month < 0 || c.Decider.Month > 12 {
		errs = append(errs, fmt.Errorf("DECIDER_MONTH must be within 0..12, got %d", c.Decider.Month))
	}
	if c.Decider.MinProbability < 0 || c.Decider.MinProbability > 100 {
		errs = append(errs, fmt.Errorf("DECIDER_MIN_PROBABILITY must be within 0..100, got %d", c.Decider.MinProbability))
	}
	if c.Cache.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_MAX_AGE must be positive, got %s", c.Cache.MaxAge))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(append([]error{ErrInvalidConfig}, errs...)...))
	}

	return nil
}

func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return level, nil
}
