// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInstanceRequired is returned when PEERTUBE_INSTANCE is not set.
	ErrInstanceRequired = errors.New("config: PEERTUBE_INSTANCE is required")
	// ErrUsernameRequired is returned when PEERTUBE_USERNAME is not set.
	ErrUsernameRequired = errors.New("config: PEERTUBE_USERNAME is required")
	// ErrPasswordRequired is returned when PEERTUBE_PASSWORD is not set.
	ErrPasswordRequired = errors.New("config: PEERTUBE_PASSWORD is required")
	// ErrInvalidConfig is returned when a configuration value fails validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config holds all configuration for the application.
type Config struct {
	// PeerTube settings
	InstanceURL    string `env:"PEERTUBE_INSTANCE, required" json:"instance_url" validate:"url"`
	Username       string `env:"PEERTUBE_USERNAME, required" json:"username"`
	Password       string `env:"PEERTUBE_PASSWORD, required" json:"-"` // Masked in JSON
	UploadEndpoint string `env:"PEERTUBE_UPLOAD_ENDPOINT" json:"upload_endpoint,omitempty" validate:"omitempty,url"`

	// Catalog settings
	CatalogPath string `env:"CATALOG_PATH, default=metadata.json" json:"catalog_path"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/peertube-batch" json:"temp_dir"`

	// Thumbnail pipeline settings
	SegmentSeconds     int           `env:"SEGMENT_SECONDS, default=10" json:"segment_seconds" validate:"min=1,max=120"`
	ThumbnailTimestamp float64       `env:"THUMBNAIL_TIMESTAMP, default=4" json:"thumbnail_timestamp" validate:"min=0"`
	FetchMaxAttempts   int           `env:"FETCH_MAX_ATTEMPTS, default=3" json:"fetch_max_attempts" validate:"min=1,max=10"`
	FetchBackoff       time.Duration `env:"FETCH_BACKOFF, default=2s" json:"fetch_backoff"`
	FetchTimeout       time.Duration `env:"FETCH_TIMEOUT, default=120s" json:"fetch_timeout"`
	ProbeTimeout       time.Duration `env:"PROBE_TIMEOUT, default=30s" json:"probe_timeout"`

	// Optional S3 settings for the thumbnail archive
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Optional YouTube settings. The OAuth2 flow that produces the token
	// lives outside this tool; only a ready-to-use bearer token is accepted.
	YouTubeAccessToken string `env:"YOUTUBE_ACCESS_TOKEN" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// ArchiveEnabled returns true if S3 thumbnail archiving is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// YouTubeEnabled returns true if a YouTube access token is configured.
func (c *Config) YouTubeEnabled() bool {
	return c.YouTubeAccessToken != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "PEERTUBE_INSTANCE") {
			return nil, ErrInstanceRequired
		}
		if strings.Contains(err.Error(), "PEERTUBE_USERNAME") {
			return nil, ErrUsernameRequired
		}
		if strings.Contains(err.Error(), "PEERTUBE_PASSWORD") {
			return nil, ErrPasswordRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.InstanceURL = strings.TrimRight(cfg.InstanceURL, "/")
	if cfg.UploadEndpoint == "" {
		cfg.UploadEndpoint = cfg.InstanceURL
	} else {
		cfg.UploadEndpoint = strings.TrimRight(cfg.UploadEndpoint, "/")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all configuration values are well-formed.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{InstanceURL: %s, Username: %s, UploadEndpoint: %s, CatalogPath: %s, TempDir: %s, SegmentSeconds: %d, ThumbnailTimestamp: %.1f, FetchMaxAttempts: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.InstanceURL,
		c.Username,
		c.UploadEndpoint,
		c.CatalogPath,
		c.TempDir,
		c.SegmentSeconds,
		c.ThumbnailTimestamp,
		c.FetchMaxAttempts,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
