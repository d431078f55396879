// Package config loads skyfeed settings from an optional TOML file and
// SKYFEED_* environment variables. Environment variables win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/skyfeed/internal/feed"
)

const DefaultDatabaseURL = "sqlite:skyfeed.db"

type Config struct {
	DatabaseURL string `toml:"database_url"` // SKYFEED_DATABASE_URL (default "sqlite:skyfeed.db")
	HTTPAddr    string `toml:"http_addr"`    // SKYFEED_HTTP_ADDR (default ":8080")
	NATSURL     string `toml:"nats_url"`     // SKYFEED_NATS_URL (optional, empty = no external events)
	AuthToken   string `toml:"auth_token"`   // SKYFEED_AUTH_TOKEN (optional, protects the read API)
	LogLevel    string `toml:"log_level"`    // SKYFEED_LOG_LEVEL (default "info")
	LogFormat   string `toml:"log_format"`   // SKYFEED_LOG_FORMAT ("text" or "json")

	// Feed
	FeedURL        string   `toml:"feed_url"`        // SKYFEED_FEED_URL
	ReconnectDelay Duration `toml:"reconnect_delay"` // SKYFEED_RECONNECT_DELAY (default 5s)

	// Ingest and retention
	FlushSize     int      `toml:"flush_size"`     // SKYFEED_FLUSH_SIZE (default 100)
	FlushInterval Duration `toml:"flush_interval"` // SKYFEED_FLUSH_INTERVAL (default 300ms)
	Retention     Duration `toml:"retention"`      // SKYFEED_RETENTION (default 1h)
	EvictInterval Duration `toml:"evict_interval"` // SKYFEED_EVICT_INTERVAL (default 60s)
	QueryLimit    int      `toml:"query_limit"`    // SKYFEED_QUERY_LIMIT (default 100)

	// Snapshot export
	SnapshotInterval   Duration `toml:"snapshot_interval"`    // SKYFEED_SNAPSHOT_INTERVAL (0 = disabled)
	SnapshotS3Bucket   string   `toml:"snapshot_s3_bucket"`   // SKYFEED_SNAPSHOT_S3_BUCKET (enables S3 when set)
	SnapshotS3Endpoint string   `toml:"snapshot_s3_endpoint"` // SKYFEED_SNAPSHOT_S3_ENDPOINT (custom endpoint for MinIO)
	SnapshotS3Region   string   `toml:"snapshot_s3_region"`   // SKYFEED_SNAPSHOT_S3_REGION (default "us-east-1")
	SnapshotS3Key      string   `toml:"snapshot_s3_key"`      // SKYFEED_SNAPSHOT_S3_KEY (default "skyfeed/posts.jsonl")
	SnapshotGitRepo    string   `toml:"snapshot_git_repo"`    // SKYFEED_SNAPSHOT_GIT_REPO (enables git when set)
	SnapshotGitFile    string   `toml:"snapshot_git_file"`    // SKYFEED_SNAPSHOT_GIT_FILE (default "posts.jsonl")
	SnapshotGitBranch  string   `toml:"snapshot_git_branch"`  // SKYFEED_SNAPSHOT_GIT_BRANCH (default "main")
}

// Duration is a time.Duration that decodes from TOML strings like "300ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		DatabaseURL:       DefaultDatabaseURL,
		HTTPAddr:          ":8080",
		LogLevel:          "info",
		LogFormat:         "text",
		FeedURL:           feed.DefaultURL,
		ReconnectDelay:    Duration{5 * time.Second},
		FlushSize:         100,
		FlushInterval:     Duration{300 * time.Millisecond},
		Retention:         Duration{time.Hour},
		EvictInterval:     Duration{60 * time.Second},
		QueryLimit:        100,
		SnapshotS3Region:  "us-east-1",
		SnapshotS3Key:     "skyfeed/posts.jsonl",
		SnapshotGitFile:   "posts.jsonl",
		SnapshotGitBranch: "main",
	}
}

// Load builds the configuration: defaults, then the TOML file named by
// SKYFEED_CONFIG (if any), then environment variables.
func Load() (*Config, error) {
	c := Defaults()

	if path := os.Getenv("SKYFEED_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("SKYFEED_CONFIG %s: %w", path, err)
		}
	}

	c.DatabaseURL = envOrDefault("SKYFEED_DATABASE_URL", c.DatabaseURL)
	c.HTTPAddr = envOrDefault("SKYFEED_HTTP_ADDR", c.HTTPAddr)
	c.NATSURL = envOrDefault("SKYFEED_NATS_URL", c.NATSURL)
	c.AuthToken = envOrDefault("SKYFEED_AUTH_TOKEN", c.AuthToken)
	c.LogLevel = envOrDefault("SKYFEED_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOrDefault("SKYFEED_LOG_FORMAT", c.LogFormat)
	c.FeedURL = envOrDefault("SKYFEED_FEED_URL", c.FeedURL)
	c.SnapshotS3Bucket = envOrDefault("SKYFEED_SNAPSHOT_S3_BUCKET", c.SnapshotS3Bucket)
	c.SnapshotS3Endpoint = envOrDefault("SKYFEED_SNAPSHOT_S3_ENDPOINT", c.SnapshotS3Endpoint)
	c.SnapshotS3Region = envOrDefault("SKYFEED_SNAPSHOT_S3_REGION", c.SnapshotS3Region)
	c.SnapshotS3Key = envOrDefault("SKYFEED_SNAPSHOT_S3_KEY", c.SnapshotS3Key)
	c.SnapshotGitRepo = envOrDefault("SKYFEED_SNAPSHOT_GIT_REPO", c.SnapshotGitRepo)
	c.SnapshotGitFile = envOrDefault("SKYFEED_SNAPSHOT_GIT_FILE", c.SnapshotGitFile)
	c.SnapshotGitBranch = envOrDefault("SKYFEED_SNAPSHOT_GIT_BRANCH", c.SnapshotGitBranch)

	for _, d := range []struct {
		key string
		dst *Duration
	}{
		{"SKYFEED_RECONNECT_DELAY", &c.ReconnectDelay},
		{"SKYFEED_FLUSH_INTERVAL", &c.FlushInterval},
		{"SKYFEED_RETENTION", &c.Retention},
		{"SKYFEED_EVICT_INTERVAL", &c.EvictInterval},
		{"SKYFEED_SNAPSHOT_INTERVAL", &c.SnapshotInterval},
	} {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", d.key, err)
			}
			d.dst.Duration = parsed
		}
	}

	for _, n := range []struct {
		key string
		dst *int
	}{
		{"SKYFEED_FLUSH_SIZE", &c.FlushSize},
		{"SKYFEED_QUERY_LIMIT", &c.QueryLimit},
	} {
		if v := os.Getenv(n.key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", n.key, err)
			}
			*n.dst = parsed
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return fmt.Errorf("SKYFEED_DATABASE_URL is required")
	case c.FlushSize <= 0:
		return fmt.Errorf("SKYFEED_FLUSH_SIZE must be positive, got %d", c.FlushSize)
	case c.FlushInterval.Duration <= 0:
		return fmt.Errorf("SKYFEED_FLUSH_INTERVAL must be positive, got %s", c.FlushInterval)
	case c.Retention.Duration <= 0:
		return fmt.Errorf("SKYFEED_RETENTION must be positive, got %s", c.Retention)
	case c.EvictInterval.Duration <= 0:
		return fmt.Errorf("SKYFEED_EVICT_INTERVAL must be positive, got %s", c.EvictInterval)
	case c.ReconnectDelay.Duration <= 0:
		return fmt.Errorf("SKYFEED_RECONNECT_DELAY must be positive, got %s", c.ReconnectDelay)
	case c.QueryLimit <= 0:
		return fmt.Errorf("SKYFEED_QUERY_LIMIT must be positive, got %d", c.QueryLimit)
	case c.SnapshotInterval.Duration < 0:
		return fmt.Errorf("SKYFEED_SNAPSHOT_INTERVAL must not be negative, got %s", c.SnapshotInterval)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("SKYFEED_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
