package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/feed"
)

// envVars lists every variable Load reads; each test starts with all of them empty.
var envVars = []string{
	"SKYFEED_CONFIG", "SKYFEED_DATABASE_URL", "SKYFEED_HTTP_ADDR", "SKYFEED_NATS_URL",
	"SKYFEED_AUTH_TOKEN", "SKYFEED_LOG_LEVEL", "SKYFEED_LOG_FORMAT", "SKYFEED_FEED_URL",
	"SKYFEED_RECONNECT_DELAY", "SKYFEED_FLUSH_SIZE", "SKYFEED_FLUSH_INTERVAL",
	"SKYFEED_RETENTION", "SKYFEED_EVICT_INTERVAL", "SKYFEED_QUERY_LIMIT",
	"SKYFEED_SNAPSHOT_INTERVAL", "SKYFEED_SNAPSHOT_S3_BUCKET", "SKYFEED_SNAPSHOT_S3_ENDPOINT",
	"SKYFEED_SNAPSHOT_S3_REGION", "SKYFEED_SNAPSHOT_S3_KEY", "SKYFEED_SNAPSHOT_GIT_REPO",
	"SKYFEED_SNAPSHOT_GIT_FILE", "SKYFEED_SNAPSHOT_GIT_BRANCH",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearAllEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DatabaseURL != DefaultDatabaseURL {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.FeedURL != feed.DefaultURL {
		t.Errorf("FeedURL = %q", cfg.FeedURL)
	}
	if cfg.ReconnectDelay.Duration != 5*time.Second {
		t.Errorf("ReconnectDelay = %v", cfg.ReconnectDelay)
	}
	if cfg.FlushSize != 100 || cfg.FlushInterval.Duration != 300*time.Millisecond {
		t.Errorf("flush = %d / %v", cfg.FlushSize, cfg.FlushInterval)
	}
	if cfg.Retention.Duration != time.Hour || cfg.EvictInterval.Duration != time.Minute {
		t.Errorf("retention = %v / %v", cfg.Retention, cfg.EvictInterval)
	}
	if cfg.QueryLimit != 100 {
		t.Errorf("QueryLimit = %d", cfg.QueryLimit)
	}
	if cfg.SnapshotInterval.Duration != 0 {
		t.Errorf("SnapshotInterval = %v, want disabled", cfg.SnapshotInterval)
	}
}

func TestLoad_Env(t *testing.T) {
	for _, tc := range []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, c *Config)
	}{
		{
			name: "Addresses",
			env: map[string]string{
				"SKYFEED_DATABASE_URL": "postgres://db:5432/skyfeed",
				"SKYFEED_HTTP_ADDR":    ":3000",
				"SKYFEED_NATS_URL":     "nats://localhost:4222",
			},
			check: func(t *testing.T, c *Config) {
				if c.DatabaseURL != "postgres://db:5432/skyfeed" || c.HTTPAddr != ":3000" || c.NATSURL != "nats://localhost:4222" {
					t.Errorf("got %+v", c)
				}
			},
		},
		{
			name: "Tuning",
			env: map[string]string{
				"SKYFEED_FLUSH_SIZE":      "50",
				"SKYFEED_FLUSH_INTERVAL":  "1s",
				"SKYFEED_RETENTION":       "30m",
				"SKYFEED_RECONNECT_DELAY": "2s",
			},
			check: func(t *testing.T, c *Config) {
				if c.FlushSize != 50 || c.FlushInterval.Duration != time.Second ||
					c.Retention.Duration != 30*time.Minute || c.ReconnectDelay.Duration != 2*time.Second {
					t.Errorf("got %+v", c)
				}
			},
		},
		{
			name: "Snapshot",
			env: map[string]string{
				"SKYFEED_SNAPSHOT_INTERVAL":  "5m",
				"SKYFEED_SNAPSHOT_S3_BUCKET": "my-bucket",
				"SKYFEED_SNAPSHOT_GIT_REPO":  "/tmp/repo",
			},
			check: func(t *testing.T, c *Config) {
				if c.SnapshotInterval.Duration != 5*time.Minute || c.SnapshotS3Bucket != "my-bucket" ||
					c.SnapshotS3Key != "skyfeed/posts.jsonl" || c.SnapshotGitRepo != "/tmp/repo" ||
					c.SnapshotGitFile != "posts.jsonl" || c.SnapshotGitBranch != "main" {
					t.Errorf("got %+v", c)
				}
			},
		},
		{name: "BadDuration", env: map[string]string{"SKYFEED_RETENTION": "soon"}, wantErr: true},
		{name: "BadInt", env: map[string]string{"SKYFEED_FLUSH_SIZE": "many"}, wantErr: true},
		{name: "ZeroFlushSize", env: map[string]string{"SKYFEED_FLUSH_SIZE": "0"}, wantErr: true},
		{name: "NegativeSnapshot", env: map[string]string{"SKYFEED_SNAPSHOT_INTERVAL": "-1m"}, wantErr: true},
		{name: "BadLogFormat", env: map[string]string{"SKYFEED_LOG_FORMAT": "xml"}, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			tc.check(t, cfg)
		})
	}
}

func TestLoad_File(t *testing.T) {
	clearAllEnv(t)

	path := filepath.Join(t.TempDir(), "skyfeed.toml")
	contents := `
database_url = "postgres://file/skyfeed"
http_addr = ":9999"
flush_interval = "1s"
retention = "2h"
query_limit = 25
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SKYFEED_CONFIG", path)
	t.Setenv("SKYFEED_HTTP_ADDR", ":7000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DatabaseURL != "postgres://file/skyfeed" {
		t.Errorf("DatabaseURL = %q, want file value", cfg.DatabaseURL)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Errorf("HTTPAddr = %q, want env override", cfg.HTTPAddr)
	}
	if cfg.FlushInterval.Duration != time.Second || cfg.Retention.Duration != 2*time.Hour {
		t.Errorf("durations = %v / %v", cfg.FlushInterval, cfg.Retention)
	}
	if cfg.QueryLimit != 25 {
		t.Errorf("QueryLimit = %d", cfg.QueryLimit)
	}
	// Untouched keys keep their defaults.
	if cfg.FlushSize != 100 {
		t.Errorf("FlushSize = %d, want default", cfg.FlushSize)
	}
}

func TestLoad_FileErrors(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("SKYFEED_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte(`retention = "forever"`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SKYFEED_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration in config file")
	}
}
