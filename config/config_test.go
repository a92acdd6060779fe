package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `liqfeed:
  name: "TestFeed"
  version: "1.0"
venue:
  url: "http://127.0.0.1:9999/info"
registry:
  cycle_interval: 20s
  cycle_timeout: 10s
  poll_timeout: 5s
`

// writeTempConfig writes content to a config file inside a temp dir and
// returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Liqfeed.Name != "TestFeed" {
		t.Errorf("unexpected name: %s", cfg.Liqfeed.Name)
	}
	if cfg.Registry.CycleInterval != 20*time.Second {
		t.Errorf("unexpected cycle interval: %s", cfg.Registry.CycleInterval)
	}
	// untouched keys keep their defaults
	if cfg.Registry.StaleThreshold != 5*time.Minute {
		t.Errorf("unexpected stale threshold: %s", cfg.Registry.StaleThreshold)
	}
	if cfg.Registry.Retention != 24*time.Hour {
		t.Errorf("unexpected retention: %s", cfg.Registry.Retention)
	}
	if cfg.Registry.DiscoveryTimeout != 5*time.Second {
		t.Errorf("unexpected discovery timeout: %s", cfg.Registry.DiscoveryTimeout)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("LIQFEED_VENUE_URL", "http://override.local/info")
	t.Setenv("REDIS_ADDR", "redis:6380")
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Venue.URL != "http://override.local/info" {
		t.Errorf("venue url not overridden: %s", cfg.Venue.URL)
	}
	if cfg.Publisher.Redis.Addr != "redis:6380" {
		t.Errorf("redis addr not overridden: %s", cfg.Publisher.Redis.Addr)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		cfg := Default()
		cfg.Liqfeed = LiqfeedConfig{Name: "x", Version: "1"}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"missing name", func(c *Config) { c.Liqfeed.Name = "" }, "liqfeed.name"},
		{"bad url", func(c *Config) { c.Venue.URL = "not a url" }, "venue.url"},
		{"bad local ip", func(c *Config) { c.Venue.LocalIP = "nope" }, "venue.local_ip"},
		{"poll exceeds cycle", func(c *Config) { c.Registry.PollTimeout = c.Registry.CycleTimeout + time.Second }, "poll_timeout"},
		{"cycle timeout exceeds interval", func(c *Config) { c.Registry.CycleTimeout = c.Registry.CycleInterval + time.Second }, "cycle_timeout"},
		{"no retention policy", func(c *Config) { c.Registry.Retention = 0; c.Registry.MaxRecords = 0 }, "retention"},
		{"count only retention", func(c *Config) { c.Registry.Retention = 0; c.Registry.MaxRecords = 100 }, ""},
		{"bad multiplier", func(c *Config) { c.Registry.Retry.BaseDelay = time.Second; c.Registry.Retry.BackoffMultiplier = 0 }, "backoff_multiplier"},
		{"redis without addr", func(c *Config) { c.Publisher.Redis.Enabled = true; c.Publisher.Redis.Addr = "" }, "publisher.redis.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	dir := t.TempDir()
	prodPath := filepath.Join(dir, "prod.yml")
	if err := os.WriteFile(prodPath, []byte(minimalConfig), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	paths := map[string]string{environmentProduction: prodPath}

	t.Setenv("APP_ENV", "prod")
	if got := resolveEnvSpecificPath("", "default.yml", paths); got != prodPath {
		t.Errorf("expected production path, got %s", got)
	}
	if got := resolveEnvSpecificPath("custom.yml", "default.yml", paths); got != "custom.yml" {
		t.Errorf("explicit path should win, got %s", got)
	}

	t.Setenv("APP_ENV", "")
	if got := resolveEnvSpecificPath("", "default.yml", paths); got != "default.yml" {
		t.Errorf("expected default path in development, got %s", got)
	}
	if env := AppEnvironment(); env != environmentDevelopment {
		t.Errorf("expected development, got %s", env)
	}
}

func TestShippedConfigKeepsFullRetentionWindow(t *testing.T) {
	cfg, err := LoadConfig("config.yml")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Registry.MaxRecords != 0 {
		t.Errorf("count bound would trim records inside the retention window: %d", cfg.Registry.MaxRecords)
	}
	if cfg.Registry.Retention != 24*time.Hour {
		t.Errorf("unexpected retention: %s", cfg.Registry.Retention)
	}
}
