package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Liqfeed   LiqfeedConfig   `yaml:"liqfeed"`
	Venue     VenueConfig     `yaml:"venue"`
	Registry  RegistryConfig  `yaml:"registry"`
	Publisher PublisherConfig `yaml:"publisher"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type LiqfeedConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// VenueConfig describes the upstream info endpoint queried for vaults and fills.
type VenueConfig struct {
	URL            string               `yaml:"url"`
	Timeout        time.Duration        `yaml:"timeout"`
	UserAgent      string               `yaml:"user_agent"`
	LocalIP        string               `yaml:"local_ip"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// RegistryConfig controls the discovery/poll/publish cycle.
type RegistryConfig struct {
	CycleInterval         time.Duration `yaml:"cycle_interval"`
	CycleTimeout          time.Duration `yaml:"cycle_timeout"`
	DiscoveryTimeout      time.Duration `yaml:"discovery_timeout"`
	PollTimeout           time.Duration `yaml:"poll_timeout"`
	StaleThreshold        time.Duration `yaml:"stale_threshold"`
	Retention             time.Duration `yaml:"retention"`
	MaxRecords            int           `yaml:"max_records"`
	SnapshotTradeLimit    int           `yaml:"snapshot_trade_limit"`
	DiscoveryFailureAlert int           `yaml:"discovery_failure_alert"`
	TradeBuffer           int           `yaml:"trade_buffer"`
	Retry                 RetryConfig   `yaml:"retry"`
}

// RetryConfig sets the per-vault backoff applied after consecutive poll failures.
// A zero BaseDelay disables backoff.
type RetryConfig struct {
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type PublisherConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	Channel      string `yaml:"channel"`
	Stream       string `yaml:"stream"`
	StreamMaxLen int64  `yaml:"stream_max_len"`
}

type MetricsConfig struct {
	Cycle       bool             `yaml:"cycle"`
	ChannelSize bool             `yaml:"channel_size"`
	Interval    time.Duration    `yaml:"interval"`
	CloudWatch  CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns a configuration with every tunable set to its production default.
func Default() Config {
	return Config{
		Venue: VenueConfig{
			URL:       "https://api.hyperliquid.xyz/info",
			Timeout:   10 * time.Second,
			UserAgent: "liqfeed",
			RateLimit: RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5},
			ConnectionPool: ConnectionPoolConfig{
				MaxIdleConns:    32,
				MaxConnsPerHost: 16,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		Registry: RegistryConfig{
			CycleInterval:         15 * time.Second,
			CycleTimeout:          10 * time.Second,
			DiscoveryTimeout:      5 * time.Second,
			PollTimeout:           8 * time.Second,
			StaleThreshold:        5 * time.Minute,
			Retention:             24 * time.Hour,
			SnapshotTradeLimit:    500,
			DiscoveryFailureAlert: 5,
			TradeBuffer:           1024,
			Retry: RetryConfig{
				BackoffMultiplier: 2,
			},
		},
		Publisher: PublisherConfig{
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				PoolSize:     10,
				Channel:      "liqfeed:trades",
				Stream:       "liqfeed:trades:stream",
				StreamMaxLen: 10000,
			},
		},
		Metrics: MetricsConfig{
			Cycle:       true,
			ChannelSize: true,
			Interval:    30 * time.Second,
			CloudWatch:  CloudWatchConfig{Namespace: "Liqfeed"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultPath, envConfigPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LIQFEED_VENUE_URL")); v != "" {
		cfg.Venue.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Publisher.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Publisher.Redis.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("AWS_REGION")); v != "" && cfg.Metrics.CloudWatch.Region == "" {
		cfg.Metrics.CloudWatch.Region = v
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Liqfeed.Name == "" {
		return fmt.Errorf("liqfeed.name is required")
	}
	if cfg.Liqfeed.Version == "" {
		return fmt.Errorf("liqfeed.version is required")
	}

	u, err := url.Parse(cfg.Venue.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("venue.url '%s' is invalid", cfg.Venue.URL)
	}
	if cfg.Venue.Timeout <= 0 {
		return fmt.Errorf("venue.timeout must be greater than 0")
	}
	if cfg.Venue.LocalIP != "" && net.ParseIP(cfg.Venue.LocalIP) == nil {
		return fmt.Errorf("venue.local_ip '%s' is not an IP address", cfg.Venue.LocalIP)
	}
	if cfg.Venue.RateLimit.RequestsPerSecond < 0 || cfg.Venue.RateLimit.BurstSize < 0 {
		return fmt.Errorf("venue.rate_limit values must not be negative")
	}

	r := cfg.Registry
	if r.CycleInterval <= 0 {
		return fmt.Errorf("registry.cycle_interval must be greater than 0")
	}
	if r.CycleTimeout <= 0 {
		return fmt.Errorf("registry.cycle_timeout must be greater than 0")
	}
	if r.DiscoveryTimeout <= 0 {
		return fmt.Errorf("registry.discovery_timeout must be greater than 0")
	}
	if r.PollTimeout <= 0 {
		return fmt.Errorf("registry.poll_timeout must be greater than 0")
	}
	if r.PollTimeout > r.CycleTimeout {
		return fmt.Errorf("registry.poll_timeout (%s) must not exceed registry.cycle_timeout (%s)", r.PollTimeout, r.CycleTimeout)
	}
	if r.CycleTimeout > r.CycleInterval {
		return fmt.Errorf("registry.cycle_timeout (%s) must not exceed registry.cycle_interval (%s)", r.CycleTimeout, r.CycleInterval)
	}
	if r.StaleThreshold <= 0 {
		return fmt.Errorf("registry.stale_threshold must be greater than 0")
	}
	if r.Retention <= 0 && r.MaxRecords <= 0 {
		return fmt.Errorf("registry.retention or registry.max_records must be set")
	}
	if r.MaxRecords < 0 || r.SnapshotTradeLimit < 0 {
		return fmt.Errorf("registry.max_records and registry.snapshot_trade_limit must not be negative")
	}
	if r.TradeBuffer <= 0 {
		return fmt.Errorf("registry.trade_buffer must be greater than 0")
	}
	if r.Retry.BaseDelay < 0 || r.Retry.MaxDelay < 0 {
		return fmt.Errorf("registry.retry delays must not be negative")
	}
	if r.Retry.BaseDelay > 0 && r.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("registry.retry.backoff_multiplier must be at least 1")
	}

	if cfg.Publisher.Redis.Enabled {
		if cfg.Publisher.Redis.Addr == "" {
			return fmt.Errorf("publisher.redis.addr is required when redis is enabled")
		}
		if cfg.Publisher.Redis.Channel == "" && cfg.Publisher.Redis.Stream == "" {
			return fmt.Errorf("publisher.redis needs a channel or a stream")
		}
	}

	return nil
}
