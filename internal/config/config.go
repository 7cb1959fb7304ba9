// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"
)

// Config is the top-level dashboard backend configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimits  RateLimitConfig   `yaml:"rate_limits"`
	Cache       CacheConfig       `yaml:"cache"`
	Backends    BackendsConfig    `yaml:"backends"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Activity    ActivityConfig    `yaml:"activity"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // dashboard origins for CORS
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Format string `yaml:"format"` // "json" or "text"
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // file path or ":memory:"
}

// AuthConfig holds edge authentication settings.
type AuthConfig struct {
	EdgeSecret string `yaml:"edge_secret"` // shared with the IAM edge; empty = trust headers
}

// RateLimitConfig holds per-user mutation limits.
type RateLimitConfig struct {
	MutationsPerMinute int64 `yaml:"mutations_per_minute"` // 0 = unlimited
}

// CacheConfig holds relationship cache settings.
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	MaxEntries    int           `yaml:"max_entries"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig configures the cross-instance invalidation bus.
// An empty Addr disables the bus.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// BackendsConfig holds the platform microservice endpoints.
type BackendsConfig struct {
	Community       BackendEntry  `yaml:"community"`
	Profiles        BackendEntry  `yaml:"profiles"`
	Competitive     BackendEntry  `yaml:"competitive"`
	OAuth           *OAuthEntry   `yaml:"oauth"`             // nil = static tokens only
	DNSCacheRefresh time.Duration `yaml:"dns_cache_refresh"` // 0 = no DNS cache
}

// BackendEntry is one backend service.
type BackendEntry struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"token"` // static bearer token; ignored when oauth is set
}

// OAuthEntry configures client-credentials service tokens from IAM.
type OAuthEntry struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// LeaderboardConfig tunes the leaderboard join.
type LeaderboardConfig struct {
	MaxPageSize      int           `yaml:"max_page_size"`
	FanoutLimit      int           `yaml:"fanout_limit"`
	ProfileCacheSize int           `yaml:"profile_cache_size"`
	ProfileCacheTTL  time.Duration `yaml:"profile_cache_ttl"`
}

// ActivityConfig controls the local activity log.
type ActivityConfig struct {
	Retention time.Duration `yaml:"retention"` // 0 = keep forever
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment variables.
// A .env file in the working directory, if present, is loaded first; it does
// not override variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Database: DatabaseConfig{
			DSN: "campus.db",
		},
		RateLimits: RateLimitConfig{
			MutationsPerMinute: 60,
		},
		Cache: CacheConfig{
			TTL:           5 * time.Minute,
			MaxEntries:    10_000,
			SweepInterval: time.Minute,
			Redis:         RedisConfig{Channel: "campus:cache:invalidations"},
		},
		Backends: BackendsConfig{
			Community:   BackendEntry{Timeout: 5 * time.Second},
			Profiles:    BackendEntry{Timeout: 5 * time.Second},
			Competitive: BackendEntry{Timeout: 5 * time.Second},
		},
		Leaderboard: LeaderboardConfig{
			MaxPageSize:      100,
			FanoutLimit:      8,
			ProfileCacheSize: 2048,
			ProfileCacheTTL:  10 * time.Minute,
		},
		Activity: ActivityConfig{
			Retention: 90 * 24 * time.Hour,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q: want json or text", c.Log.Format)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}
	if c.Cache.MaxEntries < 0 {
		return errors.New("cache.max_entries must not be negative")
	}
	if c.RateLimits.MutationsPerMinute < 0 {
		return errors.New("rate_limits.mutations_per_minute must not be negative")
	}
	if c.Telemetry.Tracing.SampleRate < 0 || c.Telemetry.Tracing.SampleRate > 1 {
		return fmt.Errorf("telemetry.tracing.sample_rate %v: want 0.0 to 1.0", c.Telemetry.Tracing.SampleRate)
	}
	for name, b := range map[string]BackendEntry{
		"community":   c.Backends.Community,
		"profiles":    c.Backends.Profiles,
		"competitive": c.Backends.Competitive,
	} {
		if b.BaseURL == "" {
			return fmt.Errorf("backends.%s.base_url is required", name)
		}
	}
	if o := c.Backends.OAuth; o != nil && (o.TokenURL == "" || o.ClientID == "") {
		return errors.New("backends.oauth requires token_url and client_id")
	}
	return nil
}
