package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	corecache "github.com/carbonscope-lab/carbonscope/internal/core/cache"
)

// Config is the top-level application config.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Cache     CacheConfig     `koanf:"cache"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Refresh   RefreshConfig   `koanf:"refresh"`
	Policies  PoliciesConfig  `koanf:"policies"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

type CacheConfig struct {
	MaxSize          int     `koanf:"max_size"`
	DefaultTTL       string  `koanf:"default_ttl"`
	EvictionStrategy string  `koanf:"eviction_strategy"` // lru | fifo | ttl
	EvictionFraction float64 `koanf:"eviction_fraction"`
	SweepInterval    string  `koanf:"sweep_interval"`
	PrefetchWorkers  int     `koanf:"prefetch_workers"`
}

type AnalyticsConfig struct {
	DirectMax      int `koanf:"direct_max"`
	BatchMax       int `koanf:"batch_max"`
	ConcurrencyMin int `koanf:"concurrency_min"`
	ChunkSize      int `koanf:"chunk_size"`
	MaxPoints      int `koanf:"max_points"`
}

type RefreshConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Interval  string `koanf:"interval"`
	BatchSize int    `koanf:"batch_size"`
	Seed      int64  `koanf:"seed"`
}

type PoliciesConfig struct {
	Dir string `koanf:"dir"`
}

// ParsedDefaultTTL returns the parsed cache default TTL. Call after Validate.
func (c CacheConfig) ParsedDefaultTTL() time.Duration {
	d, _ := time.ParseDuration(c.DefaultTTL)
	return d
}

// ParsedSweepInterval returns the parsed sweep interval. Call after Validate.
func (c CacheConfig) ParsedSweepInterval() time.Duration {
	d, _ := time.ParseDuration(c.SweepInterval)
	return d
}

// ParsedInterval returns the parsed refresh interval. Call after Validate.
func (c RefreshConfig) ParsedInterval() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache.max_size must be > 0")
	}
	if !corecache.ValidStrategy(c.Cache.EvictionStrategy) {
		return fmt.Errorf("unsupported cache.eviction_strategy %q", c.Cache.EvictionStrategy)
	}
	if c.Cache.EvictionFraction <= 0 || c.Cache.EvictionFraction > 1 {
		return fmt.Errorf("cache.eviction_fraction must be in (0, 1]")
	}
	if d, err := time.ParseDuration(c.Cache.DefaultTTL); err != nil || d <= 0 {
		return fmt.Errorf("invalid cache.default_ttl %q", c.Cache.DefaultTTL)
	}
	if d, err := time.ParseDuration(c.Cache.SweepInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid cache.sweep_interval %q", c.Cache.SweepInterval)
	}
	if c.Cache.PrefetchWorkers <= 0 {
		return fmt.Errorf("cache.prefetch_workers must be > 0")
	}

	if c.Analytics.DirectMax <= 0 {
		return fmt.Errorf("analytics.direct_max must be > 0")
	}
	if c.Analytics.BatchMax <= c.Analytics.DirectMax {
		return fmt.Errorf("analytics.batch_max must be > analytics.direct_max")
	}
	if c.Analytics.ConcurrencyMin <= 0 {
		return fmt.Errorf("analytics.concurrency_min must be > 0")
	}
	if c.Analytics.ChunkSize <= 0 {
		return fmt.Errorf("analytics.chunk_size must be > 0")
	}
	if c.Analytics.MaxPoints <= 0 {
		return fmt.Errorf("analytics.max_points must be > 0")
	}

	if d, err := time.ParseDuration(c.Refresh.Interval); err != nil || d <= 0 {
		return fmt.Errorf("invalid refresh.interval %q", c.Refresh.Interval)
	}
	if c.Refresh.BatchSize <= 0 {
		return fmt.Errorf("refresh.batch_size must be > 0")
	}

	return nil
}

// Load parses config from defaults + file + env and validates it.
// Env vars use the CARBONSCOPE_ prefix with "__" as the section separator,
// e.g. CARBONSCOPE_CACHE__MAX_SIZE=500.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":               8080,
		"server.host":               "0.0.0.0",
		"server.mode":               "release",
		"cache.max_size":            1000,
		"cache.default_ttl":         "5m",
		"cache.eviction_strategy":   "lru",
		"cache.eviction_fraction":   0.1,
		"cache.sweep_interval":      "5m",
		"cache.prefetch_workers":    4,
		"analytics.direct_max":      1000,
		"analytics.batch_max":       10000,
		"analytics.concurrency_min": 5000,
		"analytics.chunk_size":      1000,
		"analytics.max_points":      100,
		"refresh.enabled":           true,
		"refresh.interval":          "1m",
		"refresh.batch_size":        5000,
		"refresh.seed":              int64(42),
		"policies.dir":              "./config/policies",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("CARBONSCOPE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CARBONSCOPE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
