package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "carbonscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 1000, cfg.Cache.MaxSize)
	require.Equal(t, "lru", cfg.Cache.EvictionStrategy)
	require.Equal(t, 5*time.Minute, cfg.Cache.ParsedSweepInterval())
	require.Equal(t, 1000, cfg.Analytics.DirectMax)
	require.Equal(t, 10000, cfg.Analytics.BatchMax)
	require.True(t, cfg.Refresh.Enabled)
	require.Equal(t, time.Minute, cfg.Refresh.ParsedInterval())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"
  mode: "debug"
cache:
  max_size: 250
  default_ttl: "90s"
  eviction_strategy: "fifo"
analytics:
  max_points: 40
refresh:
  interval: "30s"
  batch_size: 2000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 250, cfg.Cache.MaxSize)
	require.Equal(t, "fifo", cfg.Cache.EvictionStrategy)
	require.Equal(t, 90*time.Second, cfg.Cache.ParsedDefaultTTL())
	require.Equal(t, 40, cfg.Analytics.MaxPoints)
	require.Equal(t, 2000, cfg.Refresh.BatchSize)
	// Untouched sections keep defaults.
	require.Equal(t, 0.1, cfg.Cache.EvictionFraction)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
cache:
  max_size: 250
`)
	t.Setenv("CARBONSCOPE_CACHE__MAX_SIZE", "77")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 77, cfg.Cache.MaxSize)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "bad mode", mutate: func(c *Config) { c.Server.Mode = "verbose" }, wantErr: "server.mode"},
		{name: "bad strategy", mutate: func(c *Config) { c.Cache.EvictionStrategy = "mru" }, wantErr: "eviction_strategy"},
		{name: "bad ttl", mutate: func(c *Config) { c.Cache.DefaultTTL = "soon" }, wantErr: "default_ttl"},
		{name: "bad fraction", mutate: func(c *Config) { c.Cache.EvictionFraction = 1.5 }, wantErr: "eviction_fraction"},
		{name: "batch below direct", mutate: func(c *Config) { c.Analytics.BatchMax = 10 }, wantErr: "batch_max"},
		{name: "bad refresh interval", mutate: func(c *Config) { c.Refresh.Interval = "-1m" }, wantErr: "refresh.interval"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tc.wantErr)
		})
	}
}
