package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/address-resolver/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "resolver.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Fetcher.MinDelay())
	assert.Equal(t, 5*time.Second, cfg.Fetcher.MaxDelay())
	assert.Equal(t, 30, cfg.Fetcher.CooldownSecs)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, 3, cfg.Search.DetailTopN)
	assert.InDelta(t, 2.0, cfg.Autocomplete.RatePerSec, 0.001)
	assert.Equal(t, "epctex~realtor-scraper", cfg.Apify.Actor)
	assert.Equal(t, 60, cfg.Apify.MaxPolls)
	assert.Equal(t, 20, cfg.Apify.BatchSize)
	assert.Equal(t, OracleRule, cfg.Oracle.Kind)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Oracle.Model)
	assert.Equal(t, model.ConfidenceMedium, cfg.Pipeline.Threshold())
	assert.Equal(t, 3, cfg.Pipeline.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Pipeline.Retry.MaxFreeRetries)
	assert.Equal(t, 5, cfg.Pipeline.Breaker.FailureThreshold)
	assert.Equal(t, PoolsConfig{Search: 3, Detail: 3, Verify: 20, Geocode: 4, Property: 2, PropertyRatePerSec: 1}, cfg.Pools)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 5, cfg.Monitoring.BlockedThreshold)
	assert.InDelta(t, 0.5, cfg.Monitoring.RejectRateThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/resolver
log:
  level: debug
  format: console
pipeline:
  min_confidence: high
  retry:
    max_attempts: 5
pools:
  verify: 8
  verify_rate_per_sec: 2.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/resolver", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, model.ConfidenceHigh, cfg.Pipeline.Threshold())
	assert.Equal(t, 5, cfg.Pipeline.Retry.MaxAttempts)
	assert.Equal(t, 8, cfg.Pools.Verify)
	assert.InDelta(t, 2.5, cfg.Pools.VerifyRatePerSec, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Pools.Search)
	assert.Equal(t, 500, cfg.Pipeline.Retry.InitialBackoffMs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("RESOLVER_STORE_DRIVER", "postgres")
	t.Setenv("RESOLVER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("RESOLVER_SERVER_PORT", "3000")
	t.Setenv("RESOLVER_POOLS_SEARCH", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Pools.Search)
}

func TestLoadRejectsInvalid(t *testing.T) {
	chdirTemp(t)

	t.Setenv("RESOLVER_ORACLE_KIND", "model")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read file")
}

func validConfig() *Config {
	return &Config{
		Store:    StoreConfig{Driver: "sqlite"},
		Fetcher:  FetcherConfig{MinDelayMs: 100, MaxDelayMs: 200},
		Oracle:   OracleConfig{Kind: OracleRule},
		Pipeline: PipelineConfig{MinConfidence: "medium"},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "model with key", mutate: func(c *Config) {
			c.Oracle.Kind = OracleModel
			c.Anthropic.Key = "sk-ant"
		}},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mongo" }, wantErr: "store.driver"},
		{name: "unknown oracle", mutate: func(c *Config) { c.Oracle.Kind = "magic" }, wantErr: "oracle.kind"},
		{name: "model without key", mutate: func(c *Config) { c.Oracle.Kind = OracleModel }, wantErr: "anthropic.key"},
		{name: "bad confidence", mutate: func(c *Config) { c.Pipeline.MinConfidence = "certain" }, wantErr: "min_confidence"},
		{name: "delay bounds", mutate: func(c *Config) { c.Fetcher.MaxDelayMs = 50 }, wantErr: "max_delay_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Store.Driver = ""
	cfg.Oracle.Kind = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle.kind")
	assert.Contains(t, err.Error(), "store.driver")
}

func TestDurations(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 3*time.Second, Secs(3))
	assert.Equal(t, 250*time.Millisecond, Ms(250))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
