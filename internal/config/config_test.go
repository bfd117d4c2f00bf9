package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "itinerary.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "anthropic", cfg.Reconstruct.Provider)
	assert.Equal(t, 90, cfg.Reconstruct.TimeoutSecs)
	assert.Equal(t, 60000, cfg.Reconstruct.MaxRawChars)
	assert.InDelta(t, 2.0, cfg.Reconstruct.RatePerSec, 0.001)
	assert.Equal(t, "UTC", cfg.Reconstruct.DefaultTimezone)
	assert.Equal(t, 300, cfg.Reconstruct.CacheTTLSecs)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, 8192, cfg.Anthropic.MaxTokens)
	assert.Equal(t, 3, cfg.Resilience.RetryAttempts)
	assert.Equal(t, 5, cfg.Resilience.BreakerThreshold)
	assert.Equal(t, "local", cfg.Lock.Driver)
	assert.Equal(t, 180, cfg.Lock.TTLSecs)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)

	sonnet, ok := cfg.Pricing.Anthropic["claude-sonnet-4-5-20250929"]
	require.True(t, ok)
	assert.InDelta(t, 3.0, sonnet.Input, 0.001)
	assert.InDelta(t, 15.0, sonnet.Output, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/itinerary
log:
  level: debug
  format: console
reconstruct:
  provider: http
  base_url: http://reconstructor.internal
lock:
  driver: redis
  redis_url: redis://localhost:6379/0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "http", cfg.Reconstruct.Provider)
	assert.Equal(t, "http://reconstructor.internal", cfg.Reconstruct.BaseURL)
	assert.Equal(t, "redis", cfg.Lock.Driver)
	// Defaults still apply for unset values
	assert.Equal(t, 60000, cfg.Reconstruct.MaxRawChars)
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ITINERARY_STORE_DRIVER", "postgres")
	t.Setenv("ITINERARY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ITINERARY_SERVER_PORT", "3000")
	t.Setenv("ITINERARY_RECONSTRUCT_MAX_RAW_CHARS", "1200")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 1200, cfg.Reconstruct.MaxRawChars)
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "itinerary.db"
	cfg.Reconstruct.Provider = "anthropic"
	cfg.Reconstruct.MaxRawChars = 60000
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Lock.Driver = "local"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateStore_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("store"))
}

func TestValidateStore_IgnoresReconstructSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateReconstruct_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Anthropic.Key = ""

	err := cfg.Validate("reconstruct")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateReconstruct_Providers(t *testing.T) {
	cfg := validDefaults()

	cfg.Reconstruct.Provider = "http"
	err := cfg.Validate("reconstruct")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reconstruct.base_url is required")

	cfg.Reconstruct.BaseURL = "http://localhost:9000"
	assert.NoError(t, cfg.Validate("reconstruct"))

	cfg.Reconstruct.Provider = "fixture"
	err = cfg.Validate("reconstruct")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reconstruct.fixture_path is required")

	cfg.Reconstruct.Provider = "carrier-pigeon"
	err = cfg.Validate("reconstruct")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateLock_RedisNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Lock.Driver = "redis"

	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "lock.redis_url is required")

	cfg.Lock.RedisURL = "redis://localhost:6379"
	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
