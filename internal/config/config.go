package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Reconstruct ReconstructConfig `yaml:"reconstruct" mapstructure:"reconstruct"`
	Resilience  ResilienceConfig  `yaml:"resilience" mapstructure:"resilience"`
	Lock        LockConfig        `yaml:"lock" mapstructure:"lock"`
	Pricing     PricingConfig     `yaml:"pricing" mapstructure:"pricing"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ReconstructConfig configures the reconstruction service used by ingest.
type ReconstructConfig struct {
	// Provider is one of anthropic, http, fixture.
	Provider        string  `yaml:"provider" mapstructure:"provider"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey          string  `yaml:"api_key" mapstructure:"api_key"`
	FixturePath     string  `yaml:"fixture_path" mapstructure:"fixture_path"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRawChars     int     `yaml:"max_raw_chars" mapstructure:"max_raw_chars"`
	RatePerSec      float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst           int     `yaml:"burst" mapstructure:"burst"`
	DefaultTimezone string  `yaml:"default_timezone" mapstructure:"default_timezone"`
	// CacheTTLSecs keeps complete replies for identical requests; 0 disables.
	CacheTTLSecs int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// ResilienceConfig configures the circuit breaker around the reconstruction
// service and the caller-side retry policy used by the CLI.
type ResilienceConfig struct {
	RetryAttempts    int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// LockConfig configures per-trip mutual exclusion.
type LockConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLSecs  int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
	WaitSecs int    `yaml:"wait_secs" mapstructure:"wait_secs"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the background alert checker run by serve.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	PendingThreshold     int     `yaml:"pending_threshold" mapstructure:"pending_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ITINERARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "itinerary.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("reconstruct.provider", "anthropic")
	v.SetDefault("reconstruct.timeout_secs", 90)
	v.SetDefault("reconstruct.max_raw_chars", 60000)
	v.SetDefault("reconstruct.rate_per_sec", 2.0)
	v.SetDefault("reconstruct.burst", 2)
	v.SetDefault("reconstruct.default_timezone", "UTC")
	v.SetDefault("reconstruct.cache_ttl_secs", 300)
	v.SetDefault("resilience.retry_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.breaker_threshold", 5)
	v.SetDefault("resilience.breaker_reset_secs", 30)
	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.ttl_secs", 180)
	v.SetDefault("lock.wait_secs", 120)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.pending_threshold", 50)
	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.0, "output": 15.0, "cache_write_mul": 1.25, "cache_read_mul": 0.1},
		"claude-haiku-4-5-20251001":  map[string]any{"input": 1.0, "output": 5.0, "cache_write_mul": 1.25, "cache_read_mul": 0.1},
	})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by the given mode are present.
// Modes: "store" (trip and run bookkeeping), "reconstruct" (anything that calls
// the reconstruction service), "serve" (reconstruct plus a listening port).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "store", "reconstruct", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if mode == "reconstruct" || mode == "serve" {
		switch c.Reconstruct.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required")
			}
		case "http":
			if c.Reconstruct.BaseURL == "" {
				errs = append(errs, "reconstruct.base_url is required")
			}
		case "fixture":
			if c.Reconstruct.FixturePath == "" {
				errs = append(errs, "reconstruct.fixture_path is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("reconstruct.provider %q is not supported", c.Reconstruct.Provider))
		}
		if c.Reconstruct.MaxRawChars <= 0 {
			errs = append(errs, "reconstruct.max_raw_chars must be > 0")
		}
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	switch c.Lock.Driver {
	case "local":
	case "redis":
		if c.Lock.RedisURL == "" {
			errs = append(errs, "lock.redis_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("lock.driver %q is not supported", c.Lock.Driver))
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
