package config

import (
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/address-resolver/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Fetcher      FetcherConfig      `yaml:"fetcher" mapstructure:"fetcher"`
	Search       SearchConfig       `yaml:"search" mapstructure:"search"`
	Autocomplete AutocompleteConfig `yaml:"autocomplete" mapstructure:"autocomplete"`
	Apify        ApifyConfig        `yaml:"apify" mapstructure:"apify"`
	Oracle       OracleConfig       `yaml:"oracle" mapstructure:"oracle"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline     PipelineConfig     `yaml:"pipeline" mapstructure:"pipeline"`
	Pools        PoolsConfig        `yaml:"pools" mapstructure:"pools"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FetcherConfig configures the people-search page fetcher.
type FetcherConfig struct {
	BaseURL            string `yaml:"base_url" mapstructure:"base_url"`
	MinDelayMs         int    `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs         int    `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	CooldownSecs       int    `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	RotateBackoffMinMs int    `yaml:"rotate_backoff_min_ms" mapstructure:"rotate_backoff_min_ms"`
	RotateBackoffMaxMs int    `yaml:"rotate_backoff_max_ms" mapstructure:"rotate_backoff_max_ms"`
	TimeoutSecs        int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// MinDelay returns the lower pacing bound.
func (c FetcherConfig) MinDelay() time.Duration { return Ms(c.MinDelayMs) }

// MaxDelay returns the upper pacing bound.
func (c FetcherConfig) MaxDelay() time.Duration { return Ms(c.MaxDelayMs) }

// SearchConfig bounds how much of each search is used.
type SearchConfig struct {
	MaxResults int `yaml:"max_results" mapstructure:"max_results"`
	DetailTopN int `yaml:"detail_top_n" mapstructure:"detail_top_n"`
}

// AutocompleteConfig configures the address-to-location-id lookup.
type AutocompleteConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	ClientID     string  `yaml:"client_id" mapstructure:"client_id"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CacheTTLMins int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ApifyConfig configures the batch property job service.
type ApifyConfig struct {
	Token            string `yaml:"token" mapstructure:"token"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	Actor            string `yaml:"actor" mapstructure:"actor"`
	ListingBase      string `yaml:"listing_base" mapstructure:"listing_base"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxPolls         int    `yaml:"max_polls" mapstructure:"max_polls"`
	BatchSize        int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// OracleConfig selects and configures the match oracle.
type OracleConfig struct {
	Kind        string `yaml:"kind" mapstructure:"kind"`
	WeightsPath string `yaml:"weights_path" mapstructure:"weights_path"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// Oracle kinds.
const (
	OracleRule  = "rule"
	OracleModel = "model"
)

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// PipelineConfig configures record processing.
type PipelineConfig struct {
	MinConfidence string        `yaml:"min_confidence" mapstructure:"min_confidence"`
	Retry         RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Breaker       BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// Threshold returns the minimum accepted confidence.
func (c PipelineConfig) Threshold() model.Confidence {
	return model.ParseConfidence(c.MinConfidence)
}

// RetryConfig configures per-task retries in every stage pool.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	MaxFreeRetries   int `yaml:"max_free_retries" mapstructure:"max_free_retries"`
}

// BreakerConfig configures the circuit breakers around the oracle and the
// batch job service.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetSecs        int `yaml:"reset_secs" mapstructure:"reset_secs"`
}

// PoolsConfig sets the worker count of each stage and the start rate of
// the stages that call paid services. A zero rate is unlimited.
type PoolsConfig struct {
	Search             int     `yaml:"search" mapstructure:"search"`
	Detail             int     `yaml:"detail" mapstructure:"detail"`
	Verify             int     `yaml:"verify" mapstructure:"verify"`
	Geocode            int     `yaml:"geocode" mapstructure:"geocode"`
	Property           int     `yaml:"property" mapstructure:"property"`
	VerifyRatePerSec   float64 `yaml:"verify_rate_per_sec" mapstructure:"verify_rate_per_sec"`
	PropertyRatePerSec float64 `yaml:"property_rate_per_sec" mapstructure:"property_rate_per_sec"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures record health alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	BlockedThreshold     int     `yaml:"blocked_threshold" mapstructure:"blocked_threshold"`
	OracleErrorThreshold int     `yaml:"oracle_error_threshold" mapstructure:"oracle_error_threshold"`
	RejectRateThreshold  float64 `yaml:"reject_rate_threshold" mapstructure:"reject_rate_threshold"`
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
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "resolver.db")
	v.SetDefault("fetcher.base_url", "https://www.fastpeoplesearch.com")
	v.SetDefault("fetcher.min_delay_ms", 2000)
	v.SetDefault("fetcher.max_delay_ms", 5000)
	v.SetDefault("fetcher.cooldown_secs", 30)
	v.SetDefault("fetcher.rotate_backoff_min_ms", 2000)
	v.SetDefault("fetcher.rotate_backoff_max_ms", 6000)
	v.SetDefault("fetcher.timeout_secs", 20)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.detail_top_n", 3)
	v.SetDefault("autocomplete.base_url", "https://parser-external.geo.moveaws.com/suggest")
	v.SetDefault("autocomplete.client_id", "rdc-x")
	v.SetDefault("autocomplete.rate_per_sec", 2.0)
	v.SetDefault("autocomplete.cache_ttl_mins", 60)
	v.SetDefault("autocomplete.timeout_secs", 10)
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.actor", "epctex~realtor-scraper")
	v.SetDefault("apify.poll_interval_secs", 10)
	v.SetDefault("apify.max_polls", 60)
	v.SetDefault("apify.batch_size", 20)
	v.SetDefault("oracle.kind", OracleRule)
	v.SetDefault("oracle.model", "claude-haiku-4-5-20251001")
	v.SetDefault("oracle.max_tokens", 512)
	v.SetDefault("pipeline.min_confidence", string(model.ConfidenceMedium))
	v.SetDefault("pipeline.retry.max_attempts", 3)
	v.SetDefault("pipeline.retry.initial_backoff_ms", 500)
	v.SetDefault("pipeline.retry.max_backoff_ms", 30000)
	v.SetDefault("pipeline.retry.max_free_retries", 5)
	v.SetDefault("pipeline.breaker.failure_threshold", 5)
	v.SetDefault("pipeline.breaker.reset_secs", 60)
	v.SetDefault("pools.search", 3)
	v.SetDefault("pools.detail", 3)
	v.SetDefault("pools.verify", 20)
	v.SetDefault("pools.geocode", 4)
	v.SetDefault("pools.property", 2)
	v.SetDefault("pools.verify_rate_per_sec", 0)
	v.SetDefault("pools.property_rate_per_sec", 1.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.blocked_threshold", 5)
	v.SetDefault("monitoring.oracle_error_threshold", 5)
	v.SetDefault("monitoring.reject_rate_threshold", 0.5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var problems []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	switch c.Oracle.Kind {
	case OracleRule:
	case OracleModel:
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required for oracle.kind=model")
		}
	default:
		problems = append(problems, "oracle.kind must be rule or model")
	}
	switch model.Confidence(strings.ToLower(c.Pipeline.MinConfidence)) {
	case model.ConfidenceLow, model.ConfidenceMedium, model.ConfidenceHigh:
	default:
		problems = append(problems, "pipeline.min_confidence must be low, medium or high")
	}
	if c.Fetcher.MaxDelayMs < c.Fetcher.MinDelayMs {
		problems = append(problems, "fetcher.max_delay_ms must be >= fetcher.min_delay_ms")
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Secs converts a configured number of seconds to a duration.
func Secs(n int) time.Duration { return time.Duration(n) * time.Second }

// Ms converts a configured number of milliseconds to a duration.
func Ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

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
