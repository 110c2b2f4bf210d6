// Package config reads the process-wide settings of the data-access layer
// from NOTION_CLI_* environment variables.
//
// Settings are read once at start and handed to the components that need
// them; nothing re-reads the environment afterwards.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/Coastal-Programs/notion-cli-sub005/cache"
	"github.com/Coastal-Programs/notion-cli-sub005/observe"
	"github.com/Coastal-Programs/notion-cli-sub005/resilience"
)

// Prefix is the environment variable prefix.
const Prefix = "NOTION_CLI"

// ErrInvalidConfig wraps every load or validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Duration is a time.Duration read from an integer number of milliseconds
// or a Go duration string such as "1.5s".
type Duration time.Duration

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	value = strings.TrimSpace(value)
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: want milliseconds or a duration like 500ms", value)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds every setting of the data-access layer.
type Config struct {
	// Retry
	MaxRetries   int      `envconfig:"MAX_RETRIES" default:"3" validate:"gte=0,lte=10"`
	BaseDelay    Duration `envconfig:"BASE_DELAY" default:"1000" validate:"gt=0"`
	MaxDelay     Duration `envconfig:"MAX_DELAY" default:"30000" validate:"gt=0"`
	ExpBase      float64  `envconfig:"EXP_BASE" default:"2" validate:"gt=1,lte=10"`
	JitterFactor float64  `envconfig:"JITTER_FACTOR" default:"0.1" validate:"gte=0,lte=1"`

	// Cache
	CacheEnabled       bool     `envconfig:"CACHE_ENABLED" default:"true"`
	CacheMaxSize       int      `envconfig:"CACHE_MAX_SIZE" default:"1000"`
	CacheTTL           Duration `envconfig:"CACHE_TTL" default:"300000" validate:"gt=0"`
	CacheBlockTTL      Duration `envconfig:"CACHE_BLOCK_TTL" default:"30000" validate:"gt=0"`
	CachePageTTL       Duration `envconfig:"CACHE_PAGE_TTL" default:"60000" validate:"gt=0"`
	CacheDatabaseTTL   Duration `envconfig:"CACHE_DATABASE_TTL" default:"600000" validate:"gt=0"`
	CacheDataSourceTTL Duration `envconfig:"CACHE_DATA_SOURCE_TTL" default:"600000" validate:"gt=0"`
	CacheUserTTL       Duration `envconfig:"CACHE_USER_TTL" default:"3600000" validate:"gt=0"`

	// Deduplication
	DedupEnabled bool `envconfig:"DEDUP_ENABLED" default:"true"`

	// Circuit breaker
	BreakerEnabled          bool     `envconfig:"BREAKER_ENABLED" default:"true"`
	BreakerFailureThreshold int      `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5" validate:"gte=1"`
	BreakerSuccessThreshold int      `envconfig:"BREAKER_SUCCESS_THRESHOLD" default:"2" validate:"gte=1"`
	BreakerTimeout          Duration `envconfig:"BREAKER_TIMEOUT" default:"60000" validate:"gt=0"`

	// Rate limiting, disabled when RateLimit is 0
	RateLimit float64 `envconfig:"RATE_LIMIT" default:"0" validate:"gte=0"`
	RateBurst int     `envconfig:"RATE_BURST" default:"1" validate:"gte=1"`

	// Observability
	ServiceName     string  `envconfig:"SERVICE_NAME" default:"notion-cli" validate:"required"`
	LogLevel        string  `envconfig:"LOG_LEVEL" default:"warn" validate:"oneof=debug info warn error"`
	LogFormat       string  `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`
	TracingExporter string  `envconfig:"TRACING_EXPORTER" default:"none" validate:"oneof=none stdout otlp"`
	MetricsExporter string  `envconfig:"METRICS_EXPORTER" default:"none" validate:"oneof=none stdout otlp prometheus"`
	SamplePct       float64 `envconfig:"SAMPLE_PCT" default:"1" validate:"gte=0,lte=1"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// FromEnv reads and validates the configuration from the environment.
// Unset variables take their defaults.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		MaxRetries:              3,
		BaseDelay:               Duration(time.Second),
		MaxDelay:                Duration(30 * time.Second),
		ExpBase:                 2,
		JitterFactor:            0.1,
		CacheEnabled:            true,
		CacheMaxSize:            1000,
		CacheTTL:                Duration(5 * time.Minute),
		CacheBlockTTL:           Duration(30 * time.Second),
		CachePageTTL:            Duration(time.Minute),
		CacheDatabaseTTL:        Duration(10 * time.Minute),
		CacheDataSourceTTL:      Duration(10 * time.Minute),
		CacheUserTTL:            Duration(time.Hour),
		DedupEnabled:            true,
		BreakerEnabled:          true,
		BreakerFailureThreshold: 5,
		BreakerSuccessThreshold: 2,
		BreakerTimeout:          Duration(time.Minute),
		RateBurst:               1,
		ServiceName:             "notion-cli",
		LogLevel:                "warn",
		LogFormat:               "json",
		TracingExporter:         "none",
		MetricsExporter:         "none",
		SamplePct:               1,
	}
}

// Validate checks field ranges and cross-field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("%w: MAX_DELAY %s is below BASE_DELAY %s",
			ErrInvalidConfig, c.MaxDelay.Std(), c.BaseDelay.Std())
	}
	return nil
}

// Usage describes every variable, its type and default.
func Usage() string {
	var b strings.Builder
	_ = envconfig.Usagef(Prefix, &Config{}, &b, envconfig.DefaultTableFormat)
	return b.String()
}

// RetryConfig returns the retry engine configuration. Retryable sets are
// the defaults.
func (c Config) RetryConfig() resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	rc.MaxRetries = c.MaxRetries
	rc.BaseDelay = c.BaseDelay.Std()
	rc.MaxDelay = c.MaxDelay.Std()
	rc.ExponentialBase = c.ExpBase
	rc.JitterFactor = c.JitterFactor
	return rc
}

// CacheConfig returns the cache store configuration.
func (c Config) CacheConfig() cache.Config {
	cc := cache.DefaultConfig()
	cc.Enabled = c.CacheEnabled
	cc.MaxSize = c.CacheMaxSize
	cc.DefaultTTL = c.CacheTTL.Std()
	cc.TTLByType[cache.Block] = c.CacheBlockTTL.Std()
	cc.TTLByType[cache.Page] = c.CachePageTTL.Std()
	cc.TTLByType[cache.Database] = c.CacheDatabaseTTL.Std()
	cc.TTLByType[cache.DataSource] = c.CacheDataSourceTTL.Std()
	cc.TTLByType[cache.User] = c.CacheUserTTL.Std()
	return cc
}

// BreakerConfig returns the circuit breaker configuration.
func (c Config) BreakerConfig() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		FailureThreshold: c.BreakerFailureThreshold,
		SuccessThreshold: c.BreakerSuccessThreshold,
		Timeout:          c.BreakerTimeout.Std(),
	}
}

// RateLimiterConfig returns the rate limiter configuration.
func (c Config) RateLimiterConfig() resilience.RateLimiterConfig {
	return resilience.RateLimiterConfig{
		Rate:  c.RateLimit,
		Burst: c.RateBurst,
	}
}

// ObserveConfig returns the observer configuration. Logging is always on;
// tracing and metrics are enabled when an exporter other than none is set.
func (c Config) ObserveConfig() observe.Config {
	return observe.Config{
		ServiceName: c.ServiceName,
		Tracing: observe.TracingConfig{
			Enabled:   c.TracingExporter != "none",
			Exporter:  c.TracingExporter,
			SamplePct: c.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.MetricsExporter != "none",
			Exporter: c.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.LogLevel,
			Format:  c.LogFormat,
		},
	}
}
