// Package config loads feedguard configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// FEEDGUARD_* environment variables (nested keys joined with "_", for example
// FEEDGUARD_REDIS_ADDR). String values that may carry credentials accept
// ${VAR} expansion and secretref:<provider>:<ref> references.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/berabot/feedguard/cache"
	"github.com/berabot/feedguard/health"
	"github.com/berabot/feedguard/observe"
	"github.com/berabot/feedguard/resilience"
	"github.com/berabot/feedguard/store"
	"github.com/berabot/feedguard/stream"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete feedguard configuration.
type Config struct {
	Redis   store.RedisConfig `mapstructure:"redis" yaml:"redis"`
	Limiter LimiterConfig     `mapstructure:"limiter" yaml:"limiter"`
	Breaker BreakerConfig     `mapstructure:"breaker" yaml:"breaker"`
	Retry   RetryConfig       `mapstructure:"retry" yaml:"retry"`
	Stream  stream.Config     `mapstructure:"stream" yaml:"stream"`
	Cache   cache.Policy      `mapstructure:"cache" yaml:"cache"`
	Observe observe.Config    `mapstructure:"observe" yaml:"observe"`
	Health  HealthConfig      `mapstructure:"health" yaml:"health"`
	Secrets SecretsConfig     `mapstructure:"secrets" yaml:"secrets"`

	// Symbols are subscribed by the serve command at startup.
	Symbols []string `mapstructure:"symbols" yaml:"symbols"`
}

// LimiterConfig configures the sliding window limiter.
type LimiterConfig struct {
	Prefix  string                      `mapstructure:"prefix" yaml:"prefix"`
	Default resilience.Limit            `mapstructure:"default" yaml:"default"`
	Limits  map[string]resilience.Limit `mapstructure:"limits" yaml:"limits"`
}

// Resilience converts c for resilience.NewSlidingWindowLimiter.
func (c LimiterConfig) Resilience() resilience.LimiterConfig {
	return resilience.LimiterConfig{
		Prefix:  c.Prefix,
		Default: c.Default,
		Limits:  c.Limits,
	}
}

// BreakerConfig holds the circuit breaker settings shared by every dependency.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout"`
}

// Resilience converts c for the breaker protecting name.
func (c BreakerConfig) Resilience(name string) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: c.FailureThreshold,
		ResetTimeout:     c.ResetTimeout,
	}
}

// RetryConfig holds the backoff applied to dependency calls.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	Multiplier   float64       `mapstructure:"multiplier" yaml:"multiplier"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Jitter       bool          `mapstructure:"jitter" yaml:"jitter"`
}

// Resilience converts c for resilience.NewRetry. Only transient failures
// are retried.
func (c RetryConfig) Resilience() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  c.MaxAttempts,
		InitialDelay: c.InitialDelay,
		Multiplier:   c.Multiplier,
		MaxDelay:     c.MaxDelay,
		Jitter:       c.Jitter,
		RetryIf:      resilience.RetryTransient,
	}
}

// HealthConfig configures the HTTP endpoint serving health and metrics.
type HealthConfig struct {
	Listen     string                  `mapstructure:"listen" yaml:"listen"`
	Aggregator health.AggregatorConfig `mapstructure:"aggregator" yaml:"aggregator"`
}

// SecretsConfig configures secret reference resolution.
type SecretsConfig struct {
	// Dir is the root of the file provider, usually a mounted secret volume.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// Strict rejects references that resolve to an empty value.
	Strict bool `mapstructure:"strict" yaml:"strict"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Redis: store.RedisConfig{
			Addr:        "localhost:6379",
			DialTimeout: 5 * time.Second,
		},
		Limiter: LimiterConfig{
			Prefix:  "rate_limit:",
			Default: resilience.DefaultLimit,
			Limits:  resilience.DefaultLimits(),
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			Multiplier:   2,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
		Stream: stream.DefaultConfig(),
		Cache:  cache.DefaultPolicy(),
		Observe: observe.Config{
			ServiceName: "feedguard",
			Version:     "dev",
			Tracing:     observe.TracingConfig{Exporter: "none", SamplePct: 1},
			Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
		},
		Health: HealthConfig{
			Listen:     ":8080",
			Aggregator: health.AggregatorConfig{Timeout: 5 * time.Second},
		},
		Secrets: SecretsConfig{
			Dir:    "/run/secrets",
			Strict: true,
		},
		Symbols: []string{},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Redis.Addr == "" {
		add("redis.addr is required")
	}

	if err := validLimit(c.Limiter.Default); err != nil {
		add("limiter.default: %v", err)
	}
	for key, l := range c.Limiter.Limits {
		if err := validLimit(l); err != nil {
			add("limiter.limits.%s: %v", key, err)
		}
	}

	if c.Breaker.FailureThreshold <= 0 {
		add("breaker.failure_threshold must be positive")
	}
	if c.Breaker.ResetTimeout <= 0 {
		add("breaker.reset_timeout must be positive")
	}

	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts must be at least 1")
	}
	if c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < 0 {
		add("retry delays must not be negative")
	}
	if c.Retry.Multiplier != 0 && c.Retry.Multiplier < 1 {
		add("retry.multiplier must be at least 1")
	}

	if c.Stream.MaxSymbols <= 0 {
		add("stream.max_symbols must be positive")
	}
	if c.Stream.MaxSymbols > 0 && len(c.Symbols) > c.Stream.MaxSymbols {
		add("%d symbols exceed stream.max_symbols %d", len(c.Symbols), c.Stream.MaxSymbols)
	}
	for _, s := range c.Symbols {
		if _, err := stream.NormalizeSymbol(s); err != nil {
			add("symbols: %v", err)
		}
	}

	if c.Cache.DefaultTTL < 0 || c.Cache.MaxTTL < 0 {
		add("cache TTLs must not be negative")
	}

	if err := c.Observe.Validate(); err != nil {
		add("observe: %v", err)
	}

	if c.Health.Listen == "" {
		add("health.listen is required")
	}

	return errors.Join(errs...)
}

func validLimit(l resilience.Limit) error {
	if l.Requests <= 0 {
		return errors.New("requests must be positive")
	}
	if l.Window <= 0 {
		return errors.New("window must be positive")
	}
	return nil
}
