package resilience

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// WindowStore is the shared counter store behind the sliding window limiter.
//
// Contract:
//   - SlideWindow must run as one atomic unit: drop entries for key older than
//     now-window, count the rest, and only when that count is below limit add
//     an entry at now and set the key expiry to window.
//   - count is the number of entries observed before the add.
//   - Concurrency: implementations must be safe for concurrent use, including
//     across processes sharing the same backend.
type WindowStore interface {
	SlideWindow(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (count int64, allowed bool, err error)
}

// Limit is the number of requests allowed within a trailing window.
type Limit struct {
	Requests int           `mapstructure:"requests" yaml:"requests"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
}

// DefaultLimit applies to keys without a configured limit.
var DefaultLimit = Limit{Requests: 60, Window: time.Minute}

// DefaultLimits returns the per-API limits the bot ships with.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		"beratrail":    {Requests: 60, Window: time.Minute},
		"coingecko":    {Requests: 50, Window: time.Minute},
		"okx":          {Requests: 20, Window: time.Second},
		"news_monitor": {Requests: 30, Window: time.Minute},
		"analytics":    {Requests: 20, Window: time.Minute},
		"binance_ws":   {Requests: 5, Window: time.Minute},
	}
}

// LimiterConfig configures the sliding window limiter.
type LimiterConfig struct {
	// Prefix namespaces keys in the store.
	// Default: "rate_limit:"
	Prefix string

	// Default is used for keys missing from Limits.
	// Default: DefaultLimit
	Default Limit

	// Limits holds per-key overrides.
	Limits map[string]Limit

	// OnDecision is called after every successful evaluation.
	OnDecision func(key string, allowed bool)

	// Now overrides the clock.
	Now func() time.Time
}

// SlidingWindowLimiter performs per-key admission control against a shared store.
type SlidingWindowLimiter struct {
	store  WindowStore
	config LimiterConfig
}

// NewSlidingWindowLimiter creates a limiter backed by store.
func NewSlidingWindowLimiter(store WindowStore, config LimiterConfig) *SlidingWindowLimiter {
	if config.Prefix == "" {
		config.Prefix = "rate_limit:"
	}
	if config.Default.Requests <= 0 {
		config.Default.Requests = DefaultLimit.Requests
	}
	if config.Default.Window <= 0 {
		config.Default.Window = DefaultLimit.Window
	}
	limits := make(map[string]Limit, len(config.Limits))
	for k, v := range config.Limits {
		limits[k] = v
	}
	config.Limits = limits
	if config.Now == nil {
		config.Now = time.Now
	}

	return &SlidingWindowLimiter{store: store, config: config}
}

// Check reports whether a request for key is admitted under its configured limit.
// Denial is a normal false result; errors are reserved for store faults.
func (l *SlidingWindowLimiter) Check(ctx context.Context, key string) (bool, error) {
	return l.CheckLimit(ctx, key, Limit{})
}

// CheckLimit is Check with an explicit limit. Zero fields fall back to the
// configured value for key.
func (l *SlidingWindowLimiter) CheckLimit(ctx context.Context, key string, limit Limit) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, ErrInvalidKey
	}

	effective := l.LimitFor(key)
	if limit.Requests > 0 {
		effective.Requests = limit.Requests
	}
	if limit.Window > 0 {
		effective.Window = limit.Window
	}

	_, allowed, err := l.store.SlideWindow(ctx, l.config.Prefix+key, l.config.Now(), effective.Window, effective.Requests)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, key, err)
	}

	if l.config.OnDecision != nil {
		l.config.OnDecision(key, allowed)
	}
	return allowed, nil
}

// LimitFor returns the limit applied to key.
func (l *SlidingWindowLimiter) LimitFor(key string) Limit {
	if limit, ok := l.config.Limits[key]; ok {
		if limit.Requests <= 0 {
			limit.Requests = l.config.Default.Requests
		}
		if limit.Window <= 0 {
			limit.Window = l.config.Default.Window
		}
		return limit
	}
	return l.config.Default
}

// Execute runs op only when key is admitted, returning ErrAdmissionDenied otherwise.
func (l *SlidingWindowLimiter) Execute(ctx context.Context, key string, op func(context.Context) error) error {
	allowed, err := l.Check(ctx, key)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrAdmissionDenied
	}
	return op(ctx)
}
