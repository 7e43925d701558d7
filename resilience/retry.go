package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry. Later retries wait
	// InitialDelay * Multiplier^n.
	// Default: 1s
	InitialDelay time.Duration

	// Multiplier is the backoff multiplier.
	// Default: 2.0
	Multiplier float64

	// MaxDelay caps the delay between retries. Zero leaves growth unbounded.
	MaxDelay time.Duration

	// Jitter adds up to 25% random delay to each wait.
	Jitter bool

	// RetryIf reports whether an error is retryable. Non-retryable errors are
	// returned immediately.
	// Default: all non-nil errors are retried.
	RetryIf func(err error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleep overrides how the retry waits. It must return ctx.Err() when the
	// context ends first.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Retry re-invokes failed operations with exponential backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}

	return &Retry{config: config}
}

// Execute runs op until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. The last error is returned unwrapped.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.RetryIf(err) {
			return err
		}
		if attempt+1 >= r.config.MaxAttempts {
			break
		}

		delay := r.Delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt+1, err, delay)
		}
		if err := r.config.Sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// Delay returns the wait after the given zero-based failed attempt.
func (r *Retry) Delay(attempt int) time.Duration {
	mult := math.Pow(r.config.Multiplier, float64(attempt))
	f := float64(r.config.InitialDelay) * mult

	if f > math.MaxInt64 {
		f = math.MaxInt64
	}
	delay := time.Duration(f)

	if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	if r.config.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}

	return delay
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// withRetryIf returns a copy of r whose retry predicate also has to pass keep.
func (r *Retry) withRetryIf(keep func(error) bool) *Retry {
	cfg := r.config
	inner := cfg.RetryIf
	cfg.RetryIf = func(err error) bool {
		return keep(err) && inner(err)
	}
	return &Retry{config: cfg}
}

// RetryOn returns a predicate matching any of targets via errors.Is.
func RetryOn(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// RetryOnType returns a predicate matching errors of type E via errors.As.
func RetryOnType[E error]() func(error) bool {
	return func(err error) bool {
		var target E
		return errors.As(err, &target)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
