package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Executor runs an operation under some resilience policy.
// CircuitBreaker, Retry, Timeout and Guard all implement it.
type Executor interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// Admitter makes admission decisions for a key.
type Admitter interface {
	Check(ctx context.Context, key string) (bool, error)
}

// Operation is a call to a flaky dependency returning a value.
type Operation[T any] func(ctx context.Context) (T, error)

// Do runs a value-returning operation through exec.
func Do[T any](ctx context.Context, exec Executor, op Operation[T]) (T, error) {
	var (
		mu  sync.Mutex
		out T
	)
	err := exec.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		out = v
		mu.Unlock()
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	mu.Lock()
	defer mu.Unlock()
	return out, nil
}

// Wrap returns op composed with exec, keeping op's signature.
func Wrap[T any](exec Executor, op Operation[T]) Operation[T] {
	return func(ctx context.Context) (T, error) {
		return Do(ctx, exec, op)
	}
}

// GuardConfig configures a Guard. Every field is optional.
type GuardConfig struct {
	// Key is the limiter key evaluated before every attempt.
	Key string

	// Limiter gates attempts when Key is set.
	Limiter Admitter

	// Breaker isolates the dependency.
	Breaker *CircuitBreaker

	// Retry re-attempts failures that got past the gate and the breaker.
	Retry *Retry

	// Timeout bounds each attempt.
	Timeout time.Duration
}

// Guard composes the resilience layer for one protected dependency:
//
//	Retry( limiter gate -> CircuitBreaker( Timeout( op ) ) )
//
// Admission denial, an open circuit and store outages end the call at once;
// they are neither retried nor counted as breaker failures.
type Guard struct {
	key     string
	limiter Admitter
	breaker *CircuitBreaker
	retry   *Retry
	timeout *Timeout
}

// NewGuard creates a guard. Construct one per dependency and pass it to callers.
func NewGuard(config GuardConfig) *Guard {
	g := &Guard{
		key:     config.Key,
		limiter: config.Limiter,
		breaker: config.Breaker,
	}
	if config.Retry != nil {
		g.retry = config.Retry.withRetryIf(func(err error) bool {
			return !IsRejection(err)
		})
	}
	if config.Timeout > 0 {
		g.timeout = NewTimeout(TimeoutConfig{Timeout: config.Timeout})
	}
	return g
}

// Execute runs op through the configured layers.
func (g *Guard) Execute(ctx context.Context, op func(context.Context) error) error {
	if g.retry == nil {
		return g.attempt(ctx, op)
	}
	return g.retry.Execute(ctx, func(ctx context.Context) error {
		return g.attempt(ctx, op)
	})
}

func (g *Guard) attempt(ctx context.Context, op func(context.Context) error) error {
	if g.limiter != nil && g.key != "" {
		allowed, err := g.limiter.Check(ctx, g.key)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrAdmissionDenied
		}
	}

	inner := op
	if g.timeout != nil {
		inner = func(ctx context.Context) error {
			return g.timeout.Execute(ctx, op)
		}
	}

	if g.breaker != nil {
		return g.breaker.Execute(ctx, inner)
	}
	return inner(ctx)
}

// Breaker returns the guard's circuit breaker, if any.
func (g *Guard) Breaker() *CircuitBreaker {
	return g.breaker
}

// IsRejection reports whether err came from the resilience layer refusing
// the call rather than from the dependency itself.
func IsRejection(err error) bool {
	return errors.Is(err, ErrAdmissionDenied) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrInvalidKey)
}
