package resilience

import (
	"context"
	"errors"
	"time"
)

// TimeoutConfig configures a Timeout.
type TimeoutConfig struct {
	// Timeout is how long a caller waits.
	// Default: 30s
	Timeout time.Duration
}

// Timeout stops waiting for an operation once its deadline passes. The
// operation is not stopped: it sees a cancelled context and finishes on its
// own goroutine.
type Timeout struct {
	limit time.Duration
}

// NewTimeout creates a Timeout.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Timeout{limit: config.Timeout}
}

// Execute runs op and returns its error, or ErrTimeout once the deadline
// passes first. Cancellation of ctx is returned as ctx.Err().
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.limit)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

// Config returns the configuration in effect.
func (t *Timeout) Config() TimeoutConfig {
	return TimeoutConfig{Timeout: t.limit}
}

// ExecuteWithTimeout runs op under a one-off Timeout of d.
func ExecuteWithTimeout(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	return NewTimeout(TimeoutConfig{Timeout: d}).Execute(ctx, op)
}
