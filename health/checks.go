package health

import (
	"context"
	"fmt"
	"time"

	"github.com/berabot/feedguard/resilience"
	"github.com/berabot/feedguard/store"
	"github.com/berabot/feedguard/stream"
)

// StoreChecker pings the shared counter store.
type StoreChecker struct {
	name    string
	pinger  store.Pinger
	timeout time.Duration
}

// NewStoreChecker checks p with the given ping timeout (default 2s).
func NewStoreChecker(name string, p store.Pinger, timeout time.Duration) *StoreChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &StoreChecker{name: name, pinger: p, timeout: timeout}
}

func (c *StoreChecker) Name() string { return c.name }

// Check reports unhealthy when the ping fails or outlasts the timeout:
// admission decisions cannot be made without the store.
func (c *StoreChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := resilience.ExecuteWithTimeout(ctx, c.timeout, c.pinger.Ping); err != nil {
		return Unhealthy("store unreachable", err)
	}
	return Healthy("store reachable").WithDetails(map[string]any{
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

// StreamStatus is the view of a stream manager the checker needs.
type StreamStatus interface {
	Stats() stream.Stats
}

// StreamChecker reports the price stream connection.
type StreamChecker struct {
	name   string
	stream StreamStatus
}

// NewStreamChecker creates a checker for s.
func NewStreamChecker(name string, s StreamStatus) *StreamChecker {
	return &StreamChecker{name: name, stream: s}
}

func (c *StreamChecker) Name() string { return c.name }

func (c *StreamChecker) Check(context.Context) Result {
	s := c.stream.Stats()
	details := map[string]any{
		"state":          s.State.String(),
		"symbols":        s.Symbols,
		"pending":        s.Pending,
		"reconnects":     s.Reconnects,
		"handler_errors": s.HandlerErrors,
	}

	var r Result
	switch s.State {
	case stream.StateRunning:
		if s.Pending > 0 {
			r = Degraded(fmt.Sprintf("%d subscriptions awaiting admission", s.Pending))
		} else {
			r = Healthy("connected")
		}
	case stream.StateConnecting, stream.StateReconnecting:
		r = Degraded("reconnecting")
	case stream.StateDisconnected:
		if s.Pending > 0 {
			r = Unhealthy("disconnected with pending subscriptions",
				fmt.Errorf("%w: %d symbols not restored", ErrCheckFailed, s.Pending))
		} else {
			r = Healthy("idle")
		}
	default:
		r = Unhealthy("closing", ErrCheckFailed)
	}
	return r.WithDetails(details)
}

// BreakerChecker reports circuit breaker states. Any breaker not closed
// degrades the result.
type BreakerChecker struct {
	name     string
	breakers []*resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker over breakers.
func NewBreakerChecker(name string, breakers ...*resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breakers: breakers}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(context.Context) Result {
	details := make(map[string]any, len(c.breakers))
	var tripped []string

	for _, b := range c.breakers {
		if b == nil {
			continue
		}
		snap := b.Snapshot()
		details[snap.Name] = map[string]any{
			"state":    snap.State.String(),
			"failures": snap.Failures,
		}
		if snap.State != resilience.StateClosed {
			tripped = append(tripped, snap.Name)
		}
	}

	if len(tripped) > 0 {
		return Degraded(fmt.Sprintf("circuits not closed: %v", tripped)).WithDetails(details)
	}
	return Healthy("all circuits closed").WithDetails(details)
}
