package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means calls pass through.
	StateClosed State = iota
	// StateOpen means calls are rejected without being attempted.
	StateOpen
	// StateHalfOpen means a single probe call is in flight or due.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the protected dependency in errors and hooks.
	// Default: "default"
	Name string

	// FailureThreshold is the number of consecutive failures that opens the circuit.
	// Default: 5
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open after the last failure
	// before a probe call is let through.
	// Default: 60 seconds
	ResetTimeout time.Duration

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool

	// OnStateChange is called after every transition, outside the breaker lock.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock.
	Now func() time.Time
}

// CircuitBreaker isolates a failing dependency.
//
// Transitions:
//   - closed -> open when consecutive failures reach FailureThreshold
//   - open -> half-open on the first call after ResetTimeout since the last failure
//   - half-open -> closed when the probe succeeds, -> open when it fails
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	lastSuccess time.Time
	probing     bool
}

type transition struct {
	from, to State
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Name == "" {
		config.Name = "default"
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Execute runs op through the circuit breaker. The breaker never retries;
// errors from op are returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) (err error) {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterRequest(fmt.Errorf("resilience: panic in %s: %v", cb.config.Name, r))
			panic(r)
		}
	}()

	err = op(ctx)
	cb.afterRequest(err)
	return err
}

// Call runs op through cb and returns its value.
func Call[T any](ctx context.Context, cb *CircuitBreaker, op Operation[T]) (T, error) {
	return Do(ctx, cb, op)
}

// State returns the current state. An open circuit whose reset timeout has
// elapsed reports half-open; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.observedStateLocked()
}

// Reset forces the breaker back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.setStateLocked(StateClosed)
	cb.failures = 0
	cb.probing = false
	cb.mu.Unlock()

	cb.notify(t)
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()

	var t *transition
	switch cb.state {
	case StateOpen:
		if cb.config.Now().Sub(cb.lastFailure) < cb.config.ResetTimeout {
			cb.mu.Unlock()
			return &CircuitOpenError{Name: cb.config.Name, State: StateOpen}
		}
		t = cb.setStateLocked(StateHalfOpen)
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			return &CircuitOpenError{Name: cb.config.Name, State: StateHalfOpen}
		}
		cb.probing = true
	}
	cb.mu.Unlock()

	cb.notify(t)
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()

	failed := cb.config.IsFailure(err)
	now := cb.config.Now()

	var t *transition
	switch cb.state {
	case StateHalfOpen:
		cb.probing = false
		if failed {
			cb.failures++
			cb.lastFailure = now
			t = cb.setStateLocked(StateOpen)
		} else {
			cb.failures = 0
			cb.lastSuccess = now
			t = cb.setStateLocked(StateClosed)
		}

	case StateClosed:
		if failed {
			cb.failures++
			cb.lastFailure = now
			if cb.failures >= cb.config.FailureThreshold {
				t = cb.setStateLocked(StateOpen)
			}
		} else {
			cb.failures = 0
			cb.lastSuccess = now
		}

	case StateOpen:
		// A call admitted while closed finished after the circuit opened.
		if failed {
			cb.failures++
			cb.lastFailure = now
		} else {
			cb.lastSuccess = now
		}
	}
	cb.mu.Unlock()

	cb.notify(t)
}

func (cb *CircuitBreaker) observedStateLocked() State {
	if cb.state == StateOpen && cb.config.Now().Sub(cb.lastFailure) >= cb.config.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) setStateLocked(state State) *transition {
	if cb.state == state {
		return nil
	}
	t := &transition{from: cb.state, to: state}
	cb.state = state
	return t
}

func (cb *CircuitBreaker) notify(t *transition) {
	if t != nil && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, t.from, t.to)
	}
}

// Snapshot returns the current breaker state and counters.
func (cb *CircuitBreaker) Snapshot() CircuitBreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerSnapshot{
		Name:             cb.config.Name,
		State:            cb.observedStateLocked(),
		Failures:         cb.failures,
		LastFailure:      cb.lastFailure,
		LastSuccess:      cb.lastSuccess,
		FailureThreshold: cb.config.FailureThreshold,
		ResetTimeout:     cb.config.ResetTimeout,
	}
}

// CircuitBreakerSnapshot contains circuit breaker state.
type CircuitBreakerSnapshot struct {
	Name             string
	State            State
	Failures         int
	LastFailure      time.Time
	LastSuccess      time.Time
	FailureThreshold int
	ResetTimeout     time.Duration
}
