package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is matched by every rejection from an open circuit breaker.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrAdmissionDenied is returned by composed executors when the limiter
	// refuses a request. Limiter.Check itself reports denial as false.
	ErrAdmissionDenied = errors.New("resilience: admission denied")

	// ErrStoreUnavailable wraps failures of the shared counter store.
	ErrStoreUnavailable = errors.New("resilience: counter store unavailable")

	// ErrInvalidKey is returned when a limiter key is empty.
	ErrInvalidKey = errors.New("resilience: limiter key is empty")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrBulkheadFull is returned when every bulkhead slot is taken.
	ErrBulkheadFull = errors.New("resilience: bulkhead full")
)

// Upstream error taxonomy. Fetchers wrap their failures with these so that
// Classify can decide how a caller should react.
var (
	// ErrRateLimited reports that an upstream API rejected the call (HTTP 429).
	ErrRateLimited = errors.New("resilience: upstream rate limited")

	// ErrNetwork reports a connectivity failure to an upstream API.
	ErrNetwork = errors.New("resilience: upstream network failure")

	// ErrAuthentication reports rejected upstream credentials.
	ErrAuthentication = errors.New("resilience: upstream authentication failed")
)

// CircuitOpenError is returned when a named breaker rejects a call.
type CircuitOpenError struct {
	Name  string
	State State
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("resilience: circuit breaker %q is %s", e.Name, e.State)
}

// Is reports whether target is ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}
