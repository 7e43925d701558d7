package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// Action is the recommended reaction to an error.
type Action int

const (
	// ActionAbort gives up; retrying cannot help.
	ActionAbort Action = iota
	// ActionRetry retries right away with normal backoff.
	ActionRetry
	// ActionWaitAndRetry retries after the upstream's own cooldown.
	ActionWaitAndRetry
	// ActionFallback serves cached or last-known data instead.
	ActionFallback
)

func (a Action) String() string {
	switch a {
	case ActionAbort:
		return "abort"
	case ActionRetry:
		return "retry"
	case ActionWaitAndRetry:
		return "wait_and_retry"
	case ActionFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Classify maps an error to the action a caller should take.
func Classify(err error) Action {
	switch {
	case err == nil:
		return ActionAbort
	case errors.Is(err, ErrAdmissionDenied), errors.Is(err, ErrCircuitOpen):
		return ActionFallback
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrStoreUnavailable):
		return ActionAbort
	case errors.Is(err, context.Canceled):
		return ActionAbort
	case errors.Is(err, ErrRateLimited):
		return ActionWaitAndRetry
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ActionRetry
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return ActionRetry
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ActionRetry
	}
	return ActionAbort
}

// RetryTransient is a RetryIf predicate accepting errors classified as
// ActionRetry or ActionWaitAndRetry.
func RetryTransient(err error) bool {
	switch Classify(err) {
	case ActionRetry, ActionWaitAndRetry:
		return true
	default:
		return false
	}
}
