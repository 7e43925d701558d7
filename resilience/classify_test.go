package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Action
	}{
		{"nil", nil, ActionAbort},
		{"admission denied", ErrAdmissionDenied, ActionFallback},
		{"circuit open", &CircuitOpenError{Name: "okx"}, ActionFallback},
		{"store unavailable", fmt.Errorf("%w: okx: boom", ErrStoreUnavailable), ActionAbort},
		{"authentication", ErrAuthentication, ActionAbort},
		{"cancelled", context.Canceled, ActionAbort},
		{"rate limited", fmt.Errorf("coingecko: %w", ErrRateLimited), ActionWaitAndRetry},
		{"network", ErrNetwork, ActionRetry},
		{"timeout", ErrTimeout, ActionRetry},
		{"deadline", context.DeadlineExceeded, ActionRetry},
		{"unexpected eof", io.ErrUnexpectedEOF, ActionRetry},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), ActionRetry},
		{"unknown", errors.New("bad payload"), ActionAbort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryTransient(t *testing.T) {
	if !RetryTransient(ErrNetwork) {
		t.Error("network errors should be retried")
	}
	if !RetryTransient(ErrRateLimited) {
		t.Error("upstream rate limiting should be retried")
	}
	if RetryTransient(ErrAdmissionDenied) {
		t.Error("admission denial should not be retried")
	}
	if RetryTransient(errors.New("bad payload")) {
		t.Error("unknown errors should not be retried")
	}
}

func TestAction_String(t *testing.T) {
	tests := []struct {
		action Action
		want   string
	}{
		{ActionAbort, "abort"},
		{ActionRetry, "retry"},
		{ActionWaitAndRetry, "wait_and_retry"},
		{ActionFallback, "fallback"},
		{Action(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.action.String(); got != tt.want {
			t.Errorf("Action(%d).String() = %q, want %q", tt.action, got, tt.want)
		}
	}
}
