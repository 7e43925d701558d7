package resilience

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"
)

// recordSleep collects requested delays instead of waiting.
func recordSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestNewRetry_Defaults(t *testing.T) {
	r := NewRetry(RetryConfig{})

	if r.config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", r.config.MaxAttempts)
	}
	if r.config.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want 1s", r.config.InitialDelay)
	}
	if r.config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", r.config.Multiplier)
	}
	if r.config.MaxDelay != 0 {
		t.Errorf("MaxDelay = %v, want unbounded", r.config.MaxDelay)
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_FailsTwiceThenSucceeds(t *testing.T) {
	var delays []time.Duration
	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2,
		Sleep:        recordSleep(&delays),
	})

	attempts := 0
	got, err := Do(context.Background(), r, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "42.5", nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "42.5" {
		t.Errorf("Do() = %q, want 42.5", got)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if fmt.Sprint(delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", delays, want)
	}
}

func TestRetry_ExhaustedReturnsOriginalError(t *testing.T) {
	var delays []time.Duration
	r := NewRetry(RetryConfig{
		MaxAttempts: 2,
		Sleep:       recordSleep(&delays),
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		_, err := strconv.Atoi("not a number")
		return err
	})

	var numErr *strconv.NumError
	if !errors.As(err, &numErr) {
		t.Fatalf("Execute() error = %T, want *strconv.NumError", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(delays) != 1 {
		t.Errorf("sleeps = %d, want 1", len(delays))
	}
}

func TestRetry_ErrorIdentityPreserved(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, Sleep: recordSleep(new([]time.Duration))})
	persistent := errors.New("persistent")

	err := r.Execute(context.Background(), failing(persistent))
	if err != persistent {
		t.Errorf("Execute() error = %v, want the same error value", err)
	}
}

func TestRetry_NonRetryableReturnsImmediately(t *testing.T) {
	var delays []time.Duration
	permanent := errors.New("permanent")
	r := NewRetry(RetryConfig{
		MaxAttempts: 5,
		RetryIf:     func(err error) bool { return !errors.Is(err, permanent) },
		Sleep:       recordSleep(&delays),
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return permanent
	})

	if err != permanent {
		t.Errorf("Execute() error = %v, want %v", err, permanent)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if len(delays) != 0 {
		t.Errorf("sleeps = %d, want 0", len(delays))
	}
}

func TestRetry_RetryOnType(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts: 3,
		RetryIf:     RetryOnType[*strconv.NumError](),
		Sleep:       recordSleep(new([]time.Duration)),
	})

	attempts := 0
	other := errors.New("other")
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			_, err := strconv.Atoi("x")
			return err
		}
		return other
	})

	if err != other {
		t.Errorf("Execute() error = %v, want %v", err, other)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetry_RetryOn(t *testing.T) {
	pred := RetryOn(ErrNetwork, ErrTimeout)

	if !pred(fmt.Errorf("fetch: %w", ErrNetwork)) {
		t.Error("wrapped ErrNetwork should be retryable")
	}
	if pred(errors.New("bad request")) {
		t.Error("unrelated error should not be retryable")
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:  10,
		InitialDelay: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := r.Execute(ctx, func(ctx context.Context) error {
		attempts++
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_OnRetry(t *testing.T) {
	var seen []int
	r := NewRetry(RetryConfig{
		MaxAttempts: 3,
		Sleep:       recordSleep(new([]time.Duration)),
		OnRetry: func(attempt int, err error, delay time.Duration) {
			seen = append(seen, attempt)
		},
	})

	_ = r.Execute(context.Background(), failing(errors.New("fail")))

	if fmt.Sprint(seen) != "[1 2]" {
		t.Errorf("OnRetry attempts = %v, want [1 2]", seen)
	}
}

func TestRetry_Delay(t *testing.T) {
	tests := []struct {
		name    string
		config  RetryConfig
		attempt int
		want    time.Duration
	}{
		{"first", RetryConfig{InitialDelay: time.Second, Multiplier: 2}, 0, time.Second},
		{"third", RetryConfig{InitialDelay: time.Second, Multiplier: 2}, 2, 4 * time.Second},
		{"multiplier 3", RetryConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 3}, 2, 90 * time.Millisecond},
		{"unbounded", RetryConfig{InitialDelay: time.Second, Multiplier: 2}, 10, 1024 * time.Second},
		{"capped", RetryConfig{InitialDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}, 10, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewRetry(tt.config).Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestRetry_DelayJitterBounds(t *testing.T) {
	r := NewRetry(RetryConfig{InitialDelay: 100 * time.Millisecond, Jitter: true})

	for i := 0; i < 50; i++ {
		d := r.Delay(0)
		if d < 100*time.Millisecond || d >= 125*time.Millisecond {
			t.Fatalf("Delay(0) = %v, want within [100ms, 125ms)", d)
		}
	}
}
