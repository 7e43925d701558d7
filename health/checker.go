package health

import (
	"context"
	"time"
)

// Status is the outcome of a check, ordered from best to worst.
type Status int

const (
	StatusHealthy Status = iota
	// StatusDegraded means the service still answers, for example from the
	// ticker cache while a breaker is open.
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText encodes s by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Worst returns the most severe of statuses, or StatusHealthy for none.
func Worst(statuses ...Status) Status {
	worst := StatusHealthy
	for _, s := range statuses {
		worst = max(worst, s)
	}
	return worst
}

// Result is one check outcome. Duration and a missing Timestamp are filled
// in by the Aggregator.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message, Timestamp: time.Now()}
}

func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err, Timestamp: time.Now()}
}

// WithDetails returns r carrying details.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker probes one dependency of the feed guard.
//
// Check must honor ctx; the aggregator reports a check that outlives its
// deadline as unhealthy.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc is a check without a name; see Named.
type CheckerFunc func(ctx context.Context) Result

// Named turns fn into a Checker registered as name.
func Named(name string, fn CheckerFunc) Checker {
	return namedChecker{name: name, fn: fn}
}

type namedChecker struct {
	name string
	fn   CheckerFunc
}

func (c namedChecker) Name() string                     { return c.name }
func (c namedChecker) Check(ctx context.Context) Result { return c.fn(ctx) }
