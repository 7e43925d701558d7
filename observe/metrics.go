package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Reconnect outcomes reported to RecordReconnect.
const (
	ReconnectSucceeded = "succeeded"
	ReconnectFailed    = "failed"
	ReconnectExhausted = "exhausted"
)

// Metrics records resilience and streaming metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordExecution records one call to a dependency.
	RecordExecution(ctx context.Context, meta DependencyMeta, duration time.Duration, err error)

	// RecordAdmission records a limiter decision for key.
	RecordAdmission(ctx context.Context, key string, allowed bool)

	// RecordBreakerTransition records a circuit breaker state change.
	RecordBreakerTransition(ctx context.Context, name, from, to string)

	// RecordRetry records a scheduled retry of a failed attempt.
	RecordRetry(ctx context.Context, name string, attempt int, delay time.Duration)

	// RecordReconnect records the outcome of a stream reconnect attempt.
	RecordReconnect(ctx context.Context, outcome string)

	// RecordDispatch records fan-out of one ticker to its handlers.
	RecordDispatch(ctx context.Context, symbol string, duration time.Duration, timedOut bool)

	// RecordHandlerError records a failed or panicking stream handler.
	RecordHandlerError(ctx context.Context, symbol string)
}

type metricsImpl struct {
	callCount        metric.Int64Counter
	errorCount       metric.Int64Counter
	durationHist     metric.Float64Histogram
	admissions       metric.Int64Counter
	transitions      metric.Int64Counter
	retries          metric.Int64Counter
	retryDelay       metric.Float64Histogram
	reconnects       metric.Int64Counter
	dispatchHist     metric.Float64Histogram
	dispatchTimeouts metric.Int64Counter
	handlerErrors    metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	var (
		m   metricsImpl
		err error
	)

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.callCount, "dependency.calls", "Calls made to protected dependencies", "{call}"},
		{&m.errorCount, "dependency.errors", "Failed calls to protected dependencies", "{error}"},
		{&m.admissions, "limiter.decisions", "Sliding window admission decisions", "{decision}"},
		{&m.transitions, "breaker.transitions", "Circuit breaker state changes", "{transition}"},
		{&m.retries, "retry.attempts", "Retries scheduled after a failed attempt", "{retry}"},
		{&m.reconnects, "stream.reconnects", "Price stream reconnect attempts", "{reconnect}"},
		{&m.dispatchTimeouts, "stream.dispatch.timeouts", "Ticker dispatches that hit the deadline", "{dispatch}"},
		{&m.handlerErrors, "stream.handler.errors", "Stream handlers that failed or panicked", "{error}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.durationHist, "dependency.duration_ms", "Dependency call duration in milliseconds"},
		{&m.retryDelay, "retry.delay_ms", "Backoff delay before a retry in milliseconds"},
		{&m.dispatchHist, "stream.dispatch.duration_ms", "Ticker fan-out duration in milliseconds"},
	}
	for _, h := range histograms {
		*h.dst, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("ms"))
		if err != nil {
			return nil, err
		}
	}

	return &m, nil
}

func (m *metricsImpl) RecordExecution(ctx context.Context, meta DependencyMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(meta.attributes()...)

	m.callCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordAdmission(ctx context.Context, key string, allowed bool) {
	m.admissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter.key", key),
		attribute.Bool("limiter.allowed", allowed),
	))
}

func (m *metricsImpl) RecordBreakerTransition(ctx context.Context, name, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.name", name),
		attribute.String("breaker.from", from),
		attribute.String("breaker.to", to),
	))
}

func (m *metricsImpl) RecordRetry(ctx context.Context, name string, attempt int, delay time.Duration) {
	opt := metric.WithAttributes(attribute.String("dependency.name", name))
	m.retries.Add(ctx, 1, opt)
	m.retryDelay.Record(ctx, float64(delay.Milliseconds()), opt)
}

func (m *metricsImpl) RecordReconnect(ctx context.Context, outcome string) {
	m.reconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("stream.outcome", outcome)))
}

func (m *metricsImpl) RecordDispatch(ctx context.Context, symbol string, duration time.Duration, timedOut bool) {
	opt := metric.WithAttributes(attribute.String("stream.symbol", symbol))
	m.dispatchHist.Record(ctx, float64(duration.Milliseconds()), opt)
	if timedOut {
		m.dispatchTimeouts.Add(ctx, 1, opt)
	}
}

func (m *metricsImpl) RecordHandlerError(ctx context.Context, symbol string) {
	m.handlerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stream.symbol", symbol)))
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) RecordExecution(context.Context, DependencyMeta, time.Duration, error) {}
func (noopMetrics) RecordAdmission(context.Context, string, bool)                         {}
func (noopMetrics) RecordBreakerTransition(context.Context, string, string, string)       {}
func (noopMetrics) RecordRetry(context.Context, string, int, time.Duration)               {}
func (noopMetrics) RecordReconnect(context.Context, string)                               {}
func (noopMetrics) RecordDispatch(context.Context, string, time.Duration, bool)           {}
func (noopMetrics) RecordHandlerError(context.Context, string)                            {}
