package observe

import (
	"context"
	"time"
)

// ExecuteFunc is a call to a protected dependency.
type ExecuteFunc func(ctx context.Context) error

// Executor runs an operation under some policy. resilience.Guard,
// resilience.CircuitBreaker and resilience.Retry satisfy it.
type Executor interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// Middleware wraps dependency calls with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: Wrap returns a function safe for concurrent use.
//   - Context: the span context is propagated to the wrapped function.
//   - Errors: errors are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	return NewMiddleware(NewTracer(obs.Tracer()), obs.Metrics(), obs.Logger()), nil
}

// Wrap instruments fn as a call to meta.
func (m *Middleware) Wrap(meta DependencyMeta, fn ExecuteFunc) ExecuteFunc {
	logger := m.logger.With(F("dependency", meta.ID()))

	return func(ctx context.Context) error {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		err := fn(ctx)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordExecution(ctx, meta, duration, err)

		fields := []Field{F("duration_ms", float64(duration.Milliseconds()))}
		if err != nil {
			fields = append(fields, F("error", err.Error()))
			logger.Warn(ctx, "dependency call failed", fields...)
		} else {
			logger.Debug(ctx, "dependency call completed", fields...)
		}

		return err
	}
}

// Executor returns an Executor that runs next under one instrumented call.
// A nil next runs operations directly.
func (m *Middleware) Executor(meta DependencyMeta, next Executor) Executor {
	return &instrumented{mw: m, meta: meta, next: next}
}

type instrumented struct {
	mw   *Middleware
	meta DependencyMeta
	next Executor
}

func (e *instrumented) Execute(ctx context.Context, op func(context.Context) error) error {
	return e.mw.Wrap(e.meta, func(ctx context.Context) error {
		if e.next == nil {
			return op(ctx)
		}
		return e.next.Execute(ctx, op)
	})(ctx)
}
