package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DependencyMeta describes a protected dependency for telemetry purposes.
type DependencyMeta struct {
	Name string // Dependency name, usually the limiter key (required)
	Kind string // Transport kind: redis, websocket, http (optional)
}

// SpanName returns the deterministic span name for this dependency.
// Format: dependency.<kind>.<name> or dependency.<name>
func (m DependencyMeta) SpanName() string {
	if m.Kind != "" {
		return "dependency." + m.Kind + "." + m.Name
	}
	return "dependency." + m.Name
}

// ID returns the fully qualified dependency identifier.
func (m DependencyMeta) ID() string {
	if m.Kind != "" {
		return m.Kind + "." + m.Name
	}
	return m.Name
}

func (m DependencyMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("dependency.id", m.ID()),
		attribute.String("dependency.name", m.Name),
	}
	if m.Kind != "" {
		attrs = append(attrs, attribute.String("dependency.kind", m.Kind))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with dependency span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a dependency call.
	StartSpan(ctx context.Context, meta DependencyMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return newNoopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta DependencyMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("dependency.error", false))

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("dependency.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta DependencyMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
