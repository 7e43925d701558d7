package exporters

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTracingExporter_UnknownName(t *testing.T) {
	_, err := NewTracingExporter(context.Background(), "jaeger")
	if err == nil || !strings.Contains(err.Error(), "unknown exporter") {
		t.Errorf("NewTracingExporter(jaeger) error = %v, want unknown exporter", err)
	}
}

func TestNewTracingExporter_StdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	exp, err := NewTracingExporter(context.Background(), "stdout", WithWriter(&buf))
	if err != nil {
		t.Fatalf("NewTracingExporter(stdout) error = %v", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("test").Start(context.Background(), "dependency.redis.limiter")
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if !strings.Contains(buf.String(), "dependency.redis.limiter") {
		t.Errorf("stdout output missing span name: %q", buf.String())
	}
}

func TestNewTracingExporter_OtlpRequiresEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")

	_, err := NewTracingExporter(context.Background(), "otlp")
	if !errors.Is(err, ErrEndpointNotConfigured) {
		t.Errorf("NewTracingExporter(otlp) error = %v, want ErrEndpointNotConfigured", err)
	}
}

func TestNewTracingExporter_OtlpWithEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4317")

	exp, err := NewTracingExporter(context.Background(), "otlp")
	if err != nil {
		t.Fatalf("NewTracingExporter(otlp) error = %v", err)
	}
	if exp == nil {
		t.Error("NewTracingExporter(otlp) returned nil exporter")
	}
}

func TestNewTracingExporter_None(t *testing.T) {
	exp, err := NewTracingExporter(context.Background(), "none")
	if err != nil {
		t.Fatalf("NewTracingExporter(none) error = %v", err)
	}
	if exp == nil {
		t.Error("NewTracingExporter(none) returned nil exporter")
	}
}

func TestNewMetricsReader_OtlpRequiresEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	_, err := NewMetricsReader(context.Background(), "otlp")
	if !errors.Is(err, ErrEndpointNotConfigured) {
		t.Errorf("NewMetricsReader(otlp) error = %v, want ErrEndpointNotConfigured", err)
	}
}

func TestNewMetricsReader_PrometheusRegistry(t *testing.T) {
	reg := promclient.NewRegistry()
	reader, err := NewMetricsReader(context.Background(), "prometheus", WithRegisterer(reg))
	if err != nil {
		t.Fatalf("NewMetricsReader(prometheus) error = %v", err)
	}
	if reader == nil {
		t.Fatal("NewMetricsReader(prometheus) returned nil reader")
	}

	// The exporter's collector is registered with the supplied registry.
	if _, err := reg.Gather(); err != nil {
		t.Errorf("Gather() error = %v", err)
	}
}

func TestNewMetricsReader_StdoutAndNone(t *testing.T) {
	for _, name := range []string{"stdout", "none", ""} {
		reader, err := NewMetricsReader(context.Background(), name, WithWriter(&bytes.Buffer{}))
		if err != nil {
			t.Errorf("NewMetricsReader(%q) error = %v", name, err)
			continue
		}
		if reader == nil {
			t.Errorf("NewMetricsReader(%q) returned nil reader", name)
		}
	}
}

func TestNewMetricsReader_UnknownName(t *testing.T) {
	_, err := NewMetricsReader(context.Background(), "badvalue")
	if err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Errorf("NewMetricsReader(badvalue) error = %v, want unknown", err)
	}
}
