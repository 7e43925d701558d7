package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse log output as JSON: %v\nOutput: %s", err, line)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_JSONEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "subscribed", F("symbol", "btcusdt"), F("duration_ms", 50.5))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["msg"] != "subscribed" {
		t.Errorf("msg = %v, want subscribed", e["msg"])
	}
	if e["level"] != "info" {
		t.Errorf("level = %v, want info", e["level"])
	}
	if e["symbol"] != "btcusdt" {
		t.Errorf("symbol = %v, want btcusdt", e["symbol"])
	}
	if v, ok := e["duration_ms"].(float64); !ok || v != 50.5 {
		t.Errorf("duration_ms = %v, want 50.5", e["duration_ms"])
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).With(F("component", "stream"))

	logger.Warn(context.Background(), "reconnecting")

	e := decodeLines(t, &buf)[0]
	if e["component"] != "stream" {
		t.Errorf("component = %v, want stream", e["component"])
	}
	if e["level"] != "warn" {
		t.Errorf("level = %v, want warn", e["level"])
	}
}

func TestLogger_ErrorValue(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Error(context.Background(), "dial failed", F("error", errors.New("connection refused")))

	e := decodeLines(t, &buf)[0]
	if e["error"] != "connection refused" {
		t.Errorf("error = %v, want connection refused", e["error"])
	}
}

func TestLogger_SecretsRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf).With(F("redis_password", "hunter2"))

	logger.Info(context.Background(), "connecting", F("token", "abc"), F("api_key", "xyz"))

	out := buf.String()
	for _, secret := range []string{"hunter2", "abc", "xyz"} {
		if strings.Contains(out, secret) {
			t.Errorf("log output leaked %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("expected [REDACTED] marker")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{"debug", 4},
		{"info", 3},
		{"warn", 2},
		{"error", 1},
		{"bogus", 3},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(tt.level, &buf)
			ctx := context.Background()

			logger.Debug(ctx, "d")
			logger.Info(ctx, "i")
			logger.Warn(ctx, "w")
			logger.Error(ctx, "e")

			if got := len(decodeLines(t, &buf)); got != tt.want {
				t.Errorf("entries = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLogger_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.Info(ctx, "inside span")

	e := decodeLines(t, &buf)[0]
	if e["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v, want %s", e["trace_id"], span.SpanContext().TraceID())
	}
}

func TestLogger_FromZap(t *testing.T) {
	if FromZap(nil) == nil {
		t.Fatal("FromZap(nil) returned nil")
	}
	FromZap(zap.NewNop()).Info(context.Background(), "discarded")
	NewNopLogger().With(F("k", "v")).Error(context.Background(), "discarded")
}

func TestParseLogLevel(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error"} {
		if got := ParseLogLevel(s).String(); got != s {
			t.Errorf("ParseLogLevel(%q).String() = %q", s, got)
		}
	}
	if ParseLogLevel("verbose") != LevelInfo {
		t.Error("unknown levels should default to info")
	}
}
