package observe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

// sumValue returns the total of all data points of an int64 counter.
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	found := findMetric(rm, name)
	if found == nil {
		return 0
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", name, found.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordExecution(t *testing.T) {
	m, reader := newTestMetrics(t)
	meta := DependencyMeta{Name: "coingecko", Kind: "http"}

	m.RecordExecution(context.Background(), meta, 100*time.Millisecond, nil)
	m.RecordExecution(context.Background(), meta, 50*time.Millisecond, errors.New("boom"))

	rm := collect(t, reader)
	if got := sumValue(t, rm, "dependency.calls"); got != 2 {
		t.Errorf("dependency.calls = %d, want 2", got)
	}
	if got := sumValue(t, rm, "dependency.errors"); got != 1 {
		t.Errorf("dependency.errors = %d, want 1", got)
	}

	found := findMetric(rm, "dependency.duration_ms")
	if found == nil {
		t.Fatal("dependency.duration_ms metric not found")
	}
	hist, ok := found.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", found.Data)
	}
	if hist.DataPoints[0].Count != 2 {
		t.Errorf("histogram count = %d, want 2", hist.DataPoints[0].Count)
	}
}

func TestMetrics_LabelsApplied(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordExecution(context.Background(), DependencyMeta{Name: "limiter", Kind: "redis"}, time.Millisecond, nil)

	found := findMetric(collect(t, reader), "dependency.calls")
	if found == nil {
		t.Fatal("dependency.calls metric not found")
	}
	dp := found.Data.(metricdata.Sum[int64]).DataPoints[0]

	want := map[attribute.Key]string{
		"dependency.id":   "redis.limiter",
		"dependency.name": "limiter",
		"dependency.kind": "redis",
	}
	for key, value := range want {
		got, ok := dp.Attributes.Value(key)
		if !ok || got.AsString() != value {
			t.Errorf("attribute %s = %v, want %q", key, got.AsString(), value)
		}
	}
}

func TestMetrics_ResilienceEvents(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAdmission(ctx, "binance_ws", true)
	m.RecordAdmission(ctx, "binance_ws", false)
	m.RecordBreakerTransition(ctx, "okx", "closed", "open")
	m.RecordRetry(ctx, "okx", 1, time.Second)
	m.RecordReconnect(ctx, ReconnectSucceeded)
	m.RecordDispatch(ctx, "btcusdt", 3*time.Millisecond, false)
	m.RecordDispatch(ctx, "btcusdt", time.Second, true)
	m.RecordHandlerError(ctx, "btcusdt")

	rm := collect(t, reader)
	tests := []struct {
		name string
		want int64
	}{
		{"limiter.decisions", 2},
		{"breaker.transitions", 1},
		{"retry.attempts", 1},
		{"stream.reconnects", 1},
		{"stream.dispatch.timeouts", 1},
		{"stream.handler.errors", 1},
	}
	for _, tt := range tests {
		if got := sumValue(t, rm, tt.name); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	m, reader := newTestMetrics(t)

	const numGoroutines = 50
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordAdmission(context.Background(), "shared", true)
		}()
	}
	wg.Wait()

	if got := sumValue(t, collect(t, reader), "limiter.decisions"); got != numGoroutines {
		t.Errorf("expected count %d, got %d", numGoroutines, got)
	}
}

func TestNopMetrics_NoPanic(t *testing.T) {
	m := NopMetrics()
	ctx := context.Background()
	m.RecordExecution(ctx, DependencyMeta{Name: "noop"}, time.Millisecond, nil)
	m.RecordAdmission(ctx, "k", true)
	m.RecordBreakerTransition(ctx, "b", "closed", "open")
	m.RecordRetry(ctx, "r", 1, time.Second)
	m.RecordReconnect(ctx, ReconnectFailed)
	m.RecordDispatch(ctx, "s", time.Millisecond, false)
	m.RecordHandlerError(ctx, "s")
}

// findMetric searches for a metric by name in ResourceMetrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}
