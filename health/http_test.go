package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, agg *Aggregator, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	Routes(agg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoutes_Liveness(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	agg.Register(fixed("redis", StatusUnhealthy))

	rec := serve(t, agg, "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET /healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRoutes_Readiness(t *testing.T) {
	tests := []struct {
		status Status
		code   int
		body   string
	}{
		{StatusHealthy, http.StatusOK, "OK"},
		{StatusDegraded, http.StatusOK, "DEGRADED"},
		{StatusUnhealthy, http.StatusServiceUnavailable, "UNHEALTHY"},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			agg := NewAggregator(AggregatorConfig{})
			agg.Register(fixed("redis", tt.status))

			rec := serve(t, agg, "/readyz")
			if rec.Code != tt.code || rec.Body.String() != tt.body {
				t.Errorf("GET /readyz = %d %q, want %d %q", rec.Code, rec.Body.String(), tt.code, tt.body)
			}
		})
	}
}

func TestRoutes_Detailed(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	agg.Register(fixed("redis", StatusHealthy))
	agg.Register(Named("price_stream", func(context.Context) Result {
		return Unhealthy("gave up", ErrCheckFailed).WithDetails(map[string]any{"pending": 2})
	}))

	rec := serve(t, agg, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "unhealthy" || len(resp.Checks) != 2 {
		t.Fatalf("response = %+v", resp)
	}
	ps := resp.Checks["price_stream"]
	if ps.Error != ErrCheckFailed.Error() || ps.Details["pending"] != float64(2) {
		t.Errorf("price_stream = %+v", ps)
	}
}

func TestRoutes_SingleCheck(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	agg.Register(fixed("breakers", StatusDegraded))

	rec := serve(t, agg, "/health/breakers")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health/breakers = %d", rec.Code)
	}
	var cr CheckResponse
	if err := json.NewDecoder(rec.Body).Decode(&cr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cr.Status != "degraded" {
		t.Errorf("status = %q", cr.Status)
	}

	if rec := serve(t, agg, "/health/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /health/nope = %d, want 404", rec.Code)
	}
}
