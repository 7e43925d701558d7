// Package observe provides the telemetry primitives shared by the limiter,
// breakers and the price stream.
//
// It wires OpenTelemetry tracing and metrics, a zap-backed structured Logger,
// and a Middleware that instruments calls to protected dependencies. It does
// no I/O of its own beyond exporter setup.
package observe
