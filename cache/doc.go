// Package cache keeps last-known values for upstream data so callers can
// keep answering when the upstream is throttled or its circuit is open.
//
// It provides a Cache interface with in-memory and store-backed
// implementations, deterministic key derivation, TTL policies, a Fallback
// executor that serves stale values on rejection, and a stream handler that
// records the latest ticker per symbol.
package cache
