// Package store provides the shared counter store behind admission control.
//
// Two implementations are provided:
//
//   - RedisStore keeps each sliding window in a Redis sorted set and evaluates
//     it with a single Lua script, so every process sharing the Redis instance
//     sees one budget per key.
//   - MemoryStore keeps windows in process memory for tests and single-process
//     deployments.
//
// Both also hold small opaque blobs with a TTL, used by the last-known-value
// cache.
package store
