package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned by Get when the key holds no value.
	ErrNotFound = errors.New("store: key not found")

	// ErrUnavailable is returned by MemoryStore while it is marked unhealthy.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// BlobStore holds opaque values with an optional expiry.
//
// Contract:
//   - Get returns ErrNotFound on a miss or an expired value.
//   - Set with ttl <= 0 stores the value without expiry.
//   - Delete is idempotent.
//   - Implementations must be safe for concurrent use.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Pinger reports backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
