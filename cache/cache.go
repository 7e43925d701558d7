package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength bounds cache keys.
const MaxKeyLength = 512

var (
	ErrNilCache   = errors.New("cache: cache is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
	ErrNoFallback = errors.New("cache: no cached value to fall back to")
)

// Cache holds last-known values. Implementations are safe for concurrent
// use. A backend failure on read is reported as a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value for ttl. A non-positive ttl stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key; a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects blank keys, keys with line breaks and keys longer
// than MaxKeyLength.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "", strings.ContainsAny(key, "\n\r"):
		return ErrInvalidKey
	case len(key) > MaxKeyLength:
		return ErrKeyTooLong
	}
	return nil
}
