package cache

import (
	"context"
	"errors"
	"time"

	"github.com/berabot/feedguard/observe"
	"github.com/berabot/feedguard/store"
)

// StoreCache keeps values in a shared store.BlobStore so every process
// sees the same last-known values.
type StoreCache struct {
	blobs  store.BlobStore
	policy Policy
	prefix string
	log    observe.Logger
}

// NewStoreCache creates a cache over blobs. Keys are namespaced with
// "cache:" unless they already carry that prefix.
func NewStoreCache(blobs store.BlobStore, policy Policy, logger observe.Logger) *StoreCache {
	if logger == nil {
		logger = observe.NewNopLogger()
	}
	return &StoreCache{blobs: blobs, policy: policy, prefix: keyPrefix, log: logger}
}

func (c *StoreCache) key(key string) string {
	if len(key) >= len(c.prefix) && key[:len(c.prefix)] == c.prefix {
		return key
	}
	return c.prefix + key
}

// Get returns (nil, false) on a miss or when the store fails.
func (c *StoreCache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := c.blobs.Get(ctx, c.key(key))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.log.Warn(ctx, "cache read failed", observe.F("key", key), observe.F("error", err.Error()))
		}
		return nil, false
	}
	return v, true
}

// Set stores value for ttl clamped by the policy. TTL<=0 is a no-op.
func (c *StoreCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	if c.policy.MaxTTL > 0 && ttl > c.policy.MaxTTL {
		ttl = c.policy.MaxTTL
	}
	return c.blobs.Set(ctx, c.key(key), value, ttl)
}

// Delete removes key. Idempotent.
func (c *StoreCache) Delete(ctx context.Context, key string) error {
	return c.blobs.Delete(ctx, c.key(key))
}

var _ Cache = (*StoreCache)(nil)
