package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type blob struct {
	value     []byte
	expiresAt time.Time
}

type window struct {
	events    []time.Time
	expiresAt time.Time
}

// MemoryStore is an in-process store. All operations on one instance are
// serialized, so it is atomic for a single process only.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*window
	blobs   map[string]blob
	healthy atomic.Bool
}

// NewMemoryStore creates an empty store. A nil now uses time.Now for blob
// expiry; window evaluation always uses the time passed by the caller.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	s := &MemoryStore{
		now:     now,
		windows: make(map[string]*window),
		blobs:   make(map[string]blob),
	}
	s.healthy.Store(true)
	return s
}

// SetHealthy toggles the simulated backend outage.
func (s *MemoryStore) SetHealthy(v bool) {
	s.healthy.Store(v)
}

// SlideWindow prunes, counts and conditionally records a request for key.
func (s *MemoryStore) SlideWindow(ctx context.Context, key string, now time.Time, d time.Duration, limit int) (int64, bool, error) {
	if err := s.check(ctx); err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || (!w.expiresAt.IsZero() && !now.Before(w.expiresAt)) {
		w = &window{}
		s.windows[key] = w
	}

	cutoff := now.Add(-d)
	kept := w.events[:0]
	for _, t := range w.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.events = kept

	count := int64(len(w.events))
	if count >= int64(limit) {
		return count, false, nil
	}
	w.events = append(w.events, now)
	w.expiresAt = now.Add(d)
	return count, true, nil
}

// Get returns the blob stored at key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !b.expiresAt.IsZero() && !s.now().Before(b.expiresAt) {
		delete(s.blobs, key)
		return nil, ErrNotFound
	}

	out := make([]byte, len(b.value))
	copy(out, b.value)
	return out, nil
}

// Set stores a copy of value at key.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	b := blob{value: make([]byte, len(value))}
	copy(b.value, value)
	if ttl > 0 {
		b.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.blobs[key] = b
	s.mu.Unlock()
	return nil
}

// Delete removes key from both windows and blobs.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.blobs, key)
	delete(s.windows, key)
	s.mu.Unlock()
	return nil
}

// Ping reports ErrUnavailable while the store is marked unhealthy.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.check(ctx)
}

func (s *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.healthy.Load() {
		return ErrUnavailable
	}
	return nil
}
