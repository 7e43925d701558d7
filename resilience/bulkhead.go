package resilience

import "sync"

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the number of slots.
	// Default: 10
	MaxConcurrent int
}

// Bulkhead caps how many operations hold a slot at once. It never queues:
// a caller that finds no free slot is turned away.
type Bulkhead struct {
	max int
	sem chan struct{}

	mu        sync.Mutex
	maxActive int
	rejected  int64
}

// NewBulkhead creates a bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Bulkhead{
		max: config.MaxConcurrent,
		sem: make(chan struct{}, config.MaxConcurrent),
	}
}

// TryAcquire takes a slot if one is free. Every successful TryAcquire must
// be paired with a Release.
func (b *Bulkhead) TryAcquire() bool {
	select {
	case b.sem <- struct{}{}:
		b.mu.Lock()
		b.maxActive = max(b.maxActive, len(b.sem))
		b.mu.Unlock()
		return true
	default:
		b.mu.Lock()
		b.rejected++
		b.mu.Unlock()
		return false
	}
}

// Release frees a slot taken by TryAcquire.
func (b *Bulkhead) Release() {
	select {
	case <-b.sem:
	default:
	}
}

// Metrics returns current bulkhead statistics.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	active := len(b.sem)
	return BulkheadMetrics{
		Active:        active,
		MaxActive:     b.maxActive,
		Available:     b.max - active,
		MaxConcurrent: b.max,
		Rejected:      b.rejected,
	}
}

// BulkheadMetrics contains bulkhead statistics.
type BulkheadMetrics struct {
	Active        int
	MaxActive     int
	Available     int
	MaxConcurrent int
	Rejected      int64
}
