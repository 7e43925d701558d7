package cache

import "time"

// Policy bounds how long a cached value stays usable. The zero Policy
// stores nothing.
type Policy struct {
	// DefaultTTL applies when a write names no TTL of its own.
	DefaultTTL time.Duration `mapstructure:"default_ttl" yaml:"default_ttl"`

	// MaxTTL clamps every TTL; zero leaves TTLs unbounded.
	MaxTTL time.Duration `mapstructure:"max_ttl" yaml:"max_ttl"`
}

// DefaultPolicy keeps values for 5 minutes and never longer than an hour.
func DefaultPolicy() Policy {
	return Policy{DefaultTTL: 5 * time.Minute, MaxTTL: time.Hour}
}

// ShouldCache reports whether writes under p are kept at all.
func (p Policy) ShouldCache() bool {
	return p.DefaultTTL > 0
}

// EffectiveTTL resolves a requested TTL: non-positive requests take
// DefaultTTL, and the result never exceeds MaxTTL when one is set.
func (p Policy) EffectiveTTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		requested = p.DefaultTTL
	}
	if p.MaxTTL > 0 {
		return min(requested, p.MaxTTL)
	}
	return requested
}
