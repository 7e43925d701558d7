package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/berabot/feedguard/observe"
	"github.com/berabot/feedguard/resilience"
)

// FallbackConfig configures a Fallback. Every field is optional.
type FallbackConfig struct {
	// Policy sets the TTL of stored results.
	// Default: DefaultPolicy()
	Policy *Policy

	// Keyer derives cache keys. Default: DefaultKeyer.
	Keyer Keyer

	// FallbackIf reports whether a failure may be answered from the cache.
	// Default: errors classified as resilience.ActionFallback (admission
	// denied or circuit open).
	FallbackIf func(err error) bool

	Logger observe.Logger
}

// Result is the outcome of a Fallback call.
type Result struct {
	Value []byte
	// Stale is set when Value came from the cache after a rejected call.
	Stale bool
}

// Fallback runs fetches through a resilience executor, remembers every
// successful result and answers rejected calls with the last one.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: fetch errors are never cached. A rejection with nothing cached
//     returns an error matching both ErrNoFallback and the rejection.
type Fallback struct {
	cache      Cache
	exec       resilience.Executor
	keyer      Keyer
	policy     Policy
	fallbackIf func(error) bool
	log        observe.Logger
}

// NewFallback creates a Fallback over c. A nil exec runs fetches directly.
func NewFallback(c Cache, exec resilience.Executor, cfg FallbackConfig) *Fallback {
	f := &Fallback{
		cache:      c,
		exec:       exec,
		keyer:      cfg.Keyer,
		policy:     DefaultPolicy(),
		fallbackIf: cfg.FallbackIf,
		log:        cfg.Logger,
	}
	if cfg.Policy != nil {
		f.policy = *cfg.Policy
	}
	if f.keyer == nil {
		f.keyer = NewDefaultKeyer()
	}
	if f.fallbackIf == nil {
		f.fallbackIf = func(err error) bool {
			return resilience.Classify(err) == resilience.ActionFallback
		}
	}
	if f.log == nil {
		f.log = observe.NewNopLogger()
	}
	return f
}

// Execute fetches the value for source and params.
func (f *Fallback) Execute(ctx context.Context, source string, params any, fetch func(ctx context.Context) ([]byte, error)) (Result, error) {
	if f.cache == nil {
		return Result{}, ErrNilCache
	}

	key, keyErr := f.keyer.Key(source, params)

	var (
		value []byte
		err   error
	)
	if f.exec == nil {
		value, err = fetch(ctx)
	} else {
		value, err = resilience.Do[[]byte](ctx, f.exec, fetch)
	}

	if keyErr != nil {
		// Without a key there is nothing to store or serve.
		return Result{Value: value}, err
	}

	if err == nil {
		if f.policy.ShouldCache() {
			if setErr := f.cache.Set(ctx, key, value, f.policy.EffectiveTTL(0)); setErr != nil {
				f.log.Warn(ctx, "cache write failed", observe.F("source", source), observe.F("error", setErr.Error()))
			}
		}
		return Result{Value: value}, nil
	}

	if !f.fallbackIf(err) {
		return Result{}, err
	}
	cached, ok := f.cache.Get(ctx, key)
	if !ok {
		return Result{}, fmt.Errorf("%w: %w", ErrNoFallback, err)
	}

	f.log.Info(ctx, "serving cached value", observe.F("source", source), observe.F("cause", err.Error()))
	return Result{Value: cached, Stale: true}, nil
}

// Fetch is Execute for JSON-encodable values. The returned bool reports a
// stale value.
func Fetch[T any](ctx context.Context, f *Fallback, source string, params any, fetch func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T

	res, err := f.Execute(ctx, source, params, func(ctx context.Context) ([]byte, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, false, err
	}

	var out T
	if err := json.Unmarshal(res.Value, &out); err != nil {
		return zero, false, fmt.Errorf("cache: decode %s: %w", source, err)
	}
	return out, res.Stale, nil
}
