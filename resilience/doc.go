// Package resilience provides the admission, isolation and recovery
// primitives used in front of every flaky dependency of the bot.
//
// # Patterns
//
//   - SlidingWindowLimiter: per-key admission control evaluated atomically
//     against a shared counter store, so several processes share one budget.
//
//   - CircuitBreaker: stops calling a failing dependency for a cooldown and
//     lets a single probe through to test recovery.
//
//   - Retry: re-invokes failed operations with exponential backoff and returns
//     the original error once attempts run out.
//
//   - Timeout: bounds each attempt.
//
//   - Guard: composes the above for one dependency.
//
// # Usage
//
// Construct one set per protected dependency and inject it into callers:
//
//	limiter := resilience.NewSlidingWindowLimiter(store, resilience.LimiterConfig{
//	    Limits: resilience.DefaultLimits(),
//	})
//
//	guard := resilience.NewGuard(resilience.GuardConfig{
//	    Key:     "coingecko",
//	    Limiter: limiter,
//	    Breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	        Name:             "coingecko",
//	        FailureThreshold: 5,
//	        ResetTimeout:     time.Minute,
//	    }),
//	    Retry: resilience.NewRetry(resilience.RetryConfig{
//	        MaxAttempts:  3,
//	        InitialDelay: time.Second,
//	        RetryIf:      resilience.RetryTransient,
//	    }),
//	})
//
//	price, err := resilience.Do(ctx, guard, fetchPrice)
//	if resilience.Classify(err) == resilience.ActionFallback {
//	    // serve the last known value
//	}
package resilience
