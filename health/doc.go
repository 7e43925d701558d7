// Package health reports whether the feed guard can do its job.
//
// Checkers cover the shared counter store, the price stream connection and
// the circuit breakers. An Aggregator runs them together and Routes exposes
// the results over HTTP:
//
//	agg := health.NewAggregator(health.AggregatorConfig{})
//	agg.Register(health.NewStoreChecker("redis", rdb, time.Second))
//	agg.Register(health.NewStreamChecker("price_stream", manager))
//	agg.Register(health.NewBreakerChecker("breakers", dialBreaker))
//
//	r := chi.NewRouter()
//	r.Mount("/", health.Routes(agg))
//
// A breaker that is open degrades the service rather than failing it:
// callers keep answering from cached data while the dependency recovers.
package health
