package main

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/berabot/feedguard/cache"
	"github.com/berabot/feedguard/config"
	"github.com/berabot/feedguard/health"
	"github.com/berabot/feedguard/observe"
	"github.com/berabot/feedguard/observe/exporters"
	"github.com/berabot/feedguard/resilience"
	"github.com/berabot/feedguard/store"
	"github.com/berabot/feedguard/stream"
)

// backend is the shared store: counters for the limiter, blobs for the
// ticker cache and a ping for health checks.
type backend interface {
	resilience.WindowStore
	store.BlobStore
	store.Pinger
}

// app holds the wired components of a running feedguard.
type app struct {
	cfg      *config.Config
	obs      observe.Observer
	log      observe.Logger
	limiter  *resilience.SlidingWindowLimiter
	breaker  *resilience.CircuitBreaker
	manager  *stream.Manager
	tickers  *cache.TickerRecorder
	health   *health.Aggregator
	registry *prometheus.Registry

	// life bounds background startup retries; shutdown ends it.
	mu      sync.Mutex
	life    context.Context
	endLife context.CancelFunc
	bg      sync.WaitGroup
}

// newApp wires every component around db. A nil dialer dials the configured
// websocket URL.
func newApp(ctx context.Context, cfg *config.Config, db backend, dialer stream.Dialer) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obs, err := observe.NewObserver(ctx, cfg.Observe,
		observe.WithExporterOptions(exporters.WithRegisterer(reg)),
	)
	if err != nil {
		return nil, err
	}
	log := obs.Logger()
	metrics := obs.Metrics()

	limiterCfg := cfg.Limiter.Resilience()
	limiterCfg.OnDecision = func(key string, allowed bool) {
		metrics.RecordAdmission(context.Background(), key, allowed)
	}
	limiter := resilience.NewSlidingWindowLimiter(db, limiterCfg)

	dep := cfg.Stream.AdmissionKey
	breakerCfg := cfg.Breaker.Resilience(dep)
	breakerCfg.OnStateChange = func(name string, from, to resilience.State) {
		metrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
		log.Warn(context.Background(), "circuit breaker state changed",
			observe.F("breaker", name), observe.F("from", from.String()), observe.F("to", to.String()))
	}
	breaker := resilience.NewCircuitBreaker(breakerCfg)

	retryCfg := cfg.Retry.Resilience()
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.RecordRetry(context.Background(), dep, attempt, delay)
	}

	guard := resilience.NewGuard(resilience.GuardConfig{
		Breaker: breaker,
		Retry:   resilience.NewRetry(retryCfg),
		Timeout: cfg.Stream.HandshakeTimeout,
	})

	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return nil, err
	}
	dialExec := mw.Executor(observe.DependencyMeta{Name: dep, Kind: "websocket"}, guard)

	manager := stream.NewManager(cfg.Stream, dialer, limiter,
		stream.WithLogger(log),
		stream.WithMetrics(metrics),
		stream.WithDialExecutor(dialExec),
	)

	tickers := cache.NewTickerRecorder(cache.NewStoreCache(db, cfg.Cache, log), cfg.Cache)

	agg := health.NewAggregator(cfg.Health.Aggregator)
	agg.Register(health.NewStoreChecker("redis", db, 2*time.Second))
	agg.Register(health.NewStreamChecker("price_stream", manager))
	agg.Register(health.NewBreakerChecker("breakers", breaker))

	a := &app{
		cfg:      cfg,
		obs:      obs,
		log:      log,
		limiter:  limiter,
		breaker:  breaker,
		manager:  manager,
		tickers:  tickers,
		health:   agg,
		registry: reg,
	}
	a.life, a.endLife = context.WithCancel(context.Background())
	return a, nil
}

// start connects the stream and subscribes the configured symbols. A symbol
// refused by the limiter is logged and skipped. When the feed cannot be
// reached start still returns nil and keeps retrying in the background, so
// the health endpoints report the outage instead of the process exiting.
func (a *app) start(ctx context.Context) error {
	err := a.subscribeAll(ctx)
	if err == nil || ctx.Err() != nil {
		return nil
	}
	a.log.Error(ctx, "price stream unavailable, retrying in background", observe.F("error", err.Error()))

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.life.Err() != nil {
		return nil
	}
	a.bg.Add(1)
	go a.retryStart(ctx)
	return nil
}

// subscribeAll subscribes every configured symbol not already streaming.
func (a *app) subscribeAll(ctx context.Context) error {
	if err := a.manager.Initialize(ctx); err != nil {
		return err
	}

	logTicker := stream.OnTicker(func(ctx context.Context, t stream.Ticker) error {
		a.log.Debug(ctx, "ticker",
			observe.F("symbol", t.Symbol),
			observe.F("price", t.Price),
			observe.F("change_pct", t.PriceChangePercent),
		)
		return nil
	})

	for _, sym := range a.cfg.Symbols {
		if a.manager.Handlers(sym) > 0 {
			continue
		}
		ok, err := a.manager.Subscribe(ctx, sym, a.tickers)
		if err != nil {
			return err
		}
		if !ok {
			a.log.Warn(ctx, "subscription denied", observe.F("symbol", sym))
			continue
		}
		if _, err := a.manager.Subscribe(ctx, sym, logTicker); err != nil {
			return err
		}
	}
	return nil
}

// retryStart repeats subscribeAll with backoff until it succeeds, ctx ends
// or the app shuts down.
func (a *app) retryStart(ctx context.Context) {
	defer a.bg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(a.life, cancel)()

	delay := cmp.Or(a.cfg.Stream.ReconnectDelay, time.Second)
	maxDelay := cmp.Or(a.cfg.Stream.MaxReconnectDelay, 30*time.Second)
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		err := a.subscribeAll(ctx)
		if err == nil {
			a.log.Info(ctx, "price stream started", observe.F("attempts", attempt+1))
			return
		}
		if ctx.Err() != nil {
			return
		}
		a.log.Warn(ctx, "price stream still unavailable",
			observe.F("attempt", attempt), observe.F("error", err.Error()))
		delay = min(delay*2, maxDelay)
	}
}

// router serves health checks, Prometheus metrics and the latest tickers.
func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	r.Get("/tickers", a.listTickers)
	r.Get("/tickers/{symbol}", a.getTicker)
	r.Mount("/", health.Routes(a.health))
	return r
}

func (a *app) listTickers(w http.ResponseWriter, r *http.Request) {
	out := make([]stream.Ticker, 0, len(a.cfg.Symbols))
	for _, sym := range a.manager.Symbols() {
		if t, ok := a.tickers.Latest(r.Context(), sym); ok {
			out = append(out, t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *app) getTicker(w http.ResponseWriter, r *http.Request) {
	sym := chi.URLParam(r, "symbol")
	t, ok := a.tickers.Latest(r.Context(), sym)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no ticker for " + sym})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// shutdown stops startup retries, closes the stream and flushes telemetry.
func (a *app) shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.endLife()
	a.mu.Unlock()
	a.bg.Wait()
	return errors.Join(
		a.manager.Close(ctx),
		a.obs.Shutdown(ctx),
	)
}
