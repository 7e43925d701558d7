package stream

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/berabot/feedguard/observe"
	"github.com/berabot/feedguard/resilience"
)

// ConnState is the lifecycle state of a Manager's connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateRunning
	StateReconnecting
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time view of a Manager.
type Stats struct {
	State             ConnState
	Symbols           int
	Pending           int
	FramesReceived    uint64
	TickersDispatched uint64
	HandlerErrors     uint64
	DispatchTimeouts  uint64
	DispatchesShed    uint64
	ProtocolErrors    uint64
	Reconnects        uint64
}

type counters struct {
	frames     atomic.Uint64
	dispatched atomic.Uint64
	handlerErr atomic.Uint64
	timeouts   atomic.Uint64
	shed       atomic.Uint64
	protoErr   atomic.Uint64
	reconnects atomic.Uint64
}

type subscription struct {
	handlers []Handler
	// active is set once the subscribe frame has been written.
	active bool
}

// Manager multiplexes ticker subscriptions over one feed connection.
//
// Contract:
//   - Concurrency: all methods are safe for concurrent use.
//   - Lifecycle: Subscribe connects on demand; Close returns the manager to
//     StateDisconnected and it may be used again afterwards.
//   - Errors: admission denials are reported as (false, nil); limiter store
//     failures and transport failures are returned as errors.
type Manager struct {
	cfg      Config
	dialer   Dialer
	admit    resilience.Admitter
	dialExec resilience.Executor
	log      observe.Logger
	metrics  observe.Metrics
	timeout  *resilience.Timeout

	// opMu serializes Initialize, Subscribe, Unsubscribe, Close and the
	// teardown and restore steps of a reconnect.
	opMu sync.Mutex

	mu       sync.Mutex
	state    ConnState
	conn     Conn
	gen      uint64
	stopLoop context.CancelFunc
	loopDone chan struct{}
	subs     map[string]*subscription
	pending  map[string][]Handler
	nextID   int64
	life     context.Context
	endLife  context.CancelFunc

	// restoring is set while a restore loop owns the pending set.
	restoring bool
	inflight  map[string]*resilience.Bulkhead

	bg    sync.WaitGroup
	sf    singleflight.Group
	stats counters
}

// NewManager creates a Manager. A nil admit skips admission checks; the
// MaxSymbols cap still applies.
func NewManager(cfg Config, dialer Dialer, admit resilience.Admitter, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	if dialer == nil {
		dialer = NewWebsocketDialer(cfg)
	}

	m := &Manager{
		cfg:      cfg,
		dialer:   dialer,
		admit:    admit,
		log:      observe.NewNopLogger(),
		metrics:  observe.NopMetrics(),
		timeout:  resilience.NewTimeout(resilience.TimeoutConfig{Timeout: cfg.DispatchTimeout}),
		subs:     make(map[string]*subscription),
		pending:  make(map[string][]Handler),
		inflight: make(map[string]*resilience.Bulkhead),
	}
	m.life, m.endLife = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(observe.F("component", "price_stream"))
	return m
}

// Initialize connects if not already running, starts the read loop and
// restores any subscriptions left pending by a failed reconnect.
// While running it only retries pending subscriptions.
func (m *Manager) Initialize(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.initializeLocked(ctx)
}

// Subscribe registers h for symbol's tickers. An already active symbol only
// gains the handler. A new symbol needs a free slot under MaxSymbols and an
// admission grant; when either is refused Subscribe returns (false, nil)
// and nothing changes.
func (m *Manager) Subscribe(ctx context.Context, symbol string, h Handler) (bool, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return false, err
	}
	if h == nil {
		return false, ErrNilHandler
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.initializeLocked(ctx); err != nil {
		return false, err
	}
	return m.subscribeLocked(ctx, sym, []Handler{h})
}

// Unsubscribe stops symbol's stream and drops its handlers. Unknown
// symbols are a no-op.
func (m *Manager) Unsubscribe(ctx context.Context, symbol string) error {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	sub, ok := m.subs[sym]
	if !ok || !sub.active {
		delete(m.pending, sym)
		m.mu.Unlock()
		return nil
	}
	delete(m.subs, sym)
	conn, gen, id := m.conn, m.gen, m.frameIDLocked()
	m.mu.Unlock()

	if err := m.send(ctx, conn, methodUnsubscribe, sym, id); err != nil {
		tErr := &TransportError{Op: "unsubscribe", Err: err}
		if ctx.Err() == nil {
			m.triggerReconnect(gen, tErr)
		}
		return tErr
	}

	m.log.Info(ctx, "unsubscribed", observe.F("symbol", sym))
	return nil
}

// Close stops background work, unsubscribes every active symbol, closes
// the connection and clears all state. Unsubscribe failures are logged;
// the error from closing the connection is returned.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateClosing {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosing
	m.endLife()
	m.mu.Unlock()

	m.bg.Wait()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	stop, done, conn := m.stopLoop, m.loopDone, m.conn
	symbols := m.activeSymbolsLocked()
	m.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	var closeErr error
	if conn != nil {
		for _, sym := range symbols {
			m.mu.Lock()
			id := m.frameIDLocked()
			m.mu.Unlock()
			if err := m.send(ctx, conn, methodUnsubscribe, sym, id); err != nil {
				m.log.Warn(ctx, "unsubscribe on close failed",
					observe.F("symbol", sym), observe.F("error", err.Error()))
			}
		}
		if err := conn.Close(); err != nil {
			closeErr = &TransportError{Op: "close", Err: err}
		}
	}

	m.mu.Lock()
	m.conn, m.stopLoop, m.loopDone = nil, nil, nil
	m.subs = make(map[string]*subscription)
	m.pending = make(map[string][]Handler)
	m.state = StateDisconnected
	m.life, m.endLife = context.WithCancel(context.Background())
	m.mu.Unlock()

	m.log.Info(ctx, "price stream closed", observe.F("symbols", len(symbols)))
	return closeErr
}

// State returns the connection state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Symbols returns the active symbols in sorted order.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeSymbolsLocked()
}

// Handlers returns the number of handlers registered for an active symbol.
func (m *Manager) Handlers(symbol string) int {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[sym]; ok && sub.active {
		return len(sub.handlers)
	}
	return 0
}

// Stats returns counters and the current state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	state, active, pending := m.state, len(m.activeSymbolsLocked()), len(m.pending)
	m.mu.Unlock()

	return Stats{
		State:             state,
		Symbols:           active,
		Pending:           pending,
		FramesReceived:    m.stats.frames.Load(),
		TickersDispatched: m.stats.dispatched.Load(),
		HandlerErrors:     m.stats.handlerErr.Load(),
		DispatchTimeouts:  m.stats.timeouts.Load(),
		DispatchesShed:    m.stats.shed.Load(),
		ProtocolErrors:    m.stats.protoErr.Load(),
		Reconnects:        m.stats.reconnects.Load(),
	}
}

func (m *Manager) activeSymbolsLocked() []string {
	out := make([]string, 0, len(m.subs))
	for sym, sub := range m.subs {
		if sub.active {
			out = append(out, sym)
		}
	}
	slices.Sort(out)
	return out
}

func (m *Manager) frameIDLocked() int64 {
	m.nextID++
	return m.nextID
}

// initializeLocked requires opMu.
func (m *Manager) initializeLocked(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosing:
		m.mu.Unlock()
		return ErrClosed
	case StateRunning:
		m.mu.Unlock()
		m.restorePendingLocked(ctx)
		m.scheduleRestore()
		return nil
	}
	prev := m.state
	m.state = StateConnecting
	life := m.life
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		if m.state == StateConnecting {
			m.state = prev
		}
		m.mu.Unlock()
		return &TransportError{Op: "dial", Err: err}
	}

	m.mu.Lock()
	if m.state != StateConnecting {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	m.gen++
	gen := m.gen
	loopCtx, stop := context.WithCancel(life)
	done := make(chan struct{})
	m.conn, m.stopLoop, m.loopDone = conn, stop, done
	m.state = StateRunning
	m.mu.Unlock()

	go m.readLoop(loopCtx, conn, gen, done)
	m.log.Info(ctx, "price stream connected", observe.F("url", m.cfg.URL))

	m.restorePendingLocked(ctx)
	m.scheduleRestore()
	return nil
}

func (m *Manager) dial(ctx context.Context) (Conn, error) {
	op := func(ctx context.Context) (Conn, error) {
		conn, err := m.dialer.Dial(ctx, m.cfg.URL)
		if err != nil {
			return nil, err
		}
		// A dial that outlives its deadline has no caller left to own it.
		if err := ctx.Err(); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
	if m.dialExec == nil {
		return op(ctx)
	}
	return resilience.Do[Conn](ctx, m.dialExec, op)
}

// subscribeLocked requires opMu. hs are merged with any handlers left
// pending for sym.
func (m *Manager) subscribeLocked(ctx context.Context, sym string, hs []Handler) (bool, error) {
	m.mu.Lock()
	if sub, ok := m.subs[sym]; ok && sub.active {
		sub.handlers = appendHandlers(sub.handlers, hs...)
		m.mu.Unlock()
		return true, nil
	}
	active := len(m.activeSymbolsLocked())
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return false, &TransportError{Op: "subscribe", Err: ErrNotConnected}
	}
	if active >= m.cfg.MaxSymbols {
		m.log.Warn(ctx, "subscription refused: symbol limit reached",
			observe.F("symbol", sym), observe.F("max_symbols", m.cfg.MaxSymbols))
		return false, nil
	}
	if m.admit != nil {
		allowed, err := m.admit.Check(ctx, m.cfg.AdmissionKey)
		if err != nil {
			return false, err
		}
		if !allowed {
			m.log.Warn(ctx, "subscription refused: rate limited",
				observe.F("symbol", sym), observe.F("key", m.cfg.AdmissionKey))
			return false, nil
		}
	}

	// Handlers are registered before the frame is written so the first
	// ticker after the server acknowledges is not missed; the read loop
	// skips the entry until it is marked active.
	m.mu.Lock()
	sub := &subscription{handlers: appendHandlers(slices.Clone(m.pending[sym]), hs...)}
	m.subs[sym] = sub
	gen, id := m.gen, m.frameIDLocked()
	m.mu.Unlock()

	if err := m.send(ctx, conn, methodSubscribe, sym, id); err != nil {
		m.mu.Lock()
		delete(m.subs, sym)
		m.mu.Unlock()

		tErr := &TransportError{Op: "subscribe", Err: err}
		if ctx.Err() == nil {
			m.triggerReconnect(gen, tErr)
		}
		return false, tErr
	}

	m.mu.Lock()
	sub.active = true
	delete(m.pending, sym)
	m.mu.Unlock()

	m.log.Info(ctx, "subscribed", observe.F("symbol", sym), observe.F("handlers", len(sub.handlers)))
	return true, nil
}

func (m *Manager) send(ctx context.Context, conn Conn, method, sym string, id int64) error {
	if conn == nil {
		return ErrNotConnected
	}
	frame, err := encodeRequest(method, sym, id)
	if err != nil {
		return err
	}
	return conn.Send(ctx, frame)
}

// restorePendingLocked requires opMu. Symbols refused by admission stay
// pending; a transport failure stops the pass.
func (m *Manager) restorePendingLocked(ctx context.Context) {
	m.mu.Lock()
	symbols := make([]string, 0, len(m.pending))
	for sym := range m.pending {
		symbols = append(symbols, sym)
	}
	m.mu.Unlock()
	slices.Sort(symbols)

	for i, sym := range symbols {
		if i > 0 {
			if err := wait(ctx, m.cfg.ResubscribeDelay); err != nil {
				return
			}
		}

		ok, err := m.subscribeLocked(ctx, sym, nil)
		if err != nil {
			m.log.Warn(ctx, "restore subscription failed",
				observe.F("symbol", sym), observe.F("error", err.Error()))
			var tErr *TransportError
			if errors.As(err, &tErr) {
				return
			}
			continue
		}
		if !ok {
			m.log.Info(ctx, "restore deferred", observe.F("symbol", sym))
		}
	}
}

// scheduleRestore starts a background loop that retries pending symbols
// until none are left or the connection stops running. At most one loop
// runs at a time.
func (m *Manager) scheduleRestore() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.restoring || len(m.pending) == 0 || m.state != StateRunning {
		return
	}
	m.restoring = true
	m.bg.Add(1)
	go m.restoreLoop(m.life)
}

// restoreLoop backs off from ReconnectDelay up to MaxReconnectDelay between
// passes, giving a refused admission window time to slide.
func (m *Manager) restoreLoop(life context.Context) {
	defer m.bg.Done()

	delay := m.cfg.ReconnectDelay
	for {
		if err := wait(life, delay); err != nil {
			m.mu.Lock()
			m.restoring = false
			m.mu.Unlock()
			return
		}

		m.opMu.Lock()
		m.mu.Lock()
		if m.state != StateRunning || len(m.pending) == 0 {
			m.restoring = false
			m.mu.Unlock()
			m.opMu.Unlock()
			return
		}
		pending := len(m.pending)
		m.mu.Unlock()

		m.log.Debug(life, "retrying pending subscriptions", observe.F("pending", pending))
		m.restorePendingLocked(life)
		m.opMu.Unlock()

		delay = min(delay*2, m.cfg.MaxReconnectDelay)
	}
}

func (m *Manager) readLoop(ctx context.Context, conn Conn, gen uint64, done chan struct{}) {
	defer close(done)

	consecutive := 0
	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.triggerReconnect(gen, &TransportError{Op: "receive", Err: err})
			return
		}
		m.stats.frames.Add(1)

		f, err := decodeFrame(data)
		if err != nil {
			consecutive++
			m.stats.protoErr.Add(1)
			m.log.Warn(ctx, "bad frame", observe.F("error", err.Error()), observe.F("consecutive", consecutive))
			if consecutive >= m.cfg.MaxProtocolErrors {
				m.triggerReconnect(gen, err)
				return
			}
			continue
		}
		consecutive = 0

		if f.kind == frameTicker {
			m.dispatch(ctx, f.ticker)
		}
	}
}

// dispatch fans t out to its symbol's handlers and returns when they all
// finish or DispatchTimeout elapses, whichever is first. Handlers abandoned
// by a timeout keep their symbol's in-flight slot until they return; a
// ticker arriving with no free slot is shed.
func (m *Manager) dispatch(ctx context.Context, t Ticker) {
	sym, err := NormalizeSymbol(t.Symbol)
	if err != nil {
		return
	}

	m.mu.Lock()
	sub, ok := m.subs[sym]
	if !ok || !sub.active {
		m.mu.Unlock()
		return
	}
	handlers := slices.Clone(sub.handlers)
	slots := m.inflightLocked(sym)
	m.mu.Unlock()

	if !slots.TryAcquire() {
		m.stats.shed.Add(1)
		m.log.Warn(ctx, "ticker shed: handlers still busy",
			observe.F("symbol", sym), observe.F("in_flight", slots.Metrics().Active))
		return
	}

	start := time.Now()
	err = m.timeout.Execute(ctx, func(dctx context.Context) error {
		defer slots.Release()
		var g errgroup.Group
		for _, h := range handlers {
			g.Go(func() error {
				return m.invoke(dctx, sym, h, t)
			})
		}
		return g.Wait()
	})

	timedOut := errors.Is(err, resilience.ErrTimeout)
	if timedOut {
		m.stats.timeouts.Add(1)
		m.log.Warn(ctx, "ticker dispatch timed out",
			observe.F("symbol", sym), observe.F("handlers", len(handlers)))
	}

	m.stats.dispatched.Add(1)
	m.metrics.RecordDispatch(ctx, sym, time.Since(start), timedOut)
}

// inflightLocked requires mu.
func (m *Manager) inflightLocked(sym string) *resilience.Bulkhead {
	b, ok := m.inflight[sym]
	if !ok {
		b = resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: m.cfg.MaxInflightDispatches})
		m.inflight[sym] = b
	}
	return b
}

func (m *Manager) invoke(ctx context.Context, sym string, h Handler, t Ticker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
		if err != nil {
			m.stats.handlerErr.Add(1)
			m.metrics.RecordHandlerError(ctx, sym)
			m.log.Warn(ctx, "ticker handler failed", observe.F("symbol", sym), observe.F("error", err.Error()))
		}
	}()
	return h.HandleTicker(ctx, t)
}

// triggerReconnect schedules one background reconnect per connection
// generation. Stale generations and a closing manager are ignored.
func (m *Manager) triggerReconnect(gen uint64, cause error) {
	m.mu.Lock()
	if m.state == StateClosing || m.gen != gen {
		m.mu.Unlock()
		return
	}
	life := m.life
	m.bg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.bg.Done()
		_, _, _ = m.sf.Do(strconv.FormatUint(gen, 10), func() (any, error) {
			m.reconnect(life, gen, cause)
			return nil, nil
		})
	}()
}

func (m *Manager) reconnect(life context.Context, gen uint64, cause error) {
	m.opMu.Lock()
	m.mu.Lock()
	if m.gen != gen || m.state != StateRunning {
		m.mu.Unlock()
		m.opMu.Unlock()
		return
	}
	for sym, sub := range m.subs {
		if sub.active {
			m.pending[sym] = appendHandlers(m.pending[sym], sub.handlers...)
		}
	}
	m.subs = make(map[string]*subscription)
	stop, done, conn := m.stopLoop, m.loopDone, m.conn
	m.conn, m.stopLoop, m.loopDone = nil, nil, nil
	m.state = StateReconnecting
	pending := len(m.pending)
	m.mu.Unlock()

	stop()
	<-done
	_ = conn.Close()
	m.opMu.Unlock()

	m.log.Warn(life, "price stream lost, reconnecting",
		observe.F("error", cause.Error()), observe.F("symbols", pending))

	if err := wait(life, m.cfg.ReconnectDelay); err != nil {
		return
	}

	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  m.cfg.ReconnectAttempts,
		InitialDelay: m.cfg.ReconnectDelay,
		Multiplier:   2,
		MaxDelay:     m.cfg.MaxReconnectDelay,
		RetryIf: func(err error) bool {
			return !errors.Is(err, ErrClosed) && life.Err() == nil
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			m.metrics.RecordReconnect(life, observe.ReconnectFailed)
			m.log.Warn(life, "reconnect attempt failed",
				observe.F("attempt", attempt), observe.F("delay_ms", delay.Milliseconds()),
				observe.F("error", err.Error()))
		},
	})

	err := retry.Execute(life, func(ctx context.Context) error {
		m.opMu.Lock()
		defer m.opMu.Unlock()
		return m.initializeLocked(ctx)
	})
	switch {
	case err == nil:
		m.stats.reconnects.Add(1)
		m.metrics.RecordReconnect(life, observe.ReconnectSucceeded)
		m.log.Info(life, "price stream reconnected", observe.F("symbols", len(m.Symbols())))
	case errors.Is(err, ErrClosed) || life.Err() != nil:
	default:
		m.mu.Lock()
		if m.state == StateReconnecting {
			m.state = StateDisconnected
		}
		pending = len(m.pending)
		m.mu.Unlock()
		m.metrics.RecordReconnect(life, observe.ReconnectExhausted)
		m.log.Error(life, "reconnect attempts exhausted",
			observe.F("attempts", m.cfg.ReconnectAttempts), observe.F("pending", pending),
			observe.F("error", err.Error()))
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
