package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/berabot/feedguard/resilience"
)

// feedServer is an in-process ticker feed speaking the subscribe protocol.
type feedServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader
	refuse   atomic.Bool
	dials    atomic.Int32
	requests chan request

	mu    sync.Mutex
	conns []*serverConn
}

type serverConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *serverConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	f := &feedServer{t: t, requests: make(chan request, 256)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(func() {
		f.dropAll()
		f.srv.Close()
	})
	return f
}

func (f *feedServer) URL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *feedServer) serve(w http.ResponseWriter, r *http.Request) {
	if f.refuse.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &serverConn{ws: ws}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	f.dials.Add(1)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var req request
		if json.Unmarshal(data, &req) != nil {
			continue
		}
		f.requests <- req
		_ = c.write([]byte(fmt.Sprintf(`{"result":null,"id":%d}`, req.ID)))
	}
}

// send writes data on the most recent connection.
func (f *feedServer) send(data []byte) {
	f.t.Helper()
	f.mu.Lock()
	if len(f.conns) == 0 {
		f.mu.Unlock()
		f.t.Fatal("no feed connection")
	}
	c := f.conns[len(f.conns)-1]
	f.mu.Unlock()
	if err := c.write(data); err != nil {
		f.t.Fatalf("feed write: %v", err)
	}
}

func (f *feedServer) pushTicker(symbol, price string) {
	f.t.Helper()
	f.send(tickerFrame(symbol, price))
}

// dropAll severs every connection without a close handshake.
func (f *feedServer) dropAll() {
	f.mu.Lock()
	conns := f.conns
	f.conns = nil
	f.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.NetConn().Close()
	}
}

func (f *feedServer) expectRequest(method, symbol string) request {
	f.t.Helper()
	want := symbol + streamSuffix
	deadline := time.After(2 * time.Second)
	for {
		select {
		case req := <-f.requests:
			if req.Method == method && len(req.Params) == 1 && req.Params[0] == want {
				return req
			}
		case <-deadline:
			f.t.Fatalf("no %s %s request received", method, want)
			return request{}
		}
	}
}

func (f *feedServer) expectNoRequest(d time.Duration) {
	f.t.Helper()
	select {
	case req := <-f.requests:
		f.t.Fatalf("unexpected request %+v", req)
	case <-time.After(d):
	}
}

func tickerFrame(symbol, price string) []byte {
	return []byte(fmt.Sprintf(
		`{"e":"24hrTicker","E":1700000000000,"s":%q,"p":"1.5","P":"0.25","c":%q,"C":1700000000999,"v":"1234.5","q":"99"}`,
		strings.ToUpper(symbol), price))
}

func collector(size int) (Handler, <-chan Ticker) {
	ch := make(chan Ticker, size)
	return OnTicker(func(_ context.Context, t Ticker) error {
		ch <- t
		return nil
	}), ch
}

func receive(t *testing.T, ch <-chan Ticker) Ticker {
	t.Helper()
	select {
	case tk := <-ch:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("no ticker delivered")
		return Ticker{}
	}
}

func fastConfig(url string) Config {
	return Config{
		URL:               url,
		DispatchTimeout:   200 * time.Millisecond,
		ReconnectDelay:    10 * time.Millisecond,
		ReconnectAttempts: 3,
		MaxReconnectDelay: 40 * time.Millisecond,
		ResubscribeDelay:  time.Millisecond,
		HandshakeTimeout:  time.Second,
		WriteTimeout:      time.Second,
	}
}

func newTestManager(t *testing.T, cfg Config, dialer Dialer, admit resilience.Admitter, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(cfg, dialer, admit, opts...)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

// fakeConn is an in-memory Conn.
type fakeConn struct {
	sendErr error
	recv    chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn(sendErr error) *fakeConn {
	return &fakeConn{sendErr: sendErr, recv: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Send(ctx context.Context, _ []byte) error {
	return c.sendErr
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, errors.New("connection closed")
	case d := <-c.recv:
		return d, nil
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	dials atomic.Int32
	make  func() *fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.dials.Add(1)
	return d.make(), nil
}

type stubAdmitter struct {
	allowed bool
	err     error
	checks  atomic.Int32
}

func (a *stubAdmitter) Check(context.Context, string) (bool, error) {
	a.checks.Add(1)
	return a.allowed, a.err
}
