package stream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live feed connection. Send and Receive may be called
// concurrently with each other; Send is safe for concurrent use.
type Conn interface {
	// Send writes one text frame.
	Send(ctx context.Context, frame []byte) error
	// Receive blocks for the next frame or until ctx is done.
	Receive(ctx context.Context) ([]byte, error)
	// Close releases the connection. It is idempotent.
	Close() error
}

// Dialer opens feed connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// maxFrameSize bounds one inbound frame.
const maxFrameSize = 1 << 20

// WebsocketDialer dials feed connections over gorilla/websocket.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds writes when the caller's context has no deadline.
	WriteTimeout time.Duration
	// Header is sent with the handshake request.
	Header http.Header
}

// NewWebsocketDialer returns a dialer using cfg's handshake and write timeouts.
func NewWebsocketDialer(cfg Config) *WebsocketDialer {
	cfg = cfg.withDefaults()
	return &WebsocketDialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
	}
}

// Dial opens a websocket to url.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(maxFrameSize)

	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultConfig().WriteTimeout
	}
	return &wsConn{ws: ws, writeTimeout: writeTimeout}, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Receive unblocks a pending read when ctx ends by expiring the read
// deadline. The connection cannot be read from afterwards.
func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		if err := c.ws.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.closeErr = err
		}
	})
	return c.closeErr
}
