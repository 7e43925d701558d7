package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSymbol indicates an empty or malformed symbol.
	ErrInvalidSymbol = errors.New("stream: invalid symbol")

	// ErrNilHandler indicates Subscribe was called without a handler.
	ErrNilHandler = errors.New("stream: handler is nil")

	// ErrClosed indicates the manager is shutting down.
	ErrClosed = errors.New("stream: manager is closing")

	// ErrNotConnected indicates a frame was sent with no live connection.
	ErrNotConnected = errors.New("stream: not connected")
)

// TransportError reports a failed dial, send, receive or close.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a frame that could not be decoded or an error frame
// sent by the server.
type ProtocolError struct {
	// Code is the server-supplied error code, if any.
	Code int
	Msg  string
	Err  error
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("stream: protocol: %s: %v", e.Msg, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("stream: protocol: server error %d: %s", e.Code, e.Msg)
	default:
		return "stream: protocol: " + e.Msg
	}
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("stream: handler panicked: %v", e.Value)
}
