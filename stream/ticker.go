package stream

import (
	"context"
	"reflect"
	"strings"
	"time"
)

// Ticker is one 24h rolling-window statistics update for a symbol.
type Ticker struct {
	Symbol             string    `json:"symbol"`
	Price              float64   `json:"price"`
	PriceChange        float64   `json:"price_change"`
	PriceChangePercent float64   `json:"price_change_percent"`
	Volume             float64   `json:"volume"`
	Timestamp          time.Time `json:"timestamp"`
}

// Handler consumes tickers for the symbols it is subscribed to.
//
// Contract:
//   - Concurrency: handlers of one symbol run concurrently with each other.
//   - Context: ctx carries the dispatch deadline; handlers should return
//     when it is done. A handler still running after the deadline keeps one
//     of its symbol's MaxInflightDispatches slots, and tickers arriving
//     while every slot is held are dropped.
//   - Errors: returned errors and panics are logged and do not affect other
//     handlers or the connection.
type Handler interface {
	HandleTicker(ctx context.Context, t Ticker) error
}

// HandlerFunc adapts a function to Handler. Function values are not
// comparable, so the same HandlerFunc registered twice runs twice; use
// OnTicker when deduplication matters.
type HandlerFunc func(ctx context.Context, t Ticker) error

func (f HandlerFunc) HandleTicker(ctx context.Context, t Ticker) error {
	return f(ctx, t)
}

// OnTicker returns a Handler with stable identity wrapping fn.
// Registering the returned value more than once for a symbol is a no-op.
func OnTicker(fn func(ctx context.Context, t Ticker) error) Handler {
	return &funcHandler{fn: fn}
}

type funcHandler struct {
	fn func(ctx context.Context, t Ticker) error
}

func (h *funcHandler) HandleTicker(ctx context.Context, t Ticker) error {
	return h.fn(ctx, t)
}

// sameHandler reports whether a and b are the same registration.
// Incomparable handler types never match.
func sameHandler(a, b Handler) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// appendHandlers appends each of add to hs unless it is already present.
func appendHandlers(hs []Handler, add ...Handler) []Handler {
next:
	for _, h := range add {
		if h == nil {
			continue
		}
		for _, have := range hs {
			if sameHandler(have, h) {
				continue next
			}
		}
		hs = append(hs, h)
	}
	return hs
}

// NormalizeSymbol lowercases symbol and validates it as a stream name.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if s == "" {
		return "", ErrInvalidSymbol
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "", ErrInvalidSymbol
		}
	}
	return s, nil
}
