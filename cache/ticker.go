package cache

import (
	"context"
	"encoding/json"

	"github.com/berabot/feedguard/stream"
)

// TickerSource is the source name tickers are cached under.
const TickerSource = "ticker"

// TickerParams returns the key parameters for symbol's ticker, shared by
// TickerRecorder and Fallback callers.
func TickerParams(symbol string) map[string]any {
	sym, err := stream.NormalizeSymbol(symbol)
	if err != nil {
		sym = symbol
	}
	return map[string]any{"symbol": sym}
}

// TickerRecorder is a stream.Handler that keeps the latest ticker per symbol.
type TickerRecorder struct {
	cache  Cache
	keyer  Keyer
	policy Policy
}

// NewTickerRecorder stores tickers in c for policy's default TTL.
func NewTickerRecorder(c Cache, policy Policy) *TickerRecorder {
	return &TickerRecorder{cache: c, keyer: NewDefaultKeyer(), policy: policy}
}

// HandleTicker implements stream.Handler.
func (r *TickerRecorder) HandleTicker(ctx context.Context, t stream.Ticker) error {
	key, err := r.keyer.Key(TickerSource, TickerParams(t.Symbol))
	if err != nil {
		return err
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.cache.Set(ctx, key, b, r.policy.EffectiveTTL(0))
}

// Latest returns the last recorded ticker for symbol.
func (r *TickerRecorder) Latest(ctx context.Context, symbol string) (stream.Ticker, bool) {
	key, err := r.keyer.Key(TickerSource, TickerParams(symbol))
	if err != nil {
		return stream.Ticker{}, false
	}
	b, ok := r.cache.Get(ctx, key)
	if !ok {
		return stream.Ticker{}, false
	}
	var t stream.Ticker
	if err := json.Unmarshal(b, &t); err != nil {
		return stream.Ticker{}, false
	}
	return t, true
}

var _ stream.Handler = (*TickerRecorder)(nil)
