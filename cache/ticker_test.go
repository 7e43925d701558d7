package cache

import (
	"context"
	"testing"
	"time"

	"github.com/berabot/feedguard/resilience"
	"github.com/berabot/feedguard/stream"
)

func TestTickerRecorder_KeepsLatest(t *testing.T) {
	rec := NewTickerRecorder(NewMemoryCache(DefaultPolicy()), DefaultPolicy())
	ctx := context.Background()

	if _, ok := rec.Latest(ctx, "btcusdt"); ok {
		t.Fatal("Latest() hit on an empty cache")
	}

	ts := time.UnixMilli(1_700_000_000_000).UTC()
	for _, p := range []float64{100, 101.5} {
		err := rec.HandleTicker(ctx, stream.Ticker{Symbol: "BTCUSDT", Price: p, Timestamp: ts})
		if err != nil {
			t.Fatalf("HandleTicker() error = %v", err)
		}
	}

	got, ok := rec.Latest(ctx, "BtcUsdt")
	if !ok {
		t.Fatal("Latest() missed")
	}
	if got.Price != 101.5 || !got.Timestamp.Equal(ts) {
		t.Errorf("Latest() = %+v", got)
	}
}

func TestTickerRecorder_FeedsFallback(t *testing.T) {
	c := NewMemoryCache(DefaultPolicy())
	rec := NewTickerRecorder(c, DefaultPolicy())
	f := NewFallback(c, nil, FallbackConfig{})
	ctx := context.Background()

	_ = rec.HandleTicker(ctx, stream.Ticker{Symbol: "ETHUSDT", Price: 2250})

	got, stale, err := Fetch(ctx, f, TickerSource, TickerParams("ethusdt"), func(context.Context) (stream.Ticker, error) {
		return stream.Ticker{}, resilience.ErrAdmissionDenied
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !stale || got.Price != 2250 {
		t.Errorf("Fetch() = %+v, stale=%v; want recorded ticker", got, stale)
	}
}
