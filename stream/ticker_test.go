package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "BTCUSDT", want: "btcusdt"},
		{in: "  ethusdt ", want: "ethusdt"},
		{in: "1000satsusdt", want: "1000satsusdt"},
		{in: "", wantErr: true},
		{in: "btc usdt", wantErr: true},
		{in: "btcusdt@ticker", wantErr: true},
		{in: "btc-usdt", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeSymbol(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidSymbol, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

type valueHandler struct{ name string }

func (valueHandler) HandleTicker(context.Context, Ticker) error { return nil }

func TestAppendHandlers(t *testing.T) {
	h1 := OnTicker(func(context.Context, Ticker) error { return nil })
	h2 := OnTicker(func(context.Context, Ticker) error { return nil })

	hs := appendHandlers(nil, h1, h2, h1, nil)
	assert.Len(t, hs, 2)

	// Comparable value types deduplicate by value.
	hs = appendHandlers(hs, valueHandler{"a"}, valueHandler{"a"}, valueHandler{"b"})
	assert.Len(t, hs, 4)

	// Function values cannot be compared and are always appended.
	fn := HandlerFunc(func(context.Context, Ticker) error { return nil })
	hs = appendHandlers(hs, fn, fn)
	assert.Len(t, hs, 6)
}
