package cache

import (
	"strings"
	"testing"
)

func mustKey(t *testing.T, source string, params any) string {
	t.Helper()
	key, err := NewDefaultKeyer().Key(source, params)
	if err != nil {
		t.Fatalf("Key(%q) error = %v", source, err)
	}
	return key
}

func TestKeyer_MapOrderIrrelevant(t *testing.T) {
	a := mustKey(t, "ticker", map[string]any{"symbol": "btcusdt", "interval": "1m", "limit": 5})
	b := mustKey(t, "ticker", map[string]any{"limit": 5, "symbol": "btcusdt", "interval": "1m"})
	if a != b {
		t.Errorf("keys differ for equal maps: %s vs %s", a, b)
	}

	nestedA := mustKey(t, "ticker", map[string]any{"filter": map[string]any{"x": 1, "y": []any{"a", map[string]any{"q": 1, "p": 2}}}})
	nestedB := mustKey(t, "ticker", map[string]any{"filter": map[string]any{"y": []any{"a", map[string]any{"p": 2, "q": 1}}, "x": 1}})
	if nestedA != nestedB {
		t.Errorf("keys differ for equal nested maps: %s vs %s", nestedA, nestedB)
	}

	strMap := mustKey(t, "ticker", map[string]string{"symbol": "btcusdt"})
	anyMap := mustKey(t, "ticker", map[string]any{"symbol": "btcusdt"})
	if strMap != anyMap {
		t.Errorf("map[string]string and map[string]any keys differ: %s vs %s", strMap, anyMap)
	}
}

func TestKeyer_Distinguishes(t *testing.T) {
	base := mustKey(t, "ticker", map[string]any{"symbol": "btcusdt"})

	if k := mustKey(t, "klines", map[string]any{"symbol": "btcusdt"}); k == base {
		t.Error("different sources produced the same key")
	}
	if k := mustKey(t, "ticker", map[string]any{"symbol": "ethusdt"}); k == base {
		t.Error("different params produced the same key")
	}
	if a, b := mustKey(t, "ticker", []any{1, 2}), mustKey(t, "ticker", []any{2, 1}); a == b {
		t.Error("array order ignored")
	}
	if a, b := mustKey(t, "ticker", nil), mustKey(t, "ticker", map[string]any{}); a == b {
		t.Error("nil and empty map produced the same key")
	}
}

func TestKeyer_Format(t *testing.T) {
	key := mustKey(t, "ticker", map[string]any{"symbol": "btcusdt"})

	const prefix = "cache:ticker:"
	if !strings.HasPrefix(key, prefix) {
		t.Fatalf("key %q lacks prefix %q", key, prefix)
	}
	if hash := strings.TrimPrefix(key, prefix); len(hash) != 16 {
		t.Errorf("hash %q has length %d, want 16", hash, len(hash))
	}
	if err := ValidateKey(key); err != nil {
		t.Errorf("ValidateKey(%q) = %v", key, err)
	}
}

func TestKeyer_UnencodableParams(t *testing.T) {
	_, err := NewDefaultKeyer().Key("ticker", map[string]any{"ch": make(chan int)})
	if err == nil {
		t.Fatal("Key() with a channel param succeeded")
	}
}
