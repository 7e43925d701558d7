package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const keyPrefix = "cache:"

// Keyer maps a source and its request parameters to a cache key. Equal
// parameters must map to equal keys whatever their map iteration order, and
// implementations must be safe for concurrent use.
type Keyer interface {
	Key(source string, params any) (string, error)
}

// DefaultKeyer hashes the JSON encoding of the parameters. encoding/json
// writes map keys in sorted order at every depth, which makes the encoding
// canonical for maps, slices and structs alike.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key returns "cache:<source>:<hash>", hash being 16 hex characters of the
// SHA-256 of params' JSON.
func (k *DefaultKeyer) Key(source string, params any) (string, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("cache: encode params for %s: %w", source, err)
	}
	sum := sha256.Sum256(b)
	return keyPrefix + source + ":" + hex.EncodeToString(sum[:8]), nil
}

var _ Keyer = (*DefaultKeyer)(nil)
