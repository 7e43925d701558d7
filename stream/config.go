package stream

import "time"

// DefaultURL is the Binance combined websocket endpoint.
const DefaultURL = "wss://stream.binance.com:9443/ws"

// Config configures a Manager.
type Config struct {
	// URL is the feed endpoint.
	URL string `mapstructure:"url" yaml:"url"`

	// MaxSymbols caps the number of concurrently active symbols.
	// Default: 5
	MaxSymbols int `mapstructure:"max_symbols" yaml:"max_symbols"`

	// AdmissionKey is the limiter key checked before every new subscription.
	// Default: "binance_ws"
	AdmissionKey string `mapstructure:"admission_key" yaml:"admission_key"`

	// DispatchTimeout bounds fan-out of one ticker to its handlers.
	// Default: 1s
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout" yaml:"dispatch_timeout"`

	// MaxInflightDispatches caps the dispatches per symbol whose handlers
	// have not yet returned, including those abandoned by DispatchTimeout.
	// Default: 4
	MaxInflightDispatches int `mapstructure:"max_inflight_dispatches" yaml:"max_inflight_dispatches"`

	// ReconnectDelay is the pause before the first reconnect attempt and the
	// base of the backoff between later attempts.
	// Default: 1s
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`

	// ReconnectAttempts is the number of dial attempts per reconnect.
	// Default: 5
	ReconnectAttempts int `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`

	// MaxReconnectDelay caps the backoff between reconnect attempts.
	// Default: 30s
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay" yaml:"max_reconnect_delay"`

	// ResubscribeDelay separates restored subscriptions.
	// Default: 100ms
	ResubscribeDelay time.Duration `mapstructure:"resubscribe_delay" yaml:"resubscribe_delay"`

	// MaxProtocolErrors is the number of consecutive undecodable frames that
	// forces a reconnect.
	// Default: 3
	MaxProtocolErrors int `mapstructure:"max_protocol_errors" yaml:"max_protocol_errors"`

	// HandshakeTimeout bounds the websocket handshake.
	// Default: 10s
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`

	// WriteTimeout bounds a frame write when the caller's context has no deadline.
	// Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// DefaultConfig returns the configuration used for unset fields.
func DefaultConfig() Config {
	return Config{
		URL:                   DefaultURL,
		MaxSymbols:            5,
		AdmissionKey:          "binance_ws",
		DispatchTimeout:       time.Second,
		MaxInflightDispatches: 4,
		ReconnectDelay:        time.Second,
		ReconnectAttempts:     5,
		MaxReconnectDelay:     30 * time.Second,
		ResubscribeDelay:      100 * time.Millisecond,
		MaxProtocolErrors:     3,
		HandshakeTimeout:      10 * time.Second,
		WriteTimeout:          10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.MaxSymbols <= 0 {
		c.MaxSymbols = d.MaxSymbols
	}
	if c.AdmissionKey == "" {
		c.AdmissionKey = d.AdmissionKey
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = d.DispatchTimeout
	}
	if c.MaxInflightDispatches <= 0 {
		c.MaxInflightDispatches = d.MaxInflightDispatches
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = d.ReconnectAttempts
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = d.MaxReconnectDelay
	}
	if c.ResubscribeDelay < 0 {
		c.ResubscribeDelay = 0
	} else if c.ResubscribeDelay == 0 {
		c.ResubscribeDelay = d.ResubscribeDelay
	}
	if c.MaxProtocolErrors <= 0 {
		c.MaxProtocolErrors = d.MaxProtocolErrors
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}
