package channel

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/dshills/stylesync/internal/event"
)

// Config configures a Session.
type Config struct {
	// URL is the ws:// or wss:// endpoint. The auth token is added as the
	// "token" query parameter.
	URL string

	// ReconnectDelay is the base reconnect delay.
	// Default: 1 second
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps a single reconnect delay.
	// Default: 30 seconds
	MaxReconnectDelay time.Duration

	// MaxReconnectAttempts bounds consecutive reconnects. Zero means unlimited.
	MaxReconnectAttempts int

	// HeartbeatInterval is the period between ping messages.
	// Default: 30 seconds
	HeartbeatInterval time.Duration

	// DialTimeout bounds the opening handshake.
	// Default: 10 seconds
	DialTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// Location is the default presence location.
	Location string
}

// DefaultConfig returns the default channel configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		DialTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	return c
}

// Option configures a Session.
type Option func(*Session)

// WithDialer sets the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Session) {
		if d != nil {
			s.dialer = d
		}
	}
}

// WithBus sets the bus lifecycle events are published on.
func WithBus(bus *event.Bus) Option {
	return func(s *Session) {
		s.bus = bus
	}
}

// WithTokenSource sets the function that supplies the auth token for
// each connection attempt.
func WithTokenSource(fn func() string) Option {
	return func(s *Session) {
		s.token = fn
	}
}

// WithTransitionListener registers fn to observe every state change.
func WithTransitionListener(fn func(from, to State)) Option {
	return func(s *Session) {
		s.onTransition = fn
	}
}

// WithClientID overrides the generated client id.
func WithClientID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.clientID = id
		}
	}
}

// StatusPayload is published on channel:* topics.
type StatusPayload struct {
	State    State
	ClientID string

	// Attempt is the reconnect attempt about to run (reconnecting) or the
	// number of attempts made (failed).
	Attempt int

	// Delay is the wait before the next attempt (reconnecting only).
	Delay time.Duration

	// Code is the close code (disconnected only; zero when closed locally).
	Code int

	Err error
}
