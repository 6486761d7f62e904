package collab

import (
	"time"

	"github.com/dshills/stylesync/internal/event"
)

// Config holds collaboration settings.
type Config struct {
	// ExcludePaths are glob patterns (tidwall/match syntax) of setting
	// paths that are never broadcast, nor accepted from other clients.
	ExcludePaths []string

	// PresenceTTL is how long a collaborator stays active without a
	// presence update.
	PresenceTTL time.Duration

	// MaxPending bounds the unacknowledged local operations.
	MaxPending int
}

// DefaultConfig returns the default collaboration settings.
func DefaultConfig() Config {
	return Config{
		ExcludePaths: []string{"advanced.custom_*"},
		PresenceTTL:  60 * time.Second,
		MaxPending:   defaultMaxPending,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig replaces the manager configuration.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.config = cfg
	}
}

// WithBus sets the bus events are emitted on. Defaults to the store's bus.
func WithBus(bus *event.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithClock overrides the clock used for timestamps and presence expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}
