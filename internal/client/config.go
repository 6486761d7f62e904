package client

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dshills/stylesync/internal/client/channel"
	"github.com/dshills/stylesync/internal/event"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the REST root; endpoints are appended to it.
	BaseURL string

	// Token is the initial auth token sent as a bearer credential.
	Token string

	// Timeout bounds a single request attempt.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base delay; attempt n waits RetryDelay * 2^n.
	// Default: 1 second
	RetryDelay time.Duration

	// MaxRetryDelay caps a single retry delay. Zero means uncapped.
	MaxRetryDelay time.Duration

	// RefreshSkew triggers a proactive refresh when a JWT token expires
	// within this window.
	// Default: 30 seconds
	RefreshSkew time.Duration

	// Channel configures the persistent channel.
	Channel channel.Config
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		RetryDelay:  time.Second,
		RefreshSkew: 30 * time.Second,
		Channel:     channel.DefaultConfig(),
	}
}

// TokenRefresher obtains a fresh auth token.
type TokenRefresher func(ctx context.Context) (string, error)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBus sets the event bus terminal errors and channel events are published on.
func WithBus(bus *event.Bus) Option {
	return func(c *Client) {
		c.bus = bus
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTokenRefresher sets the function used to refresh a rejected token.
func WithTokenRefresher(fn TokenRefresher) Option {
	return func(c *Client) {
		c.refresher = fn
	}
}

// WithSleep replaces the retry wait. The function must return early
// with ctx.Err() when ctx ends.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithDialer sets the WebSocket dialer used by the persistent channel.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
