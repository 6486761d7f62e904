package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/stylesync/internal/client/channel"
	"github.com/dshills/stylesync/internal/event"
)

// RequestInterceptor may modify an outgoing request. Returning an error
// aborts the request.
type RequestInterceptor func(req *http.Request) error

// ResponseInterceptor may transform a successful response body.
type ResponseInterceptor func(body json.RawMessage) (json.RawMessage, error)

// Client talks to the remote settings service. It runs the request
// pipeline, owns the serial queue for mutating operations and the
// persistent channel session.
type Client struct {
	config  Config
	baseURL *url.URL

	http      *http.Client
	bus       *event.Bus
	metrics   *Metrics
	refresher TokenRefresher
	sleep     func(ctx context.Context, d time.Duration) error
	dialer    *websocket.Dialer

	tokenMu      sync.RWMutex
	token        string
	tokenGen     uint64
	refreshGroup singleflight.Group

	icMu                 sync.RWMutex
	requestInterceptors  []*requestInterceptorEntry
	responseInterceptors []*responseInterceptorEntry

	queue *Queue

	chMu    sync.Mutex
	session *channel.Session
}

type requestInterceptorEntry struct {
	fn RequestInterceptor
}

type responseInterceptorEntry struct {
	fn ResponseInterceptor
}

// New creates a client from cfg. Zero or negative Timeout and RetryDelay
// fall back to DefaultConfig values. MaxRetries is used as given, so zero
// disables retries; a negative count is treated as zero.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, err
	}

	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}

	c := &Client{
		config:  cfg,
		baseURL: base,
		http:    http.DefaultClient,
		sleep:   sleepContext,
		token:   cfg.Token,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.queue = newQueue(c.metrics.setQueueDepth)
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// Bus returns the event bus, which may be nil.
func (c *Client) Bus() *event.Bus {
	return c.bus
}

// AddRequestInterceptor registers fn to run on every outgoing request,
// after any previously registered interceptors. The returned function
// removes it.
func (c *Client) AddRequestInterceptor(fn RequestInterceptor) (remove func()) {
	entry := &requestInterceptorEntry{fn: fn}
	c.icMu.Lock()
	c.requestInterceptors = append(c.requestInterceptors, entry)
	c.icMu.Unlock()

	return func() {
		c.icMu.Lock()
		defer c.icMu.Unlock()
		for i, e := range c.requestInterceptors {
			if e == entry {
				c.requestInterceptors = append(c.requestInterceptors[:i:i], c.requestInterceptors[i+1:]...)
				return
			}
		}
	}
}

// AddResponseInterceptor registers fn to run on every successful response
// body, after any previously registered interceptors. The returned
// function removes it.
func (c *Client) AddResponseInterceptor(fn ResponseInterceptor) (remove func()) {
	entry := &responseInterceptorEntry{fn: fn}
	c.icMu.Lock()
	c.responseInterceptors = append(c.responseInterceptors, entry)
	c.icMu.Unlock()

	return func() {
		c.icMu.Lock()
		defer c.icMu.Unlock()
		for i, e := range c.responseInterceptors {
			if e == entry {
				c.responseInterceptors = append(c.responseInterceptors[:i:i], c.responseInterceptors[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) requestInterceptorSnapshot() []RequestInterceptor {
	c.icMu.RLock()
	defer c.icMu.RUnlock()
	fns := make([]RequestInterceptor, len(c.requestInterceptors))
	for i, e := range c.requestInterceptors {
		fns[i] = e.fn
	}
	return fns
}

func (c *Client) responseInterceptorSnapshot() []ResponseInterceptor {
	c.icMu.RLock()
	defer c.icMu.RUnlock()
	fns := make([]ResponseInterceptor, len(c.responseInterceptors))
	for i, e := range c.responseInterceptors {
		fns[i] = e.fn
	}
	return fns
}

// ClearQueue rejects every queued mutating call that has not started.
func (c *Client) ClearQueue() {
	c.queue.Clear()
}

// QueueLength returns the number of queued mutating calls waiting to start.
func (c *Client) QueueLength() int {
	return c.queue.Len()
}

// Close disconnects the channel and shuts down the queue.
func (c *Client) Close() {
	c.DisconnectChannel()
	c.queue.Close()
}
