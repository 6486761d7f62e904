// Package app wires the stylesync components together. An App owns one
// event bus, REST/channel client, settings store, collaboration manager
// and action applier, built from a config.Config. There is no package
// state; every component is reached through the App.
package app

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/stylesync/internal/actions"
	"github.com/dshills/stylesync/internal/client"
	"github.com/dshills/stylesync/internal/collab"
	"github.com/dshills/stylesync/internal/config"
	"github.com/dshills/stylesync/internal/event"
	"github.com/dshills/stylesync/internal/settings"
)

// App is the composition root.
type App struct {
	mu     sync.Mutex
	config config.Config

	bus     *event.Bus
	client  *client.Client
	store   *settings.Store
	collab  *collab.Manager
	actions *actions.Applier

	closed atomic.Bool
}

// Options configures an App beyond what config.Config covers.
type Options struct {
	// Registerer receives the client metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	// HTTPClient replaces http.DefaultClient for REST calls.
	HTTPClient *http.Client

	// Dialer replaces the default WebSocket dialer.
	Dialer *websocket.Dialer

	// TokenRefresher obtains a new token after an auth failure.
	TokenRefresher client.TokenRefresher
}

// Option configures an App.
type Option func(*Options)

// WithRegisterer registers client metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Options) {
		o.Registerer = reg
	}
}

// WithHTTPClient sets the HTTP client used for REST calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = hc
	}
}

// WithDialer sets the WebSocket dialer used by the channel.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *Options) {
		o.Dialer = d
	}
}

// WithTokenRefresher sets the token refresh hook.
func WithTokenRefresher(fn client.TokenRefresher) Option {
	return func(o *Options) {
		o.TokenRefresher = fn
	}
}

// New validates cfg and constructs all components in dependency order:
// bus, client, store, collaboration, actions.
func New(cfg config.Config, opts ...Option) (*App, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{config: cfg}

	// 1. Event bus
	a.bus = event.NewBus(busOptions(cfg)...)

	// 2. Client
	clientOpts := []client.Option{
		client.WithBus(a.bus),
		client.WithMetrics(client.NewMetrics(o.Registerer)),
	}
	if o.HTTPClient != nil {
		clientOpts = append(clientOpts, client.WithHTTPClient(o.HTTPClient))
	}
	if o.Dialer != nil {
		clientOpts = append(clientOpts, client.WithDialer(o.Dialer))
	}
	if o.TokenRefresher != nil {
		clientOpts = append(clientOpts, client.WithTokenRefresher(o.TokenRefresher))
	}
	c, err := client.New(clientConfig(cfg), clientOpts...)
	if err != nil {
		a.bus.Close()
		return nil, &ComponentError{Component: "client", Action: "create", Err: err}
	}
	a.client = c

	// 3. Settings store, persisted through the client
	storeOpts, err := storeOptions(cfg)
	if err != nil {
		a.shutdown()
		return nil, &ComponentError{Component: "store", Action: "configure", Err: err}
	}
	a.store = settings.NewStore(a.bus, a.client, storeOpts...)

	// 4. Collaboration over the client's channel
	a.collab, err = collab.New(a.store, a.client,
		collab.WithBus(a.bus),
		collab.WithConfig(collabConfig(cfg)),
	)
	if err != nil {
		a.shutdown()
		return nil, &ComponentError{Component: "collab", Action: "create", Err: err}
	}

	// 5. Apply actions
	a.actions = actions.NewApplier(a.client, a.store, actions.WithBus(a.bus))

	glog.V(1).Infof("app: ready (base %s)", cfg.Client.BaseURL)
	return a, nil
}

// Config returns the configuration the App was built from, with any
// token rotation applied.
func (a *App) Config() config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// Bus returns the event bus.
func (a *App) Bus() *event.Bus { return a.bus }

// Client returns the REST and channel client.
func (a *App) Client() *client.Client { return a.client }

// Store returns the settings store.
func (a *App) Store() *settings.Store { return a.store }

// Collab returns the collaboration manager.
func (a *App) Collab() *collab.Manager { return a.collab }

// Actions returns the apply-style action runner.
func (a *App) Actions() *actions.Applier { return a.actions }

// Load fetches the settings tree from the server.
func (a *App) Load(ctx context.Context) error {
	if a.closed.Load() {
		return ErrClosed
	}
	return a.store.LoadFromServer(ctx)
}

// Save persists the settings tree.
func (a *App) Save(ctx context.Context) error {
	if a.closed.Load() {
		return ErrClosed
	}
	_, err := a.store.SaveToServer(ctx)
	return err
}

// Reconfigure applies the parts of cfg that can change at runtime. Only
// the auth token is rotated; other fields need a new App.
func (a *App) Reconfigure(cfg config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cfg.Client.Token != "" && cfg.Client.Token != a.config.Client.Token {
		a.client.SetToken(cfg.Client.Token)
		a.config.Client.Token = cfg.Client.Token
		glog.V(1).Info("app: auth token rotated")
	}
}

// Close disables collaboration and releases the client and bus. It is
// safe to call more than once.
func (a *App) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.shutdown()
	glog.V(1).Info("app: closed")
}

// shutdown tears components down in reverse construction order.
func (a *App) shutdown() {
	if a.collab != nil {
		a.collab.Disable()
	}
	if a.client != nil {
		a.client.Close()
	}
	a.bus.Close()
}
