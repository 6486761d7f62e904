package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/stylesync/internal/config/loader"
)

// EnvPrefix is the prefix of environment variables that override file values.
const EnvPrefix = "STYLESYNC_"

// Duration is a time.Duration that reads and writes as "30s" style text.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDuration, b)
	}
	*d = Duration(v)
	return nil
}

// Config is the complete stylesync configuration.
type Config struct {
	Client  ClientConfig  `toml:"client"`
	Channel ChannelConfig `toml:"channel"`
	Store   StoreConfig   `toml:"store"`
	Bus     BusConfig     `toml:"bus"`
	Collab  CollabConfig  `toml:"collab"`
}

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL       string   `toml:"base_url"`
	Token         string   `toml:"token"`
	Timeout       Duration `toml:"timeout"`
	MaxRetries    int      `toml:"max_retries"`
	RetryDelay    Duration `toml:"retry_delay"`
	MaxRetryDelay Duration `toml:"max_retry_delay"`
	RefreshSkew   Duration `toml:"refresh_skew"`
}

// ChannelConfig configures the persistent channel.
type ChannelConfig struct {
	// URL overrides the endpoint derived from the client base URL.
	URL                  string   `toml:"url"`
	ReconnectDelay       Duration `toml:"reconnect_delay"`
	MaxReconnectDelay    Duration `toml:"max_reconnect_delay"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	HeartbeatInterval    Duration `toml:"heartbeat_interval"`
	DialTimeout          Duration `toml:"dial_timeout"`
	Location             string   `toml:"location"`
}

// StoreConfig configures the settings store.
type StoreConfig struct {
	HistoryLimit   int      `toml:"history_limit"`
	CacheSize      int      `toml:"cache_size"`
	ChangeDebounce Duration `toml:"change_debounce"`
	// BootstrapFile is an optional JSON settings document used when the
	// initial load fails.
	BootstrapFile string `toml:"bootstrap_file"`
}

// BusConfig configures the event bus.
type BusConfig struct {
	QueueBatchSize int      `toml:"queue_batch_size"`
	QueueInterval  Duration `toml:"queue_interval"`
}

// CollabConfig configures collaboration.
type CollabConfig struct {
	ExcludePaths []string `toml:"exclude_paths"`
	PresenceTTL  Duration `toml:"presence_ttl"`
}

// Default returns the default configuration. BaseURL and Token have no
// defaults and must be supplied.
func Default() Config {
	return Config{
		Client: ClientConfig{
			Timeout:     Duration(30 * time.Second),
			MaxRetries:  3,
			RetryDelay:  Duration(time.Second),
			RefreshSkew: Duration(30 * time.Second),
		},
		Channel: ChannelConfig{
			ReconnectDelay:    Duration(time.Second),
			MaxReconnectDelay: Duration(30 * time.Second),
			HeartbeatInterval: Duration(30 * time.Second),
			DialTimeout:       Duration(10 * time.Second),
		},
		Store: StoreConfig{
			HistoryLimit:   50,
			CacheSize:      100,
			ChangeDebounce: Duration(100 * time.Millisecond),
		},
		Bus: BusConfig{
			QueueBatchSize: 10,
			QueueInterval:  Duration(16 * time.Millisecond),
		},
		Collab: CollabConfig{
			ExcludePaths: []string{"advanced.custom_*"},
			PresenceTTL:  Duration(60 * time.Second),
		},
	}
}

// Option adjusts a loaded Config. Options are applied after the file and
// environment and take precedence over both.
type Option func(*Config)

// WithBaseURL sets the client base URL.
func WithBaseURL(u string) Option {
	return func(c *Config) {
		c.Client.BaseURL = u
	}
}

// WithToken sets the initial auth token.
func WithToken(token string) Option {
	return func(c *Config) {
		c.Client.Token = token
	}
}

// WithChannelURL sets the channel endpoint.
func WithChannelURL(u string) Option {
	return func(c *Config) {
		c.Channel.URL = u
	}
}

// Load reads the configuration at path from the operating system.
// An empty path or a missing file yields the defaults plus environment.
func Load(path string, opts ...Option) (Config, error) {
	return LoadWithFS(loader.DefaultFS(), path, opts...)
}

// LoadWithFS reads the configuration at path from fsys.
//
// Precedence, lowest first: defaults, file, environment, options.
func LoadWithFS(fsys loader.FileSystem, path string, opts ...Option) (Config, error) {
	base, err := toMap(Default())
	if err != nil {
		return Config{}, err
	}

	merged := loader.Clone(base)
	if path != "" {
		file, err := loader.NewTOMLLoader(fsys, path).Load()
		if err != nil {
			return Config{}, err
		}
		merged = loader.DeepMerge(merged, file)
	}

	env := loader.NewEnvLoader(EnvPrefix, base)
	env.AddMapping(EnvPrefix+"TOKEN", "client.token")
	env.AddMapping(EnvPrefix+"BASE_URL", "client.base_url")
	vars, err := env.Load()
	if err != nil {
		return Config{}, err
	}
	merged = loader.DeepMerge(merged, vars)

	cfg, err := fromMap(merged)
	if err != nil {
		return Config{}, &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, nil
}

// Validate reports the first invalid field of c.
func (c Config) Validate() error {
	switch {
	case c.Client.BaseURL == "":
		return &ValidationError{Field: "client.base_url", Message: "required"}
	case c.Client.Token == "":
		return &ValidationError{Field: "client.token", Message: "required"}
	case c.Client.Timeout <= 0:
		return &ValidationError{Field: "client.timeout", Message: "must be positive", Value: c.Client.Timeout}
	case c.Client.MaxRetries < 0:
		return &ValidationError{Field: "client.max_retries", Message: "must not be negative", Value: c.Client.MaxRetries}
	case c.Channel.MaxReconnectAttempts < 0:
		return &ValidationError{Field: "channel.max_reconnect_attempts", Message: "must not be negative", Value: c.Channel.MaxReconnectAttempts}
	case c.Store.HistoryLimit < 1:
		return &ValidationError{Field: "store.history_limit", Message: "must be at least 1", Value: c.Store.HistoryLimit}
	case c.Store.CacheSize < 1:
		return &ValidationError{Field: "store.cache_size", Message: "must be at least 1", Value: c.Store.CacheSize}
	case c.Bus.QueueBatchSize < 1:
		return &ValidationError{Field: "bus.queue_batch_size", Message: "must be at least 1", Value: c.Bus.QueueBatchSize}
	}
	return nil
}

// ReadBootstrap reads the bootstrap settings document named by the store
// section, or returns nil when none is configured.
func (c Config) ReadBootstrap() ([]byte, error) {
	if c.Store.BootstrapFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.Store.BootstrapFile)
	if err != nil {
		return nil, fmt.Errorf("read bootstrap file: %w", err)
	}
	return data, nil
}

// toMap converts c into the generic map form the loaders produce.
func toMap(c Config) (map[string]any, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	return loader.Parse("defaults", data)
}

func fromMap(m map[string]any) (Config, error) {
	data, err := toml.Marshal(m)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
