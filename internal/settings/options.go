package settings

import (
	"time"

	"github.com/dshills/stylesync/internal/settings/cache"
	"github.com/dshills/stylesync/internal/settings/history"
)

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	historyLimit   int
	cacheSize      int
	changeDebounce time.Duration
	bootstrap      Tree
	warmPaths      []string
	initial        Tree
}

func defaultStoreConfig() storeConfig {
	return storeConfig{
		historyLimit:   history.DefaultLimit,
		cacheSize:      cache.DefaultSize,
		changeDebounce: 100 * time.Millisecond,
		warmPaths:      WarmPaths,
	}
}

// WithHistoryLimit sets the undo stack capacity.
func WithHistoryLimit(n int) Option {
	return func(c *storeConfig) {
		if n > 0 {
			c.historyLimit = n
		}
	}
}

// WithCacheSize sets the read cache capacity.
func WithCacheSize(n int) Option {
	return func(c *storeConfig) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// WithChangeDebounce sets the settings:changed debounce window.
func WithChangeDebounce(d time.Duration) Option {
	return func(c *storeConfig) {
		if d > 0 {
			c.changeDebounce = d
		}
	}
}

// WithBootstrap sets the tree LoadFromServer falls back to when the
// remote cannot be reached.
func WithBootstrap(t Tree) Option {
	return func(c *storeConfig) {
		c.bootstrap = t
	}
}

// WithWarmPaths replaces the paths cached after a successful load.
func WithWarmPaths(paths []string) Option {
	return func(c *storeConfig) {
		c.warmPaths = paths
	}
}

// WithInitialTree starts the store from t instead of the defaults.
func WithInitialTree(t Tree) Option {
	return func(c *storeConfig) {
		c.initial = t
	}
}
