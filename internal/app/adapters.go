package app

import (
	"fmt"

	"github.com/dshills/stylesync/internal/client"
	"github.com/dshills/stylesync/internal/client/channel"
	"github.com/dshills/stylesync/internal/collab"
	"github.com/dshills/stylesync/internal/config"
	"github.com/dshills/stylesync/internal/event"
	"github.com/dshills/stylesync/internal/settings"
)

// clientConfig converts the file configuration to the client's.
func clientConfig(cfg config.Config) client.Config {
	return client.Config{
		BaseURL:       cfg.Client.BaseURL,
		Token:         cfg.Client.Token,
		Timeout:       cfg.Client.Timeout.Std(),
		MaxRetries:    cfg.Client.MaxRetries,
		RetryDelay:    cfg.Client.RetryDelay.Std(),
		MaxRetryDelay: cfg.Client.MaxRetryDelay.Std(),
		RefreshSkew:   cfg.Client.RefreshSkew.Std(),
		Channel:       channelConfig(cfg),
	}
}

func channelConfig(cfg config.Config) channel.Config {
	ch := channel.DefaultConfig()
	ch.URL = cfg.Channel.URL
	ch.ReconnectDelay = cfg.Channel.ReconnectDelay.Std()
	ch.MaxReconnectDelay = cfg.Channel.MaxReconnectDelay.Std()
	ch.MaxReconnectAttempts = cfg.Channel.MaxReconnectAttempts
	ch.HeartbeatInterval = cfg.Channel.HeartbeatInterval.Std()
	ch.DialTimeout = cfg.Channel.DialTimeout.Std()
	ch.Location = cfg.Channel.Location
	return ch
}

func busOptions(cfg config.Config) []event.BusOption {
	return []event.BusOption{
		event.WithQueueBatchSize(cfg.Bus.QueueBatchSize),
		event.WithQueueInterval(cfg.Bus.QueueInterval.Std()),
	}
}

// storeOptions converts the store section, reading the bootstrap file
// when one is configured.
func storeOptions(cfg config.Config) ([]settings.Option, error) {
	opts := []settings.Option{
		settings.WithHistoryLimit(cfg.Store.HistoryLimit),
		settings.WithCacheSize(cfg.Store.CacheSize),
		settings.WithChangeDebounce(cfg.Store.ChangeDebounce.Std()),
	}

	data, err := cfg.ReadBootstrap()
	if err != nil {
		return nil, err
	}
	if data != nil {
		tree, err := settings.ParseTree(data)
		if err != nil {
			return nil, fmt.Errorf("parse bootstrap file %s: %w", cfg.Store.BootstrapFile, err)
		}
		opts = append(opts, settings.WithBootstrap(tree))
	}
	return opts, nil
}

func collabConfig(cfg config.Config) collab.Config {
	c := collab.DefaultConfig()
	c.ExcludePaths = append([]string(nil), cfg.Collab.ExcludePaths...)
	c.PresenceTTL = cfg.Collab.PresenceTTL.Std()
	return c
}
