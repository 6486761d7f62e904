package event

import "time"

// BusOption configures a Bus.
type BusOption func(*busConfig)

type busConfig struct {
	// debounceDelay is used by EmitDebounced when the caller passes no delay.
	debounceDelay time.Duration

	// queueBatchSize is the number of queued emissions dispatched per tick.
	queueBatchSize int

	// queueInterval is the tick between queued batches.
	queueInterval time.Duration
}

func defaultBusConfig() busConfig {
	return busConfig{
		debounceDelay:  100 * time.Millisecond,
		queueBatchSize: 10,
		queueInterval:  16 * time.Millisecond,
	}
}

// WithDebounceDelay sets the default debounce window.
func WithDebounceDelay(d time.Duration) BusOption {
	return func(c *busConfig) {
		if d > 0 {
			c.debounceDelay = d
		}
	}
}

// WithQueueBatchSize sets how many queued emissions are dispatched per tick.
func WithQueueBatchSize(n int) BusOption {
	return func(c *busConfig) {
		if n > 0 {
			c.queueBatchSize = n
		}
	}
}

// WithQueueInterval sets the tick between queued batches.
func WithQueueInterval(d time.Duration) BusOption {
	return func(c *busConfig) {
		if d > 0 {
			c.queueInterval = d
		}
	}
}
