package collab

import "errors"

// Sentinel errors for the collaboration manager.
var (
	// ErrNotEnabled is returned by operations that need an enabled manager.
	ErrNotEnabled = errors.New("collaboration not enabled")

	// ErrNoChannel is returned by New without a channel.
	ErrNoChannel = errors.New("collaboration requires a channel")

	// ErrNoStore is returned by New without a store.
	ErrNoStore = errors.New("collaboration requires a settings store")
)
