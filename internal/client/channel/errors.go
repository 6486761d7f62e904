package channel

import "errors"

// Standard errors returned by the channel.
var (
	// ErrMissingURL indicates the configuration has no channel URL.
	ErrMissingURL = errors.New("channel: URL is required")

	// ErrNotConnected indicates a send while the session is not connected.
	ErrNotConnected = errors.New("channel: not connected")

	// ErrInvalidTransition indicates an input that is not valid in the current state.
	ErrInvalidTransition = errors.New("channel: invalid state transition")

	// ErrInvalidChange indicates a state change without a path.
	ErrInvalidChange = errors.New("channel: state change must include a path")

	// ErrDisconnected indicates a connection attempt abandoned by Disconnect.
	ErrDisconnected = errors.New("channel: disconnected during connect")
)
