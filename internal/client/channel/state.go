package channel

import "fmt"

// State is the lifecycle state of a Session.
type State int

const (
	// StateDisconnected means no connection and no reconnect pending.
	StateDisconnected State = iota
	// StateConnecting means a dial is in progress.
	StateConnecting
	// StateConnected means the connection is open.
	StateConnected
	// StateReconnecting means a reconnect is scheduled after a failure.
	StateReconnecting
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Input is an event that drives the session state machine.
type Input int

const (
	// InputDial starts a connection attempt.
	InputDial Input = iota
	// InputOpened reports a completed handshake.
	InputOpened
	// InputDialFailed reports a failed or timed out handshake.
	InputDialFailed
	// InputCleanClose reports a close with code 1000 or 1001.
	InputCleanClose
	// InputAbnormalClose reports any other close or read failure.
	InputAbnormalClose
	// InputRetryDue reports that the reconnect delay elapsed.
	InputRetryDue
	// InputGiveUp reports that the reconnect attempts are exhausted.
	InputGiveUp
	// InputDisconnect is an explicit disconnect request.
	InputDisconnect
)

// String returns the input name.
func (in Input) String() string {
	switch in {
	case InputDial:
		return "dial"
	case InputOpened:
		return "opened"
	case InputDialFailed:
		return "dial-failed"
	case InputCleanClose:
		return "clean-close"
	case InputAbnormalClose:
		return "abnormal-close"
	case InputRetryDue:
		return "retry-due"
	case InputGiveUp:
		return "give-up"
	case InputDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

type transitionKey struct {
	from State
	in   Input
}

var transitions = map[transitionKey]State{
	{StateDisconnected, InputDial}:       StateConnecting,
	{StateDisconnected, InputDisconnect}: StateDisconnected,

	{StateConnecting, InputOpened}:     StateConnected,
	{StateConnecting, InputDialFailed}: StateReconnecting,
	{StateConnecting, InputDisconnect}: StateDisconnected,

	{StateConnected, InputCleanClose}:    StateDisconnected,
	{StateConnected, InputAbnormalClose}: StateReconnecting,
	{StateConnected, InputDisconnect}:    StateDisconnected,

	{StateReconnecting, InputRetryDue}:   StateConnecting,
	{StateReconnecting, InputGiveUp}:     StateDisconnected,
	{StateReconnecting, InputDisconnect}: StateDisconnected,
}

// Transition returns the state that follows s on input in, or
// ErrInvalidTransition when the input is not valid in s.
func Transition(s State, in Input) (State, error) {
	next, ok := transitions[transitionKey{s, in}]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, in, s)
	}
	return next, nil
}
