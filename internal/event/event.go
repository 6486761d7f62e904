package event

import (
	"time"

	"github.com/dshills/stylesync/internal/event/topic"
)

// Event is a single emission delivered to handlers.
type Event struct {
	// Topic is the concrete topic that was emitted.
	Topic topic.Topic

	// Payload is the emitter-supplied value. Handlers type-assert it.
	Payload any

	// Timestamp is when the emission was dispatched.
	Timestamp time.Time
}

// Handler processes events.
type Handler interface {
	Handle(ev Event) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ev Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ev Event) error {
	return f(ev)
}

// Stats holds bus counters.
type Stats struct {
	Published           uint64
	Delivered           uint64
	HandlerErrors       uint64
	HandlerPanics       uint64
	Debounced           uint64
	Queued              uint64
	QueueDepth          int
	ActiveSubscriptions int
}
