package event

import (
	"sync/atomic"

	"github.com/dshills/stylesync/internal/event/topic"
)

// Subscription is a handle to a registered handler.
type Subscription interface {
	// ID returns the unique subscription identifier.
	ID() string

	// Topic returns the subscribed pattern.
	Topic() topic.Topic

	// Once reports whether the subscription is removed after first delivery.
	Once() bool

	// Active reports whether the subscription still receives events.
	Active() bool

	// Unsubscribe removes the subscription. Safe to call more than once.
	Unsubscribe()
}

type subscription struct {
	id      string
	pattern topic.Topic
	handler Handler
	once    bool
	seq     uint64
	bus     *Bus

	fired     atomic.Bool
	cancelled atomic.Bool
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Topic() topic.Topic {
	return s.pattern
}

func (s *subscription) Once() bool {
	return s.once
}

func (s *subscription) Active() bool {
	return !s.cancelled.Load()
}

func (s *subscription) Unsubscribe() {
	if s.cancelled.Swap(true) {
		return
	}
	s.bus.registry.Remove(s.id)
}

// claim reports whether the handler may run for the current emission.
// A once-subscription can be claimed a single time.
func (s *subscription) claim() bool {
	if s.cancelled.Load() {
		return false
	}
	if s.once {
		return s.fired.CompareAndSwap(false, true)
	}
	return true
}
