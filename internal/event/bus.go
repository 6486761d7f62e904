package event

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/dshills/stylesync/internal/event/topic"
)

// Bus is a topic-based publish/subscribe bus.
// It is safe for concurrent use; the zero value is not usable, use NewBus.
type Bus struct {
	registry *Registry
	config   busConfig
	seq      atomic.Uint64
	closed   atomic.Bool

	debounceMu sync.Mutex
	debounced  map[topic.Topic]*debounceEntry

	queue *emitQueue

	published      atomic.Uint64
	delivered      atomic.Uint64
	handlerErrors  atomic.Uint64
	handlerPanics  atomic.Uint64
	debouncedCount atomic.Uint64
	queuedCount    atomic.Uint64
}

// NewBus creates a bus with the given options.
func NewBus(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	b := &Bus{
		registry:  NewRegistry(),
		config:    config,
		debounced: make(map[topic.Topic]*debounceEntry),
	}
	b.queue = newEmitQueue(b)
	return b
}

// On registers a persistent handler for pattern.
func (b *Bus) On(pattern topic.Topic, h Handler) (Subscription, error) {
	return b.subscribe(pattern, h, false)
}

// Once registers a handler that is removed after its first delivery.
func (b *Bus) Once(pattern topic.Topic, h Handler) (Subscription, error) {
	return b.subscribe(pattern, h, true)
}

// OnFunc is On with a function handler.
func (b *Bus) OnFunc(pattern topic.Topic, fn func(Event) error) (Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.On(pattern, HandlerFunc(fn))
}

func (b *Bus) subscribe(pattern topic.Topic, h Handler, once bool) (Subscription, error) {
	if !pattern.IsValid() {
		return nil, ErrInvalidTopic
	}
	if h == nil {
		return nil, ErrNilHandler
	}
	if fn, ok := h.(HandlerFunc); ok && fn == nil {
		return nil, ErrNilHandler
	}
	if b.closed.Load() {
		return nil, ErrBusClosed
	}

	sub := &subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		handler: h,
		once:    once,
		seq:     b.seq.Add(1),
		bus:     b,
	}
	b.registry.Add(sub)
	return sub, nil
}

// Off removes the given subscriptions of pattern, or every subscription
// of pattern when none are given. Returns the number removed.
func (b *Bus) Off(pattern topic.Topic, subs ...Subscription) int {
	if len(subs) == 0 {
		return b.registry.RemovePattern(pattern)
	}
	removed := 0
	for _, s := range subs {
		if s == nil || s.Topic() != pattern {
			continue
		}
		if b.registry.Remove(s.ID()) {
			removed++
		}
	}
	return removed
}

// Emit synchronously delivers payload to every handler whose pattern
// matches t, in registration order. Handler failures never reach the caller.
func (b *Bus) Emit(t topic.Topic, payload any) {
	if b.closed.Load() {
		return
	}
	if !t.IsValid() {
		glog.Warningf("event: dropping emit on invalid topic %q", t)
		return
	}

	b.published.Add(1)
	subs := b.registry.Match(t)
	if len(subs) == 0 {
		return
	}

	ev := Event{Topic: t, Payload: payload, Timestamp: time.Now()}
	for _, sub := range subs {
		if !sub.claim() {
			continue
		}
		if sub.once {
			b.registry.Remove(sub.id)
		}

		if err := b.invoke(sub, ev); err != nil {
			b.handlerErrors.Add(1)
			b.reportFailure(sub, ev, err)
			continue
		}
		b.delivered.Add(1)
	}
}

// invoke runs a handler, converting a panic into a *PanicError.
func (b *Bus) invoke(sub *subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerPanics.Add(1)
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return sub.handler.Handle(ev)
}

func (b *Bus) reportFailure(sub *subscription, ev Event, err error) {
	herr := &HandlerError{
		SubscriptionID: sub.id,
		Pattern:        string(sub.pattern),
		Topic:          string(ev.Topic),
		Err:            err,
	}
	glog.Errorf("event: %v", herr)
	if pe, ok := err.(*PanicError); ok {
		glog.V(1).Infof("event: panic stack:\n%s", pe.Stack)
	}

	// Failures while reporting failures are only logged.
	if ev.Topic == TopicErrorOccurred {
		return
	}
	b.Emit(TopicErrorOccurred, herr)
}

// ListenerCount returns the number of subscriptions registered with pattern.
func (b *Bus) ListenerCount(pattern topic.Topic) int {
	return b.registry.CountByTopic(pattern)
}

// Patterns returns every pattern with at least one subscription.
func (b *Bus) Patterns() []topic.Topic {
	return b.registry.Topics()
}

// Flush emits every pending debounced payload and drains the emit queue
// synchronously.
func (b *Bus) Flush() {
	b.flushDebounced()
	b.queue.drain()
}

// Clear removes every subscription, cancels pending debounced emissions
// and drops queued emissions.
func (b *Bus) Clear() {
	b.cancelDebounced()
	b.queue.reset()
	b.registry.Clear()
}

// Close clears the bus and stops the queue worker. Later emissions are
// dropped and later subscriptions fail with ErrBusClosed.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.Clear()
	b.queue.close()
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published:           b.published.Load(),
		Delivered:           b.delivered.Load(),
		HandlerErrors:       b.handlerErrors.Load(),
		HandlerPanics:       b.handlerPanics.Load(),
		Debounced:           b.debouncedCount.Load(),
		Queued:              b.queuedCount.Load(),
		QueueDepth:          b.queue.len(),
		ActiveSubscriptions: b.registry.Count(),
	}
}
