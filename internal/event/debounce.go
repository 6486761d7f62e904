package event

import (
	"sort"
	"time"

	"github.com/dshills/stylesync/internal/event/topic"
)

type debounceEntry struct {
	timer   *time.Timer
	payload any
	gen     uint64
}

// EmitDebounced schedules a trailing emission of t. Calls for the same
// topic within delay collapse into one emission of the last payload, fired
// delay after the last call. A non-positive delay uses the bus default.
func (b *Bus) EmitDebounced(t topic.Topic, payload any, delay time.Duration) {
	if b.closed.Load() {
		return
	}
	if delay <= 0 {
		delay = b.config.debounceDelay
	}

	b.debounceMu.Lock()
	defer b.debounceMu.Unlock()

	e := b.debounced[t]
	if e == nil {
		e = &debounceEntry{}
		b.debounced[t] = e
	} else if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	e.payload = payload
	gen := e.gen
	e.timer = time.AfterFunc(delay, func() {
		b.fireDebounced(t, gen)
	})
}

// fireDebounced emits the pending payload for t if no later call
// superseded the timer that fired.
func (b *Bus) fireDebounced(t topic.Topic, gen uint64) {
	b.debounceMu.Lock()
	e := b.debounced[t]
	if e == nil || e.gen != gen {
		b.debounceMu.Unlock()
		return
	}
	delete(b.debounced, t)
	payload := e.payload
	b.debounceMu.Unlock()

	b.debouncedCount.Add(1)
	b.Emit(t, payload)
}

// PendingDebounced reports whether a debounced emission of t is scheduled.
func (b *Bus) PendingDebounced(t topic.Topic) bool {
	b.debounceMu.Lock()
	defer b.debounceMu.Unlock()

	_, ok := b.debounced[t]
	return ok
}

func (b *Bus) flushDebounced() {
	type pending struct {
		topic   topic.Topic
		payload any
	}

	b.debounceMu.Lock()
	due := make([]pending, 0, len(b.debounced))
	for t, e := range b.debounced {
		e.timer.Stop()
		due = append(due, pending{topic: t, payload: e.payload})
	}
	b.debounced = make(map[topic.Topic]*debounceEntry)
	b.debounceMu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].topic < due[j].topic })
	for _, p := range due {
		b.debouncedCount.Add(1)
		b.Emit(p.topic, p.payload)
	}
}

func (b *Bus) cancelDebounced() {
	b.debounceMu.Lock()
	defer b.debounceMu.Unlock()

	for _, e := range b.debounced {
		e.timer.Stop()
	}
	b.debounced = make(map[topic.Topic]*debounceEntry)
}
