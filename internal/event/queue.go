package event

import (
	"sync"
	"time"

	"github.com/dshills/stylesync/internal/event/topic"
)

type queuedEmit struct {
	topic   topic.Topic
	payload any
}

// emitQueue buffers EmitQueued calls and dispatches them in batches from a
// single worker goroutine. The worker runs only while the queue is non-empty.
type emitQueue struct {
	bus *Bus

	mu      sync.Mutex
	items   []queuedEmit
	running bool
	stop    chan struct{}
	once    sync.Once
}

func newEmitQueue(b *Bus) *emitQueue {
	return &emitQueue{
		bus:  b,
		stop: make(chan struct{}),
	}
}

// EmitQueued appends an emission to the batch queue. Queued emissions are
// delivered in FIFO order, at most the configured batch size per tick.
func (b *Bus) EmitQueued(t topic.Topic, payload any) {
	if b.closed.Load() {
		return
	}
	b.queuedCount.Add(1)
	b.queue.push(queuedEmit{topic: t, payload: payload})
}

func (q *emitQueue) push(item queuedEmit) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	if !q.running {
		q.running = true
		go q.run()
	}
}

func (q *emitQueue) run() {
	ticker := time.NewTicker(q.bus.config.queueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			batch, more := q.next(q.bus.config.queueBatchSize)
			for _, item := range batch {
				q.bus.Emit(item.topic, item.payload)
			}
			if !more {
				return
			}
		}
	}
}

// next pops up to n items. more is false when the queue is empty afterwards,
// in which case the worker is marked stopped under the same lock.
func (q *emitQueue) next(n int) (batch []queuedEmit, more bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.items) {
		n = len(q.items)
	}
	batch = append(batch, q.items[:n]...)
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
		q.running = false
		return batch, false
	}
	return batch, true
}

func (q *emitQueue) drain() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, item := range items {
		q.bus.Emit(item.topic, item.payload)
	}
}

func (q *emitQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
}

func (q *emitQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

func (q *emitQueue) close() {
	q.once.Do(func() { close(q.stop) })
}
