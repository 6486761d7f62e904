package client

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/golang/glog"
)

// Task is the work performed for a queued call. The context is the
// queue's own and ends only when the queue is closed.
type Task func(ctx context.Context) (json.RawMessage, error)

// Call is the shared handle for a queued operation. Every caller that
// enqueues the same key while the call is pending receives the same Call.
type Call struct {
	key    string
	done   chan struct{}
	result json.RawMessage
	err    error
	once   sync.Once
}

func newCall(key string) *Call {
	return &Call{key: key, done: make(chan struct{})}
}

// settledCall returns a call that has already failed with err.
func settledCall(key string, err error) *Call {
	c := newCall(key)
	c.settle(nil, err)
	return c
}

// Key returns the deduplication key.
func (c *Call) Key() string {
	return c.key
}

// Done is closed when the call settles.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call settles or ctx ends. Ending ctx abandons the
// wait; the call itself keeps its place in the queue.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome of a settled call. It must only be called
// after Done is closed.
func (c *Call) Result() (json.RawMessage, error) {
	<-c.done
	return c.result, c.err
}

func (c *Call) settle(result json.RawMessage, err error) {
	c.once.Do(func() {
		c.result = result
		c.err = err
		close(c.done)
	})
}

type queuedTask struct {
	call *Call
	task Task
}

// Queue runs mutating tasks strictly one at a time in FIFO order,
// collapsing tasks that share a key while one is queued or in flight.
type Queue struct {
	mu      sync.Mutex
	pending []queuedTask
	byKey   map[string]*Call
	closed  bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onDepth func(int)
}

// NewQueue creates a queue and starts its worker.
func NewQueue() *Queue {
	return newQueue(nil)
}

func newQueue(onDepth func(int)) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		byKey:   make(map[string]*Call),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		onDepth: onDepth,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue schedules task under key. An empty key disables deduplication.
func (q *Queue) Enqueue(key string, task Task) *Call {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return settledCall(key, ErrQueueClosed)
	}
	if key != "" {
		if existing, ok := q.byKey[key]; ok {
			q.mu.Unlock()
			glog.V(2).Infof("client: queue: joined pending call %q", key)
			return existing
		}
	}

	call := newCall(key)
	if key != "" {
		q.byKey[key] = call
	}
	q.pending = append(q.pending, queuedTask{call: call, task: task})
	depth := len(q.pending)
	q.mu.Unlock()

	q.reportDepth(depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return call
}

// Len returns the number of calls waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Clear rejects every call that has not started with ErrQueueCleared.
// A call already in flight completes normally.
func (q *Queue) Clear() {
	q.rejectPending(ErrQueueCleared)
}

// Close rejects pending calls with ErrQueueClosed, cancels the context of
// the in-flight task, and waits for the worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.rejectPending(ErrQueueClosed)
	q.cancel()
	q.wg.Wait()
}

func (q *Queue) rejectPending(err error) {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	for _, item := range pending {
		if item.call.key != "" && q.byKey[item.call.key] == item.call {
			delete(q.byKey, item.call.key)
		}
	}
	q.mu.Unlock()

	if len(pending) > 0 {
		q.reportDepth(0)
	}
	for _, item := range pending {
		item.call.settle(nil, err)
	}
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		item, ok := q.pop()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-q.ctx.Done():
				return
			}
		}

		result, err := q.execute(item.task)

		q.mu.Lock()
		if item.call.key != "" && q.byKey[item.call.key] == item.call {
			delete(q.byKey, item.call.key)
		}
		q.mu.Unlock()

		item.call.settle(result, err)
	}
}

func (q *Queue) pop() (queuedTask, bool) {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return queuedTask{}, false
	}
	item := q.pending[0]
	q.pending[0] = queuedTask{}
	q.pending = q.pending[1:]
	depth := len(q.pending)
	q.mu.Unlock()

	q.reportDepth(depth)
	return item, true
}

func (q *Queue) execute(task Task) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("client: queued task panicked: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("queued task panicked: %v", r)
		}
	}()
	return task(q.ctx)
}

func (q *Queue) reportDepth(n int) {
	if q.onDepth != nil {
		q.onDepth(n)
	}
}
