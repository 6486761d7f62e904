// Package history keeps bounded undo/redo stacks of immutable snapshots.
package history

import (
	"errors"
	"sync"
)

// DefaultLimit is the past-stack capacity used when none is given.
const DefaultLimit = 50

// Common errors for history operations.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// History holds the snapshots taken before each mutation (past) and the
// snapshots displaced by undo (future).
type History[T any] struct {
	mu sync.Mutex

	past   []T
	future []T

	limit int
}

// New creates a history with the given past-stack limit.
func New[T any](limit int) *History[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History[T]{limit: limit}
}

// Push records the snapshot taken immediately before a new mutation.
// Clears the future stack and drops the oldest entries beyond the limit.
func (h *History[T]) Push(snapshot T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.past = append(h.past, snapshot)
	h.future = nil
	if excess := len(h.past) - h.limit; excess > 0 {
		h.past = h.past[excess:]
	}
}

// Undo moves current onto the future stack and returns the most recent
// past snapshot.
func (h *History[T]) Undo(current T) (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev, ok := pop(&h.past)
	if !ok {
		return prev, ErrNothingToUndo
	}
	h.future = append(h.future, current)
	return prev, nil
}

// Redo moves current onto the past stack and returns the most recent
// future snapshot.
func (h *History[T]) Redo(current T) (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, ok := pop(&h.future)
	if !ok {
		return next, ErrNothingToRedo
	}
	h.past = append(h.past, current)
	return next, nil
}

func pop[T any](stack *[]T) (T, bool) {
	var zero T
	n := len(*stack)
	if n == 0 {
		return zero, false
	}
	top := (*stack)[n-1]
	(*stack)[n-1] = zero
	*stack = (*stack)[:n-1]
	return top, true
}

// CanUndo returns true if undo is available.
func (h *History[T]) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0
}

// CanRedo returns true if redo is available.
func (h *History[T]) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// PastLen returns the number of undoable snapshots.
func (h *History[T]) PastLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past)
}
