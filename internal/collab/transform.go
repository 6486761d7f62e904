package collab

import (
	"strings"
	"sync"
)

// Transform resolves incoming against a local operation that has not been
// acknowledged yet. It returns the operation to apply in place of incoming
// and reports whether the local operation won the conflict.
func Transform(local, incoming Operation) (Operation, bool) {
	switch {
	case local.Path == incoming.Path:
		return transformSamePath(local, incoming)
	case isParentPath(local.Path, incoming.Path):
		return transformChild(local, incoming)
	default:
		// Unrelated paths, or incoming is the parent: incoming applies as is.
		return incoming, false
	}
}

func transformSamePath(local, incoming Operation) (Operation, bool) {
	switch {
	case local.Type == OpSet && incoming.Type == OpSet:
		if local.Timestamp < incoming.Timestamp {
			return incoming, false
		}
		out := incoming
		out.Value = local.Value
		return out, true
	case local.Type == OpSet && incoming.Type == OpDelete:
		out := incoming
		out.Type = OpSet
		out.Value = local.Value
		out.OldValue = nil
		return out, true
	default:
		return incoming, false
	}
}

func transformChild(parent, child Operation) (Operation, bool) {
	if parent.Type != OpDelete {
		return child, false
	}
	out := child
	out.Type = OpSet
	out.Value = nil
	return out, true
}

// isParentPath reports whether parent is a strict ancestor of path.
func isParentPath(parent, path string) bool {
	return strings.HasPrefix(path, parent+".")
}

// pathsConflict reports whether two paths are equal or nested.
func pathsConflict(a, b string) bool {
	return a == b || isParentPath(a, b) || isParentPath(b, a)
}

const (
	defaultMaxPending = 100
	maxAcknowledged   = 100
)

// Engine tracks local operations awaiting acknowledgement and transforms
// incoming operations against them. It is safe for concurrent use.
type Engine struct {
	mu           sync.Mutex
	pending      []Operation
	acknowledged []Operation
	maxPending   int
}

// NewEngine creates an engine keeping at most maxPending unacknowledged
// operations; the oldest is dropped beyond that. Zero uses the default.
func NewEngine(maxPending int) *Engine {
	if maxPending <= 0 {
		maxPending = defaultMaxPending
	}
	return &Engine{maxPending: maxPending}
}

// AddPending records a local operation.
func (e *Engine) AddPending(op Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = append(e.pending, op)
	if over := len(e.pending) - e.maxPending; over > 0 {
		e.pending = append([]Operation(nil), e.pending[over:]...)
	}
}

// Remove drops a pending operation without acknowledging it.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexLocked(id)
	if i < 0 {
		return false
	}
	e.pending = append(e.pending[:i], e.pending[i+1:]...)
	return true
}

// Acknowledge moves the pending operation with id into the acknowledged
// history. It returns false for an unknown id.
func (e *Engine) Acknowledge(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexLocked(id)
	if i < 0 {
		return false
	}
	op := e.pending[i]
	e.pending = append(e.pending[:i], e.pending[i+1:]...)
	e.acknowledged = append(e.acknowledged, op)
	if len(e.acknowledged) > maxAcknowledged {
		e.acknowledged = e.acknowledged[1:]
	}
	return true
}

func (e *Engine) indexLocked(id string) int {
	for i, op := range e.pending {
		if op.ID == id {
			return i
		}
	}
	return -1
}

// TransformIncoming transforms incoming against every pending operation in
// order. The returned winner is the last local operation that overrode
// incoming, if any.
func (e *Engine) TransformIncoming(incoming Operation) (out Operation, winner *Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out = incoming
	for i := range e.pending {
		local := e.pending[i]
		if !pathsConflict(local.Path, out.Path) {
			continue
		}
		var won bool
		out, won = Transform(local, out)
		if won {
			winner = &local
		}
	}
	return out, winner
}

// PendingCount returns the number of unacknowledged operations.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Pending returns a copy of the unacknowledged operations, oldest first.
func (e *Engine) Pending() []Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Operation(nil), e.pending...)
}

// ClearPending drops every unacknowledged operation.
func (e *Engine) ClearPending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
}

// History returns the most recently acknowledged operations, oldest first.
func (e *Engine) History() []Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Operation(nil), e.acknowledged...)
}
