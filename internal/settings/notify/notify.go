// Package notify delivers synchronous, path-scoped change notifications
// for the settings tree.
//
// Unlike the event bus, observers here run inside the mutation that caused
// them, in subscription order, and receive structured Change values. The
// collaboration bridge uses this to see every local write exactly once.
package notify

import (
	"runtime/debug"
	"sort"
	"sync"

	"github.com/golang/glog"
)

// ChangeType represents the type of settings change.
type ChangeType int

const (
	// ChangeSet indicates a value was set or updated at Path.
	ChangeSet ChangeType = iota

	// ChangeDelete indicates the value at Path was removed.
	ChangeDelete

	// ChangeReplace indicates the whole tree was replaced (undo, redo,
	// reset, load, bulk update, template apply).
	ChangeReplace
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeSet:
		return "set"
	case ChangeDelete:
		return "delete"
	case ChangeReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Well-known change sources.
const (
	SourceLocal   = "local"
	SourceRemote  = "remote"
	SourceHistory = "history"
	SourceReset   = "reset"
	SourceServer  = "server"
	SourceApply   = "apply"
)

// Change describes a settings mutation.
type Change struct {
	// Path is the dotted path of the changed setting. Empty for ChangeReplace.
	Path string

	// Type is the type of change.
	Type ChangeType

	// OldValue is the previous value (may be nil).
	OldValue any

	// NewValue is the new value (nil for deletes).
	NewValue any

	// Source identifies where the change came from.
	Source string
}

// Observer is called for each matching change.
type Observer func(change Change)

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	notifier *Notifier
}

// Unsubscribe removes this subscription.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

type registration struct {
	id       uint64
	path     string // empty for global observers
	observer Observer
}

// Notifier manages change subscriptions.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[uint64]registration
	nextID uint64
}

// New creates a Notifier.
func New() *Notifier {
	return &Notifier{
		subs: make(map[uint64]registration),
	}
}

// Subscribe registers an observer for all changes.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	return n.add("", observer)
}

// SubscribePath registers an observer for changes at path or below it,
// and for whole-tree replacements. Subscribing to "admin_bar" receives
// changes to "admin_bar.bg_color".
func (n *Notifier) SubscribePath(path string, observer Observer) *Subscription {
	return n.add(path, observer)
}

func (n *Notifier) add(path string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs[id] = registration{id: id, path: path, observer: observer}
	return &Subscription{id: id, notifier: n}
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.subs, id)
}

// Len returns the number of subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Notify delivers change to every matching observer in subscription order.
// A panicking observer is logged and skipped.
func (n *Notifier) Notify(change Change) {
	n.mu.RLock()
	matched := make([]registration, 0, len(n.subs))
	for _, reg := range n.subs {
		if reg.path == "" || change.Type == ChangeReplace || isWithin(reg.path, change.Path) {
			matched = append(matched, reg)
		}
	}
	n.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].id < matched[j].id })
	for _, reg := range matched {
		deliver(reg, change)
	}
}

func deliver(reg registration, change Change) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("notify: observer %d panicked on %s %q: %v\n%s", reg.id, change.Type, change.Path, r, debug.Stack())
		}
	}()
	reg.observer(change)
}

// NotifySet is a convenience method for set changes.
func (n *Notifier) NotifySet(path string, oldValue, newValue any, source string) {
	n.Notify(Change{
		Path:     path,
		Type:     ChangeSet,
		OldValue: oldValue,
		NewValue: newValue,
		Source:   source,
	})
}

// NotifyDelete is a convenience method for delete changes.
func (n *Notifier) NotifyDelete(path string, oldValue any, source string) {
	n.Notify(Change{
		Path:     path,
		Type:     ChangeDelete,
		OldValue: oldValue,
		Source:   source,
	})
}

// NotifyReplace is a convenience method for whole-tree replacements.
func (n *Notifier) NotifyReplace(source string) {
	n.Notify(Change{
		Type:   ChangeReplace,
		Source: source,
	})
}

// isWithin reports whether path equals scope or lies below it.
func isWithin(scope, path string) bool {
	if path == scope {
		return true
	}
	return len(path) > len(scope) && path[:len(scope)] == scope && path[len(scope)] == '.'
}
