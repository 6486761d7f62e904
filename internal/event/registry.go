package event

import (
	"sort"
	"sync"

	"github.com/dshills/stylesync/internal/event/topic"
)

// Registry manages subscriptions organized by topic pattern.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	subs map[topic.Topic][]*subscription
	byID map[string]*subscription
	trie *topic.Trie
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[topic.Topic][]*subscription),
		byID: make(map[string]*subscription),
		trie: topic.NewTrie(),
	}
}

// Add registers a subscription.
func (r *Registry) Add(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs[sub.pattern] = append(r.subs[sub.pattern], sub)
	r.byID[sub.id] = sub
	r.trie.Insert(sub.pattern)
}

// Remove removes a subscription by ID.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(id)
}

func (r *Registry) removeLocked(id string) bool {
	sub, ok := r.byID[id]
	if !ok {
		return false
	}
	sub.cancelled.Store(true)

	subs := r.subs[sub.pattern]
	for i, s := range subs {
		if s.id == id {
			r.subs[sub.pattern] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(r.subs[sub.pattern]) == 0 {
		delete(r.subs, sub.pattern)
		r.trie.Delete(sub.pattern)
	}
	delete(r.byID, id)
	return true
}

// RemovePattern removes every subscription registered with pattern.
func (r *Registry) RemovePattern(pattern topic.Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subs[pattern]
	ids := make([]string, len(subs))
	for i, s := range subs {
		ids[i] = s.id
	}
	removed := 0
	for _, id := range ids {
		if r.removeLocked(id) {
			removed++
		}
	}
	return removed
}

// Match returns the active subscriptions matching eventTopic, in
// registration order across all matching patterns. The slice is a snapshot.
func (r *Registry) Match(eventTopic topic.Topic) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	patterns := r.trie.Match(eventTopic)
	if len(patterns) == 0 {
		return nil
	}

	var all []*subscription
	for _, p := range patterns {
		for _, s := range r.subs[p] {
			if s.Active() {
				all = append(all, s)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].seq < all[j].seq
	})
	return all
}

// Count returns the number of subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}

// CountByTopic returns the number of subscriptions registered with pattern.
func (r *Registry) CountByTopic(pattern topic.Topic) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs[pattern])
}

// Topics returns every registered pattern, sorted.
func (r *Registry) Topics() []topic.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]topic.Topic, 0, len(r.subs))
	for t := range r.subs {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
	return topics
}

// Clear removes all subscriptions.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.byID {
		sub.cancelled.Store(true)
	}
	r.subs = make(map[topic.Topic][]*subscription)
	r.byID = make(map[string]*subscription)
	r.trie.Clear()
}
