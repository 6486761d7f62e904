// Package cache provides a size-bounded read-through cache keyed by dotted
// setting paths with least-frequently-used eviction.
package cache

import (
	"sort"
	"strings"
	"sync"
)

// DefaultSize is the capacity used when none is given.
const DefaultSize = 100

type entry[V any] struct {
	value V
	hits  uint64
	seq   uint64
}

// Cache maps dotted paths to values. It is safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	maxSize int
	seq     uint64

	hits      uint64
	misses    uint64
	evictions uint64
}

// EntryStats describes a single cached path.
type EntryStats struct {
	Key  string
	Hits uint64
}

// Stats is a snapshot of cache state.
type Stats struct {
	Size      int
	MaxSize   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   []EntryStats
}

// New creates a cache holding at most maxSize entries.
func New[V any](maxSize int) *Cache[V] {
	if maxSize <= 0 {
		maxSize = DefaultSize
	}
	return &Cache[V]{
		entries: make(map[string]*entry[V]),
		maxSize: maxSize,
	}
}

// Get returns the cached value for key and counts a hit.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	e.hits++
	c.hits++
	return e.value, true
}

// Set stores value under key with a hit count of zero. When the cache is
// full and key is new, the entry with the fewest hits is evicted first;
// ties go to the oldest insertion.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.hits = 0
		e.seq = c.seq
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[key] = &entry[V]{value: value, seq: c.seq}
}

func (c *Cache[V]) evictLocked() {
	var victim string
	var min *entry[V]
	for k, e := range c.entries {
		if min == nil || e.hits < min.hits || (e.hits == min.hits && e.seq < min.seq) {
			victim, min = k, e
		}
	}
	if min != nil {
		delete(c.entries, victim)
		c.evictions++
	}
}

// InvalidatePath removes path, every ancestor prefix of path including the
// whole-tree key "", and every descendant of path. An empty path clears the
// cache. Returns the number of entries removed.
//
// Example: "admin_bar.bg_color" removes "admin_bar.bg_color", "admin_bar",
// "" and any "admin_bar.bg_color.*" entries.
func (c *Cache[V]) InvalidatePath(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if path == "" {
		removed := len(c.entries)
		c.entries = make(map[string]*entry[V])
		return removed
	}

	removed := 0
	for _, key := range append([]string{"", path}, Ancestors(path)...) {
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			removed++
		}
	}

	prefix := path + "."
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Ancestors returns the proper ancestor prefixes of a dotted path, nearest
// last. "a.b.c" yields ["a", "a.b"].
func Ancestors(path string) []string {
	var out []string
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[:i])
		}
	}
	return out
}

// Clear removes every entry. Counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry[V])
}

// Len returns the number of entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Has reports whether key is cached without counting a hit.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Stats returns a snapshot of the cache, entries sorted by key.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]EntryStats, 0, len(c.entries))
	for k, e := range c.entries {
		entries = append(entries, EntryStats{Key: k, Hits: e.hits})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	return Stats{
		Size:      len(c.entries),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   entries,
	}
}
