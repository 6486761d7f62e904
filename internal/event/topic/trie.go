package topic

import "sync"

// Trie indexes topic patterns for matching against concrete topics.
// It is safe for concurrent use.
type Trie struct {
	mu   sync.RWMutex
	root *trieNode
}

type trieNode struct {
	children map[string]*trieNode
	patterns []Topic // patterns that terminate at this node
}

func newTrieNode() *trieNode {
	return &trieNode{
		children: make(map[string]*trieNode),
	}
}

func (n *trieNode) isEmpty() bool {
	return len(n.children) == 0 && len(n.patterns) == 0
}

// NewTrie creates an empty pattern trie.
func NewTrie() *Trie {
	return &Trie{
		root: newTrieNode(),
	}
}

// Insert adds a pattern. Returns false if it was already present or invalid.
func (t *Trie) Insert(pattern Topic) bool {
	if !pattern.IsValid() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == nil {
		t.root = newTrieNode()
	}

	node := t.root
	for _, seg := range pattern.Segments() {
		if node.children[seg] == nil {
			node.children[seg] = newTrieNode()
		}
		node = node.children[seg]
	}

	for _, p := range node.patterns {
		if p == pattern {
			return false
		}
	}
	node.patterns = append(node.patterns, pattern)
	return true
}

type pathEntry struct {
	node *trieNode
	key  string
}

// Delete removes a pattern and prunes empty nodes.
// Returns false if the pattern was not present.
func (t *Trie) Delete(pattern Topic) bool {
	if pattern == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == nil {
		return false
	}

	segments := pattern.Segments()
	path := make([]pathEntry, 0, len(segments)+1)
	path = append(path, pathEntry{node: t.root})

	node := t.root
	for _, seg := range segments {
		child := node.children[seg]
		if child == nil {
			return false
		}
		path = append(path, pathEntry{node: child, key: seg})
		node = child
	}

	found := false
	for i, p := range node.patterns {
		if p == pattern {
			node.patterns = append(node.patterns[:i], node.patterns[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return false
	}

	for i := len(path) - 1; i > 0; i-- {
		if !path[i].node.isEmpty() {
			break
		}
		delete(path[i-1].node.children, path[i].key)
	}
	return true
}

// Match returns every stored pattern that matches the concrete topic,
// without duplicates.
func (t *Trie) Match(eventTopic Topic) []Topic {
	if eventTopic == "" {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.root == nil {
		return nil
	}

	seen := make(map[Topic]struct{})
	var matches []Topic
	add := func(patterns []Topic) {
		for _, p := range patterns {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				matches = append(matches, p)
			}
		}
	}

	var walk func(node *trieNode, segments []string, depth int)
	walk = func(node *trieNode, segments []string, depth int) {
		if depth == len(segments) {
			add(node.patterns)
			return
		}
		if child := node.children[segments[depth]]; child != nil {
			walk(child, segments, depth+1)
		}
		if child := node.children[Wildcard]; child != nil {
			// A pattern ending in "*" absorbs any remaining segments.
			if depth+1 < len(segments) {
				add(child.patterns)
			}
			walk(child, segments, depth+1)
		}
	}
	walk(t.root, eventTopic.Segments(), 0)

	return matches
}

// Clear removes all patterns.
func (t *Trie) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.root = newTrieNode()
}
