package topic

import (
	"sort"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern Topic
		topic   Topic
		want    bool
	}{
		{"settings:changed", "settings:changed", true},
		{"settings:changed", "settings:saved", false},
		{"settings:*", "settings:changed", true},
		{"settings:*", "settings:saved", true},
		{"settings:*", "palette:applied", false},
		{"*:applied", "palette:applied", true},
		{"*:applied", "template:applied", true},
		{"*:applied", "template:applyFailed", false},
		{"ai:*", "ai:suggestion:received", true},
		{"*", "ai:suggestion:received", true},
		{"ai:suggestion", "ai:suggestion:received", false},
		{"ai:*:received", "ai:suggestion:received", true},
		{"ai:*:received", "ai:suggestion", false},
		{"settings:*", "settings", false},
		{"settings:changed:extra", "settings:changed", false},
		{"", "settings:changed", false},
	}

	for _, tt := range tests {
		if got := Match(tt.pattern, tt.topic); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}

func TestTopicIsValid(t *testing.T) {
	valid := []Topic{"settings", "settings:changed", "*", "settings:*"}
	invalid := []Topic{"", ":changed", "settings:", "settings::changed"}

	for _, tp := range valid {
		if !tp.IsValid() {
			t.Errorf("%q should be valid", tp)
		}
	}
	for _, tp := range invalid {
		if tp.IsValid() {
			t.Errorf("%q should be invalid", tp)
		}
	}
}

func TestTrieMatchAgreesWithMatch(t *testing.T) {
	patterns := []Topic{
		"settings:changed",
		"settings:*",
		"*:applied",
		"ai:*",
		"*",
		"ai:suggestion",
		"ai:*:received",
	}
	topics := []Topic{
		"settings:changed",
		"palette:applied",
		"ai:suggestion:received",
		"ai:suggestion",
		"error:occurred",
		"settings",
	}

	trie := NewTrie()
	for _, p := range patterns {
		trie.Insert(p)
	}

	for _, tp := range topics {
		var want []string
		for _, p := range patterns {
			if Match(p, tp) {
				want = append(want, string(p))
			}
		}
		var got []string
		for _, p := range trie.Match(tp) {
			got = append(got, string(p))
		}
		sort.Strings(want)
		sort.Strings(got)
		if len(got) != len(want) {
			t.Fatalf("trie.Match(%q) = %v, want %v", tp, got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("trie.Match(%q) = %v, want %v", tp, got, want)
				break
			}
		}
	}
}

func TestTrieInsertDelete(t *testing.T) {
	trie := NewTrie()

	if !trie.Insert("settings:*") {
		t.Fatal("first insert should succeed")
	}
	if trie.Insert("settings:*") {
		t.Error("duplicate insert should return false")
	}
	if trie.Insert("") {
		t.Error("empty pattern should be rejected")
	}
	if got := trie.Match("settings:changed"); len(got) != 1 || got[0] != "settings:*" {
		t.Errorf("Match = %v, want [settings:*]", got)
	}

	if !trie.Delete("settings:*") {
		t.Error("Delete should succeed")
	}
	if trie.Delete("settings:*") {
		t.Error("second Delete should fail")
	}
	if len(trie.Match("settings:changed")) != 0 {
		t.Error("deleted pattern still matches")
	}
	if !trie.Insert("settings:*") {
		t.Error("a deleted pattern should insert again")
	}
}

func TestTrieClear(t *testing.T) {
	trie := NewTrie()
	trie.Insert("a:b")
	trie.Insert("a:*")
	trie.Clear()
	if got := trie.Match("a:b"); len(got) != 0 {
		t.Errorf("Match = %v after Clear", got)
	}
}
