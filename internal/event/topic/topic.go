package topic

import "strings"

// Topic is a colon-delimited event name such as "settings:changed".
type Topic string

const (
	// Wildcard matches exactly one segment, or every remaining segment
	// when it is the last segment of a shorter pattern.
	Wildcard = "*"

	// Separator separates topic segments.
	Separator = ":"
)

// String returns the topic as a string.
func (t Topic) String() string {
	return string(t)
}

// Segments returns the topic split by the separator.
func (t Topic) Segments() []string {
	if t == "" {
		return nil
	}
	return strings.Split(string(t), Separator)
}

// IsValid returns true if the topic is non-empty and has no empty segments.
func (t Topic) IsValid() bool {
	if t == "" {
		return false
	}
	for _, seg := range t.Segments() {
		if seg == "" {
			return false
		}
	}
	return true
}

// Match reports whether pattern matches the concrete topic t.
func Match(pattern, t Topic) bool {
	if pattern == t {
		return true
	}
	return matchSegments(pattern.Segments(), t.Segments())
}

func matchSegments(pattern, topic []string) bool {
	if len(pattern) == 0 || len(pattern) > len(topic) {
		return false
	}
	for i, seg := range pattern {
		if seg != Wildcard && seg != topic[i] {
			return false
		}
	}
	if len(pattern) < len(topic) {
		return pattern[len(pattern)-1] == Wildcard
	}
	return true
}
