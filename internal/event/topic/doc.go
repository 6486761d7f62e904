// Package topic provides colon-segmented topic names and pattern matching
// for the event bus.
//
// # Topic Format
//
// Topics name an event category followed by an action:
//
//	settings:changed
//	palette:applied
//	ai:suggestion:received
//
// # Wildcards
//
// A "*" segment in a pattern matches exactly one segment of the topic.
// A pattern never matches a topic with fewer segments. A pattern with fewer
// segments than the topic matches only when its last segment is "*", which
// then absorbs the remaining segments.
//
//	settings:*        matches settings:changed, settings:saved
//	*:applied         matches palette:applied, template:applied
//	ai:*              matches ai:suggestion:received (trailing "*")
//	ai:suggestion     does not match ai:suggestion:received
//
// # Pattern Matching
//
// Match compares a single pattern against a topic. Trie indexes many
// patterns and returns every pattern matching a topic in one walk.
//
//	t := topic.NewTrie()
//	t.Insert("settings:*")
//	t.Insert("settings:changed")
//
//	matches := t.Match("settings:changed")
//	// matches contains both patterns
package topic
