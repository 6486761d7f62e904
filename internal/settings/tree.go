package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// Tree is an immutable JSON object holding the settings. Every mutating
// method returns a new Tree and leaves the receiver untouched.
type Tree struct {
	raw []byte
}

// ParseTree validates data as a JSON object and returns it as a Tree.
func ParseTree(data []byte) (Tree, error) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return Tree{}, ErrMalformedTree
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return Tree{raw: raw}, nil
}

// NewTree marshals v and returns it as a Tree.
func NewTree(v any) (Tree, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Tree{}, fmt.Errorf("marshal settings: %w", err)
	}
	return ParseTree(data)
}

// IsZero reports whether the tree holds no document.
func (t Tree) IsZero() bool {
	return len(t.raw) == 0
}

// Get returns the value at a dotted path.
func (t Tree) Get(path string) gjson.Result {
	if path == "" {
		return gjson.ParseBytes(t.raw)
	}
	return gjson.GetBytes(t.raw, escapePath(path))
}

// Has reports whether a value exists at path.
func (t Tree) Has(path string) bool {
	return t.Get(path).Exists()
}

// Set returns a copy of the tree with value written at path. Intermediate
// objects are created as needed.
func (t Tree) Set(path string, value any) (Tree, error) {
	if err := validatePath(path); err != nil {
		return t, err
	}
	return t.set(path, escapePath(path), value)
}

func (t Tree) set(path, escaped string, value any) (Tree, error) {
	var raw []byte
	var err error
	if r, ok := value.(gjson.Result); ok {
		raw, err = sjson.SetRawBytes(t.bytesOrEmpty(), escaped, []byte(r.Raw))
	} else {
		raw, err = sjson.SetBytes(t.bytesOrEmpty(), escaped, value)
	}
	if err != nil {
		return t, fmt.Errorf("set %q: %w", path, err)
	}
	return Tree{raw: raw}, nil
}

// SetRaw returns a copy of the tree with raw JSON written at path.
func (t Tree) SetRaw(path string, value []byte) (Tree, error) {
	if err := validatePath(path); err != nil {
		return t, err
	}
	if !gjson.ValidBytes(value) {
		return t, fmt.Errorf("set %q: invalid JSON value", path)
	}
	raw, err := sjson.SetRawBytes(t.bytesOrEmpty(), escapePath(path), value)
	if err != nil {
		return t, fmt.Errorf("set %q: %w", path, err)
	}
	return Tree{raw: raw}, nil
}

// Delete returns a copy of the tree without the value at path.
func (t Tree) Delete(path string) (Tree, error) {
	if err := validatePath(path); err != nil {
		return t, err
	}
	raw, err := sjson.DeleteBytes(t.bytesOrEmpty(), escapePath(path))
	if err != nil {
		return t, fmt.Errorf("delete %q: %w", path, err)
	}
	return Tree{raw: raw}, nil
}

// Merge returns a copy of the tree with each top-level key of updates
// replaced. Keys are applied in sorted order.
func (t Tree) Merge(updates map[string]any) (Tree, error) {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := t
	for _, k := range keys {
		if k == "" {
			return t, fmt.Errorf("%w: empty key", ErrInvalidPath)
		}
		var err error
		if out, err = out.set(k, escapeKey(k), updates[k]); err != nil {
			return t, err
		}
	}
	return out, nil
}

// Bytes returns a copy of the JSON document.
func (t Tree) Bytes() []byte {
	out := make([]byte, len(t.raw))
	copy(out, t.raw)
	return out
}

// Pretty returns the document indented for display.
func (t Tree) Pretty() []byte {
	return pretty.Pretty(t.bytesOrEmpty())
}

// Color returns the indented document with terminal colors.
func (t Tree) Color() []byte {
	return pretty.Color(t.Pretty(), nil)
}

// Map decodes the document into nested maps.
func (t Tree) Map() map[string]any {
	m := make(map[string]any)
	if len(t.raw) > 0 {
		// ParseTree and sjson guarantee a valid object.
		_ = json.Unmarshal(t.raw, &m)
	}
	return m
}

// Equal reports whether both trees hold the same values, ignoring key
// order and formatting.
func (t Tree) Equal(other Tree) bool {
	if bytes.Equal(t.raw, other.raw) {
		return true
	}
	return reflect.DeepEqual(t.Map(), other.Map())
}

// MarshalJSON implements json.Marshaler.
func (t Tree) MarshalJSON() ([]byte, error) {
	return t.bytesOrEmpty(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tree) UnmarshalJSON(data []byte) error {
	parsed, err := ParseTree(data)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// String returns the compact JSON document.
func (t Tree) String() string {
	return string(t.bytesOrEmpty())
}

func (t Tree) bytesOrEmpty() []byte {
	if len(t.raw) == 0 {
		return []byte("{}")
	}
	return t.raw
}

func validatePath(path string) error {
	if path == "" || strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") || strings.Contains(path, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}

// escapePath escapes gjson/sjson metacharacters in each path component
// while keeping "." as the separator. Components are plain keys.
func escapePath(path string) string {
	if !strings.ContainsAny(path, `*?|#@\!=<>%`) {
		return path
	}
	parts := strings.Split(path, ".")
	for i, p := range parts {
		parts[i] = escapeKey(p)
	}
	return strings.Join(parts, ".")
}

// escapeKey escapes a single key so it is never treated as a path
// expression.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
