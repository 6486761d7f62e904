package settings

import (
	"reflect"
	"sort"

	"github.com/dshills/stylesync/internal/config/loader"
)

// Normalize fills every path missing from t with its default value, so the
// result always has the full default shape. Values present in t win.
func Normalize(t Tree) (Tree, error) {
	merged := loader.DeepMerge(DefaultTree().Map(), t.Map())
	return NewTree(merged)
}

// FlattenMap flattens nested objects into dotted-path keys. Arrays are
// leaves.
func FlattenMap(data map[string]any) map[string]any {
	result := make(map[string]any)
	flatten(data, "", result)
	return result
}

func flatten(data map[string]any, prefix string, result map[string]any) {
	for key, val := range data {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok && len(nested) > 0 {
			flatten(nested, full, result)
			continue
		}
		result[full] = val
	}
}

// PathChange is a single leaf difference between two trees.
type PathChange struct {
	Path     string
	OldValue any
	NewValue any
	Deleted  bool
}

// Diff returns the leaf paths that differ between old and new, sorted by
// path.
func Diff(old, new Tree) []PathChange {
	oldFlat := FlattenMap(old.Map())
	newFlat := FlattenMap(new.Map())

	var changes []PathChange
	for path, newVal := range newFlat {
		oldVal, exists := oldFlat[path]
		if exists && reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		changes = append(changes, PathChange{Path: path, OldValue: oldVal, NewValue: newVal})
	}
	for path, oldVal := range oldFlat {
		if _, exists := newFlat[path]; !exists {
			changes = append(changes, PathChange{Path: path, OldValue: oldVal, Deleted: true})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}
