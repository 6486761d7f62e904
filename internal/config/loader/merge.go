package loader

// DeepMerge merges src into dst and returns dst, allocating it when nil.
// Nested maps merge key by key; any other src value, slices included,
// replaces the dst value as a deep copy so dst never aliases src.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for key, val := range src {
		if nested, ok := val.(map[string]any); ok {
			if into, ok := dst[key].(map[string]any); ok {
				dst[key] = DeepMerge(into, nested)
				continue
			}
		}
		dst[key] = cloneAny(val)
	}
	return dst
}

// Clone returns a deep copy of m.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return cloneAny(m).(map[string]any)
}

func cloneAny(val any) any {
	switch v := val.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneAny(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneAny(item)
		}
		return out
	default:
		return val
	}
}
