// Package normalize strips empty values from decoded actor results.
package normalize

// MaxDepth bounds recursion. Anything nested deeper is dropped.
const MaxDepth = 64

// Normalize removes nil and "" from maps and slices, recursively. Nested maps
// and slices that end up empty are removed from their parent. The input is not
// modified.
func Normalize(value any) any {
	v, _ := clean(value, 0)
	return v
}

// clean returns the cleaned value and whether it should be kept.
func clean(value any, depth int) (any, bool) {
	if depth > MaxDepth {
		return nil, false
	}
	switch t := value.(type) {
	case nil:
		return nil, false
	case string:
		return t, t != ""
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			if cv, keep := clean(v, depth+1); keep {
				out[k] = cv
			}
		}
		// top level map is kept even if empty
		return out, len(out) > 0 || depth == 0
	case []any:
		out := make([]any, 0, len(t))
		for _, v := range t {
			if cv, keep := clean(v, depth+1); keep {
				out = append(out, cv)
			}
		}
		return out, len(out) > 0 || depth == 0
	default:
		return value, true
	}
}
