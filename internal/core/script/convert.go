package script

// normalizeDynamic coerces arbitrary Go values into the shapes
// tengo.FromInterface understands: int64 numbers, string-keyed maps,
// []any slices. Component adapters produce these already; this keeps ad-hoc
// values (action contexts, content items) safe too.
func normalizeDynamic(v any) any {
	switch t := v.(type) {
	case nil, bool, int64, float64, string, []byte:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case uint:
		return int64(t)
	case float32:
		return float64(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeDynamic(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeDynamic(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	case []int64:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	default:
		return t
	}
}
