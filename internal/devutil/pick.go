package devutil

import (
	"encoding/json"
	"strings"
)

// pick round-trips v through JSON and keeps only the requested keys.
func pick(v any, keys ...string) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if val, ok := m[k]; ok {
			out[k] = val
		}
	}
	return out
}

func Pick(v any, keys ...string) map[string]any {
	return pick(v, keys...)
}

// PickAll applies Pick to each element of items. With no keys the items are
// returned unchanged.
func PickAll[T any](items []T, keys ...string) []any {
	out := make([]any, len(items))
	for i, it := range items {
		if len(keys) == 0 {
			out[i] = it
			continue
		}
		out[i] = pick(it, keys...)
	}
	return out
}

// ParseFields splits a --fields value like "id, title,tags" into keys.
func ParseFields(s string) []string {
	var keys []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			keys = append(keys, f)
		}
	}
	return keys
}
