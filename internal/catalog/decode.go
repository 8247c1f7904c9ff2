package catalog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// decodePayload turns raw bodies into decoded JSON values. Bodies that are not
// JSON come back as text so the TSV strategy can look at them.
func decodePayload(p any) any {
	switch v := p.(type) {
	case json.RawMessage:
		return decodeText(string(v))
	case []byte:
		return decodeText(string(v))
	case string:
		return decodeText(v)
	}
	return p
}

func decodeText(s string) any {
	t := strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	if t == "" {
		return s
	}
	if inner, ok := unwrapJSONP(t); ok {
		t = inner
	}
	if t[0] != '{' && t[0] != '[' {
		return s
	}
	dec := json.NewDecoder(strings.NewReader(t))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return s
	}
	return v
}

// unwrapJSONP strips the google.visualization.Query.setResponse(...) wrapper
// that published sheets return from the gviz endpoint.
func unwrapJSONP(s string) (string, bool) {
	i := strings.Index(s, "setResponse(")
	if i < 0 {
		return "", false
	}
	j := strings.LastIndex(s, ")")
	start := i + len("setResponse(")
	if j <= start {
		return "", false
	}
	return strings.TrimSpace(s[start:j]), true
}

func asArray(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out, true
	case []map[string]string:
		out := make([]any, len(t))
		for i := range t {
			m := make(map[string]any, len(t[i]))
			for k, s := range t[i] {
				m[k] = s
			}
			out[i] = m
		}
		return out, true
	case []string:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out, true
	}
	return nil, false
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

// cellString renders a decoded JSON cell as trimmed text. Nested objects and
// arrays carry nothing a tool field can use and render empty.
func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func stringsOf(v any) ([]string, bool) {
	arr, ok := asArray(v)
	if !ok {
		return nil, false
	}
	out := make([]string, len(arr))
	for i, h := range arr {
		out[i] = cellString(h)
	}
	return out, true
}

// zipRow pairs a positional row with its headers. Blank headers are dropped.
func zipRow(headers []string, cells []any) map[string]any {
	row := make(map[string]any, len(headers))
	for i, h := range headers {
		if h == "" || i >= len(cells) {
			continue
		}
		row[h] = cells[i]
	}
	return row
}
