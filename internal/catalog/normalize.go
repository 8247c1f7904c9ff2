package catalog

import (
	"strings"

	"course-workbench/internal/domain"
)

// strategy extracts tool records from one payload shape. It returns nil when
// the shape does not match.
type strategy struct {
	name    string
	extract func(payload any) []domain.ToolRecord
}

// strategies are tried in order; the first one producing at least one
// well-formed record wins. Supporting a new shape means appending here.
var strategies = []strategy{
	{name: "array", extract: extractArray},
	{name: "wrapped", extract: extractWrapped},
	{name: "visualization", extract: extractVisualization},
	{name: "tsv", extract: extractTSV},
}

// Normalize parses an arbitrary catalog payload into canonical tool records.
// It never panics and returns an empty, non-nil slice for shapes it does not
// recognize. The result depends only on the payload.
func Normalize(payload any) []domain.ToolRecord {
	tools, _ := normalize(payload)
	return tools
}

// normalize also reports which strategy matched, for logging.
func normalize(payload any) ([]domain.ToolRecord, string) {
	p := decodePayload(payload)
	for _, s := range strategies {
		if tools := s.extract(p); len(tools) > 0 {
			return tools, s.name
		}
	}
	return []domain.ToolRecord{}, ""
}

// extractArray handles a top-level array of row objects.
func extractArray(p any) []domain.ToolRecord {
	arr, ok := asArray(p)
	if !ok {
		return nil
	}
	return toRecords(objectRows(arr, nil))
}

// extractWrapped handles {items|tools|data|rows: [...]}, including the
// {headers:[...], rows:[[...]]} pairing and a data object that carries its
// own headers and rows.
func extractWrapped(p any) []domain.ToolRecord {
	obj, ok := asObject(p)
	if !ok {
		return nil
	}
	for _, key := range []string{"items", "tools", "data", "rows"} {
		v, present := obj[key]
		if !present {
			continue
		}
		var tools []domain.ToolRecord
		if arr, ok := asArray(v); ok {
			var headers []string
			if key == "rows" {
				headers, _ = stringsOf(obj["headers"])
			}
			tools = toRecords(objectRows(arr, headers))
		} else if inner, ok := asObject(v); ok && key == "data" {
			tools = extractHeaderRows(inner)
		}
		if len(tools) > 0 {
			return tools
		}
	}
	return nil
}

func extractHeaderRows(obj map[string]any) []domain.ToolRecord {
	headers, ok := stringsOf(obj["headers"])
	if !ok {
		return nil
	}
	arr, ok := asArray(obj["rows"])
	if !ok {
		return nil
	}
	return toRecords(objectRows(arr, headers))
}

// extractVisualization handles the Google Visualization {table:{cols,rows}} shape.
func extractVisualization(p any) []domain.ToolRecord {
	obj, ok := asObject(p)
	if !ok {
		return nil
	}
	table, ok := asObject(obj["table"])
	if !ok {
		return nil
	}
	cols, ok := asArray(table["cols"])
	if !ok {
		return nil
	}
	rawRows, ok := asArray(table["rows"])
	if !ok {
		return nil
	}

	headers := make([]string, len(cols))
	for i, c := range cols {
		col, _ := asObject(c)
		h := cellString(col["label"])
		if h == "" {
			h = cellString(col["id"])
		}
		headers[i] = h
	}

	rows := make([]map[string]any, 0, len(rawRows))
	for _, rr := range rawRows {
		r, ok := asObject(rr)
		if !ok {
			continue
		}
		cells, _ := asArray(r["c"])
		values := make([]any, len(cells))
		for i, c := range cells {
			cell, ok := asObject(c)
			if !ok {
				continue
			}
			v := cell["v"]
			if cellString(v) == "" {
				v = cell["f"]
			}
			values[i] = v
		}
		rows = append(rows, zipRow(headers, values))
	}
	return toRecords(rows)
}

// extractTSV handles tab-separated text whose first non-blank line is the header.
func extractTSV(p any) []domain.ToolRecord {
	text, ok := p.(string)
	if !ok || !strings.Contains(text, "\t") {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var headers []string
	rows := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := strings.Split(line, "\t")
		if headers == nil {
			headers = make([]string, len(cells))
			for i, c := range cells {
				headers[i] = strings.TrimSpace(c)
			}
			continue
		}
		filled := 0
		values := make([]any, len(cells))
		for i, c := range cells {
			c = strings.TrimSpace(c)
			if c != "" {
				filled++
			}
			values[i] = c
		}
		if filled < 2 {
			continue
		}
		rows = append(rows, zipRow(headers, values))
	}
	return toRecords(rows)
}

// objectRows keeps the object elements of arr; array elements are zipped
// against headers when headers are known. Anything else is skipped.
func objectRows(arr []any, headers []string) []map[string]any {
	rows := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if obj, ok := asObject(el); ok {
			rows = append(rows, obj)
			continue
		}
		if headers == nil {
			continue
		}
		if cells, ok := el.([]any); ok {
			rows = append(rows, zipRow(headers, cells))
		}
	}
	return rows
}
