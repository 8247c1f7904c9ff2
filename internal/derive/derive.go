// Package derive computes the fields of a course record that are generated
// from other fields and the tool selection rather than typed by the user.
// Everything here is pure.
package derive

import (
	"strings"
	"unicode"

	"course-workbench/internal/domain"
)

// NonePlaceholder is rendered wherever a tool selection is empty.
const NonePlaceholder = "(none selected)"

func isLinkSeparator(r rune) bool {
	switch r {
	case ',', ';', '，', '；', '、':
		return true
	}
	return unicode.IsSpace(r)
}

// SplitLinks tokenizes free text on whitespace, commas, semicolons and line
// breaks (ASCII and full-width), dropping empty tokens.
func SplitLinks(text string) []string {
	return strings.FieldsFunc(text, isLinkSeparator)
}

// SplitLines returns the trimmed, non-empty lines of text.
func SplitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// MergeUnique concatenates lists, trimming entries and keeping the first
// occurrence of each exact value.
func MergeUnique(lists ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// DeriveLinks merges the manually entered links with the links of the
// selected tools: manual tokens first, then the primary tool's link, then
// each secondary tool's link in selection order, deduplicated and joined by
// newlines. Tool links are tokenized with the same separators as manual
// text, so feeding the output back in yields the same string.
func DeriveLinks(manual string, primary *domain.ToolRecord, secondary []domain.ToolRecord) string {
	lists := [][]string{SplitLinks(manual)}
	if primary != nil {
		lists = append(lists, SplitLinks(primary.Link))
	}
	for _, t := range secondary {
		lists = append(lists, SplitLinks(t.Link))
	}
	return strings.Join(MergeUnique(lists...), "\n")
}

// DeriveTags builds the tag line from the course kind, the venue type and the
// primary tool code, in that order, without duplicates.
func DeriveTags(kind, venueType string, primary *domain.ToolRecord) string {
	parts := []string{kind, venueType}
	if primary != nil {
		parts = append(parts, primary.Code)
	}
	return strings.Join(MergeUnique(parts), " ")
}

// ToolLabel renders a tool as "CODE｜Name", or the placeholder for nil.
func ToolLabel(t *domain.ToolRecord) string {
	if t == nil {
		return NonePlaceholder
	}
	return t.Label()
}

// ToolLabels joins secondary tool labels with sep, or returns the placeholder.
func ToolLabels(tools []domain.ToolRecord, sep string) string {
	if len(tools) == 0 {
		return NonePlaceholder
	}
	labels := make([]string, len(tools))
	for i, t := range tools {
		labels[i] = t.Label()
	}
	return strings.Join(labels, sep)
}

// BuildToolSummaryText renders the selection as a human-readable block used
// to seed generated prompt text.
func BuildToolSummaryText(primary *domain.ToolRecord, secondary []domain.ToolRecord) string {
	var b strings.Builder
	b.WriteString("Primary tool: ")
	b.WriteString(ToolLabel(primary))
	if primary != nil {
		if d := strings.TrimSpace(primary.CoreDescription); d != "" {
			b.WriteString("\n  Core: ")
			b.WriteString(d)
		}
		if p := strings.TrimSpace(primary.PainPoints); p != "" {
			b.WriteString("\n  Pain points: ")
			b.WriteString(p)
		}
	}
	b.WriteString("\nSecondary tools: ")
	b.WriteString(ToolLabels(secondary, "、"))
	return b.String()
}
