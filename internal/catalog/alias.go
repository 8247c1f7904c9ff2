package catalog

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"course-workbench/internal/domain"
)

// Known header spellings per field, in priority order. The Chinese headers are
// the column names of the tool inventory sheet.
var (
	codeAliases     = []string{"code", "toolCode", "tool_code", "id", "tool_id", "工具ID"}
	nameAliases     = []string{"name", "title", "toolName", "tool_name", "工具名稱"}
	linkAliases     = []string{"link", "url", "href", "工具連結"}
	categoryAliases = []string{"category", "type", "group", "class", "性質分類"}
	coreAliases     = []string{"coreDescription", "core_description", "core", "summary", "desc", "description", "核心功能"}
	painAliases     = []string{"painPoints", "pain_points", "pain", "適用對象/痛點"}
	tipsAliases     = []string{"tips", "智多星錦囊"}
	statusAliases   = []string{"status", "狀態"}
	uidAliases      = []string{"toolUid", "tool_uid", "uid"}
)

var inactiveStatuses = map[string]bool{
	"deleted":  true,
	"inactive": true,
	"archived": true,
	"disabled": true,
	"removed":  true,
	"retired":  true,
}

var toolNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("course-workbench/tool"))

// rowView is a read-only lookup over one row object. Exact keys win; keys that
// only match case-insensitively are resolved in sorted key order so the
// result never depends on map iteration.
type rowView struct {
	exact  map[string]any
	folded map[string]any
}

func newRowView(row map[string]any) rowView {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	v := rowView{exact: make(map[string]any, len(row)), folded: make(map[string]any, len(row))}
	for _, k := range keys {
		tk := strings.TrimSpace(k)
		if _, dup := v.exact[tk]; !dup {
			v.exact[tk] = row[k]
		}
		fk := strings.ToLower(tk)
		if _, dup := v.folded[fk]; !dup {
			v.folded[fk] = row[k]
		}
	}
	return v
}

// get returns the first non-empty value among aliases.
func (v rowView) get(aliases []string) string {
	for _, a := range aliases {
		if s := cellString(v.exact[a]); s != "" {
			return s
		}
	}
	for _, a := range aliases {
		if s := cellString(v.folded[strings.ToLower(a)]); s != "" {
			return s
		}
	}
	return ""
}

// toolFromRow maps one row object into a ToolRecord. ok is false when the row
// is not a usable tool: no code and no name, or explicitly marked inactive.
func toolFromRow(row map[string]any) (domain.ToolRecord, bool) {
	v := newRowView(row)
	t := domain.ToolRecord{
		Code:            v.get(codeAliases),
		Name:            v.get(nameAliases),
		Link:            v.get(linkAliases),
		Category:        v.get(categoryAliases),
		CoreDescription: v.get(coreAliases),
		PainPoints:      v.get(painAliases),
		Tips:            v.get(tipsAliases),
		Status:          strings.ToLower(v.get(statusAliases)),
		UID:             v.get(uidAliases),
	}
	if t.Code == "" && t.Name == "" {
		return domain.ToolRecord{}, false
	}
	if t.Status == "" {
		t.Status = domain.ToolStatusActive
	}
	if inactiveStatuses[t.Status] {
		return domain.ToolRecord{}, false
	}
	if t.UID == "" {
		t.UID = StableUID(t.Code, t.Link)
	}
	return t, true
}

// StableUID derives a deterministic tool uid from its code and link, for
// catalogs that do not carry one.
func StableUID(code, link string) string {
	raw := strings.ToLower(strings.TrimSpace(code) + "|" + strings.TrimSpace(link))
	return "tool_" + uuid.NewSHA1(toolNamespace, []byte(raw)).String()
}

// toRecords aliases every row and deduplicates by tool identity, first wins.
func toRecords(rows []map[string]any) []domain.ToolRecord {
	out := make([]domain.ToolRecord, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		t, ok := toolFromRow(row)
		if !ok {
			continue
		}
		k := t.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}
