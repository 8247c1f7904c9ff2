package catalog

import (
	"sort"
	"strings"
	"time"

	"course-workbench/internal/domain"
)

// MaxFilterResults caps how many tools a picker query returns.
const MaxFilterResults = 300

// Catalog is the working tool set for one editing session. It is replaced
// wholesale on every sync.
type Catalog struct {
	Tools    []domain.ToolRecord
	SyncedAt time.Time

	// Stale is set when Tools came from the local cache because the sync
	// failed or returned nothing usable. Cause says why.
	Stale bool
	Cause error
}

// Usable reports whether tool-dependent actions can be offered.
func (c Catalog) Usable() bool {
	return len(c.Tools) > 0
}

// Find looks a tool up by code, falling back to name for code-less tools.
func (c Catalog) Find(codeOrName string) (domain.ToolRecord, bool) {
	key := strings.TrimSpace(codeOrName)
	if key == "" {
		return domain.ToolRecord{}, false
	}
	for _, t := range c.Tools {
		if strings.TrimSpace(t.Code) == key {
			return t, true
		}
	}
	for _, t := range c.Tools {
		if strings.TrimSpace(t.Code) == "" && strings.TrimSpace(t.Name) == key {
			return t, true
		}
	}
	return domain.ToolRecord{}, false
}

// Filter narrows a picker listing.
type Filter struct {
	Query    string
	Category string
	Prefix   string
}

// Filter returns active tools matching f, in catalog order, capped at
// MaxFilterResults.
func (c Catalog) Filter(f Filter) []domain.ToolRecord {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	cat := strings.TrimSpace(f.Category)
	prefix := strings.TrimSpace(f.Prefix)

	out := make([]domain.ToolRecord, 0)
	for _, t := range c.Tools {
		if !t.IsActive() {
			continue
		}
		if cat != "" && t.Category != cat {
			continue
		}
		if prefix != "" && !strings.HasPrefix(t.Code, prefix) {
			continue
		}
		if q != "" {
			hay := strings.ToLower(strings.Join([]string{t.Code, t.Name, t.Category, t.CoreDescription, t.PainPoints}, " "))
			if !strings.Contains(hay, q) {
				continue
			}
		}
		out = append(out, t)
		if len(out) == MaxFilterResults {
			break
		}
	}
	return out
}

// Categories lists the distinct non-empty categories, sorted.
func (c Catalog) Categories() []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, t := range c.Tools {
		if t.Category == "" || seen[t.Category] {
			continue
		}
		seen[t.Category] = true
		out = append(out, t.Category)
	}
	sort.Strings(out)
	return out
}
