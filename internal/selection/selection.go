// Package selection holds the primary/secondary tool choice of the record
// being edited. A State belongs to one editing session; nothing here is global.
package selection

import (
	"strings"

	"course-workbench/internal/derive"
	"course-workbench/internal/domain"
)

// Selection is an immutable snapshot of a State, the value handed to field
// derivation.
type Selection struct {
	Primary   *domain.ToolRecord
	Secondary []domain.ToolRecord
}

// State is the mutable tool choice. The zero value is an empty selection.
//
// Invariants: secondary tools form a set by tool identity, and the primary
// tool is never also a secondary tool.
type State struct {
	primary   *domain.ToolRecord
	secondary []domain.ToolRecord
}

func New() *State {
	return &State{}
}

// SetPrimary selects t as the primary tool and drops it from the secondary set.
func (s *State) SetPrimary(t domain.ToolRecord) {
	s.primary = &t
	s.removeSecondary(t.Key())
}

func (s *State) ClearPrimary() {
	s.primary = nil
}

// AddSecondary adds t to the secondary set. It reports false, and changes
// nothing, when t is the primary tool or already selected.
func (s *State) AddSecondary(t domain.ToolRecord) bool {
	k := t.Key()
	if s.primary != nil && s.primary.Key() == k {
		return false
	}
	for _, x := range s.secondary {
		if x.Key() == k {
			return false
		}
	}
	s.secondary = append(s.secondary, t)
	return true
}

// RemoveSecondary removes t from the secondary set, if present.
func (s *State) RemoveSecondary(t domain.ToolRecord) {
	s.removeSecondary(t.Key())
}

// ToggleSecondary mirrors a picker checkbox.
func (s *State) ToggleSecondary(t domain.ToolRecord, on bool) bool {
	if on {
		return s.AddSecondary(t)
	}
	s.RemoveSecondary(t)
	return true
}

func (s *State) removeSecondary(key string) {
	out := s.secondary[:0:0]
	for _, x := range s.secondary {
		if x.Key() != key {
			out = append(out, x)
		}
	}
	s.secondary = out
}

func (s *State) Clear() {
	s.primary = nil
	s.secondary = nil
}

// Snapshot copies the current selection.
func (s *State) Snapshot() Selection {
	var sel Selection
	if s.primary != nil {
		p := *s.primary
		sel.Primary = &p
	}
	if len(s.secondary) > 0 {
		sel.Secondary = append([]domain.ToolRecord(nil), s.secondary...)
	}
	return sel
}

func (s *State) HasPrimary() bool {
	return s.primary != nil
}

// Links derives the record's links from manual text plus this selection.
func (sel Selection) Links(manual string) string {
	return derive.DeriveLinks(manual, sel.Primary, sel.Secondary)
}

// Tags derives the record's tags from kind, venue type and this selection.
func (sel Selection) Tags(kind, venueType string) string {
	return derive.DeriveTags(kind, venueType, sel.Primary)
}

// Summary renders the selection for prompt text.
func (sel Selection) Summary() string {
	return derive.BuildToolSummaryText(sel.Primary, sel.Secondary)
}

// ApplyTo writes the selection into rec and re-derives its links and tags.
// Module records keep their composed tags; only their links are re-derived.
func (sel Selection) ApplyTo(rec *domain.CourseRecord) {
	rec.PrimaryTool = nil
	if sel.Primary != nil {
		p := *sel.Primary
		rec.PrimaryTool = &p
	}
	rec.SecondaryTools = append([]domain.ToolRecord(nil), sel.Secondary...)
	rec.NormalizeTools()

	rec.Links = sel.Links(rec.Links)
	if rec.Kind != domain.KindModule {
		rec.Tags = sel.Tags(rec.TagKind(), rec.VenueType)
	}
}

// Finder resolves a stored tool code against the current catalog.
type Finder interface {
	Find(codeOrName string) (domain.ToolRecord, bool)
}

// FromRecord rebuilds a State from a loaded record. Tools the catalog knows
// are replaced by their current catalog entry; unknown ones are kept as
// stored so a stale or missing catalog does not silently drop a selection.
func FromRecord(rec domain.CourseRecord, catalog Finder) *State {
	s := New()
	if rec.PrimaryTool != nil {
		s.SetPrimary(resolve(*rec.PrimaryTool, catalog))
	}
	for _, t := range rec.SecondaryTools {
		s.AddSecondary(resolve(t, catalog))
	}
	return s
}

func resolve(t domain.ToolRecord, catalog Finder) domain.ToolRecord {
	if catalog == nil {
		return t
	}
	key := strings.TrimSpace(t.Code)
	if key == "" {
		key = strings.TrimSpace(t.Name)
	}
	if found, ok := catalog.Find(key); ok {
		return found
	}
	return t
}
