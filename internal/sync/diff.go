// Package sync compares two lifecycle stages so a promotion pass only copies
// records that are new or changed.
package sync

import (
	"sort"
	"strings"

	"course-workbench/internal/domain"
)

// Diff compares the records of a source stage with those of the stage they
// are promoted into.
// Returns:
// - create: present in src but not in dst
// - update: present in both but changed
// - orphan: present in dst but not in src
//
// Each list is sorted by id. Records without an id are ignored.
func Diff(src, dst []domain.CourseRecord) (create, update, orphan []domain.CourseRecord) {
	srcByID := byID(src)
	dstByID := byID(dst)

	for id, s := range srcByID {
		d, ok := dstByID[id]
		if !ok {
			create = append(create, s)
			continue
		}
		if needsUpdate(s, d) {
			update = append(update, s)
		}
	}
	for id, d := range dstByID {
		if _, ok := srcByID[id]; !ok {
			orphan = append(orphan, d)
		}
	}

	sortByID(create)
	sortByID(update)
	sortByID(orphan)
	return create, update, orphan
}

// Compare builds the Plan for promoting from into to.
func Compare(from, to domain.Stage, src, dst []domain.CourseRecord) Plan {
	create, update, orphan := Diff(src, dst)
	return Plan{From: from, To: to, Create: create, Update: update, Orphan: orphan}
}

func byID(recs []domain.CourseRecord) map[string]domain.CourseRecord {
	m := make(map[string]domain.CourseRecord, len(recs))
	for _, r := range recs {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			continue
		}
		if _, dup := m[id]; dup {
			continue
		}
		m[id] = r
	}
	return m
}

func sortByID(recs []domain.CourseRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}

// needsUpdate ignores stage, status and timestamps: a promotion rewrites
// those itself.
func needsUpdate(s, d domain.CourseRecord) bool {
	text := [][2]string{
		{s.Title, d.Title},
		{string(s.Kind), string(d.Kind)},
		{s.KindOther, d.KindOther},
		{s.Audience, d.Audience},
		{s.TotalDuration, d.TotalDuration},
		{s.Location, d.Location},
		{s.VenueType, d.VenueType},
		{s.CoreConcept, d.CoreConcept},
		{s.Summary, d.Summary},
		{s.Objectives, d.Objectives},
		{s.Outline, d.Outline},
		{s.Materials, d.Materials},
		{s.Assets, d.Assets},
		{s.Notes, d.Notes},
		{s.Tags, d.Tags},
		{s.Links, d.Links},
		{s.ModuleItems, d.ModuleItems},
		{s.Version, d.Version},
		{s.Owner, d.Owner},
	}
	for _, p := range text {
		if norm(p[0]) != norm(p[1]) {
			return true
		}
	}
	if s.DurationMinutes != d.DurationMinutes || s.Capacity != d.Capacity {
		return true
	}
	return toolKeys(s) != toolKeys(d)
}

func toolKeys(r domain.CourseRecord) string {
	secondary := make([]string, 0, len(r.SecondaryTools))
	for _, t := range r.SecondaryTools {
		secondary = append(secondary, t.Key())
	}
	sort.Strings(secondary)
	primary := ""
	if r.PrimaryTool != nil {
		primary = r.PrimaryTool.Key()
	}
	return primary + "|" + strings.Join(secondary, ",")
}

// norm treats case, surrounding space and line-ending differences as equal.
func norm(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(strings.ToLower(s))
}
