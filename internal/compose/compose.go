// Package compose folds finished single-session records into one module
// record.
package compose

import (
	"fmt"
	"strings"

	"course-workbench/internal/derive"
	"course-workbench/internal/domain"
)

const (
	MinSources = 2

	// VenueAny is the venue of a module whose sessions may differ.
	VenueAny   = "any"
	notesTitle = "Module sessions:"
)

// Composition is the input to Compose. Sources are used in the order given.
type Composition struct {
	Title           string
	DurationMinutes int
	TotalDuration   string
	Audience        string
	Location        string
	Sources         []domain.CourseRecord
}

// Compose builds the module record. It does not save it.
func Compose(c Composition) (domain.CourseRecord, error) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return domain.CourseRecord{}, &domain.ValidationError{Field: "title", Reason: "module title is required"}
	}
	if err := checkIDs(idsOf(c.Sources)); err != nil {
		return domain.CourseRecord{}, err
	}

	var (
		outline []string
		items   []string
		links   [][]string
		tags    [][]string
	)
	for i, src := range c.Sources {
		id, name := strings.TrimSpace(src.ID), strings.TrimSpace(src.Title)
		outline = append(outline, fmt.Sprintf("%02d %s｜%s", i+1, id, name))
		items = append(items, id+"｜"+name)
		links = append(links, derive.SplitLines(src.Links))
		tags = append(tags, toolCodes(src))
	}

	return domain.CourseRecord{
		Title:           title,
		Kind:            domain.KindModule,
		Audience:        c.Audience,
		DurationMinutes: c.DurationMinutes,
		TotalDuration:   c.TotalDuration,
		Location:        c.Location,
		VenueType:       VenueAny,
		Summary:         fmt.Sprintf("Module built from %d sessions", len(c.Sources)),
		Outline:         strings.Join(outline, "\n"),
		ModuleItems:     strings.Join(items, "\n"),
		Notes:           notesTitle + "\n" + strings.Join(outline, "\n"),
		Links:           strings.Join(derive.MergeUnique(links...), "\n"),
		Tags:            strings.Join(derive.MergeUnique(tags...), " "),
		Stage:           domain.StageFinal,
	}, nil
}

func toolCodes(r domain.CourseRecord) []string {
	var codes []string
	if r.PrimaryTool != nil {
		codes = append(codes, strings.TrimSpace(r.PrimaryTool.Code))
	}
	for _, t := range r.SecondaryTools {
		codes = append(codes, strings.TrimSpace(t.Code))
	}
	return codes
}

func idsOf(recs []domain.CourseRecord) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

// checkIDs enforces the source count and that every source is a distinct
// saved record.
func checkIDs(ids []string) error {
	if len(ids) < MinSources {
		return &domain.ValidationError{Field: "sources", Reason: fmt.Sprintf("a module needs at least %d sessions, got %d", MinSources, len(ids))}
	}
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return &domain.ValidationError{Field: "sources", Reason: fmt.Sprintf("session %d has no id", i+1)}
		}
		if seen[id] {
			return &domain.ValidationError{Field: "sources", Reason: fmt.Sprintf("session %s is listed twice", id)}
		}
		seen[id] = true
	}
	return nil
}
