package lifecycle

import (
	"strings"
	"time"

	"course-workbench/internal/domain"
)

// Policy holds the save rules that vary by deployment.
type Policy struct {
	// RequirePrimaryTool rejects saves without a primary tool, in every stage.
	RequirePrimaryTool bool
	// ModulesSkipToolCheck lets composed modules be saved before a tool is
	// picked for them.
	ModulesSkipToolCheck bool
}

func DefaultPolicy() Policy {
	return Policy{RequirePrimaryTool: true, ModulesSkipToolCheck: true}
}

// Validate checks the local save preconditions. It never touches the network.
func (p Policy) Validate(rec domain.CourseRecord) error {
	if strings.TrimSpace(rec.Title) == "" {
		return &domain.ValidationError{Field: "title", Reason: "title is required"}
	}
	if p.ModulesSkipToolCheck && rec.Kind == domain.KindModule {
		return nil
	}
	if p.RequirePrimaryTool && rec.PrimaryTool == nil {
		return &domain.ValidationError{Field: "primaryTool", Reason: "a primary tool must be selected"}
	}
	return nil
}

// CanPromote reports whether from→to is an allowed promotion.
func CanPromote(from, to domain.Stage) bool {
	switch {
	case from == domain.StageIdea && to == domain.StageDraft:
	case from == domain.StageDraft && to == domain.StageFinal:
	case from == domain.StageIdea && to == domain.StageFinal:
	default:
		return false
	}
	return true
}

// IdeaSummary is the summary an idea gets when saved without one.
func IdeaSummary(title string) string {
	return "Idea: " + strings.TrimSpace(title)
}

// ApplyDefaults fills the stage defaults a save needs. User-supplied values
// are never overwritten, except UpdatedAt which always moves to now.
func ApplyDefaults(rec *domain.CourseRecord, stage domain.Stage, now time.Time) {
	rec.Stage = stage
	if strings.TrimSpace(rec.Status) == "" {
		rec.Status = stage.DefaultStatus()
	}
	if stage == domain.StageIdea && strings.TrimSpace(rec.Summary) == "" {
		rec.Summary = IdeaSummary(rec.Title)
	}
	now = now.UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.UpdatedAt.Before(rec.CreatedAt) {
		rec.UpdatedAt = rec.CreatedAt
	}
}

// promotedStatus carries a stage-default status over to the destination
// stage's default; a custom status is kept.
func promotedStatus(status string, from, to domain.Stage) string {
	s := strings.TrimSpace(status)
	if s == "" || s == from.DefaultStatus() {
		return to.DefaultStatus()
	}
	return status
}

// FilterRecords is the local search used when the store is unreachable:
// case-insensitive substring over id, title, tags and summary.
func FilterRecords(recs []domain.CourseRecord, query string) []domain.CourseRecord {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return recs
	}
	out := []domain.CourseRecord{}
	for _, r := range recs {
		hay := strings.ToLower(strings.Join([]string{r.ID, r.Title, r.Tags, r.Summary}, " "))
		if strings.Contains(hay, q) {
			out = append(out, r)
		}
	}
	return out
}
