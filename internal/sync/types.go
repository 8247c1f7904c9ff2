package sync

import "course-workbench/internal/domain"

// Plan is what promoting every record of one stage into the next would do.
type Plan struct {
	From domain.Stage
	To   domain.Stage

	// Create holds source records with no copy in the destination yet.
	Create []domain.CourseRecord
	// Update holds source records whose destination copy differs.
	Update []domain.CourseRecord
	// Orphan holds destination records with no source. They are left alone.
	Orphan []domain.CourseRecord
}

// Pending lists the ids a promotion pass would write, creates first.
func (p Plan) Pending() []string {
	ids := make([]string, 0, len(p.Create)+len(p.Update))
	for _, r := range p.Create {
		ids = append(ids, r.ID)
	}
	for _, r := range p.Update {
		ids = append(ids, r.ID)
	}
	return ids
}

func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0
}
