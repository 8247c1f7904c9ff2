package sync

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"course-workbench/internal/domain"
)

func ids(recs []domain.CourseRecord) []string {
	out := []string{}
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestDiff(t *testing.T) {
	eq1 := &domain.ToolRecord{Code: "EQ-01", Name: "Five Senses"}
	src := []domain.CourseRecord{
		{ID: "C3", Title: "New one"},
		{ID: "C1", Title: "Same", Summary: "s", PrimaryTool: eq1, Status: "draft"},
		{ID: "C2", Title: "Changed", Summary: "new text"},
		{ID: "", Title: "never saved"},
		{ID: "C4", Title: "Tools moved", PrimaryTool: eq1},
	}
	dst := []domain.CourseRecord{
		{ID: "C1", Title: " same ", Summary: "s", PrimaryTool: &domain.ToolRecord{Code: "EQ-01", Name: "renamed"}, Status: "ready"},
		{ID: "C2", Title: "Changed", Summary: "old text"},
		{ID: "C9", Title: "Only downstream"},
		{ID: "C4", Title: "Tools moved", SecondaryTools: []domain.ToolRecord{*eq1}},
	}

	create, update, orphan := Diff(src, dst)
	if d := cmp.Diff([]string{"C3"}, ids(create)); d != "" {
		t.Errorf("create (-want +got):\n%s", d)
	}
	if d := cmp.Diff([]string{"C2", "C4"}, ids(update)); d != "" {
		t.Errorf("update (-want +got):\n%s", d)
	}
	if d := cmp.Diff([]string{"C9"}, ids(orphan)); d != "" {
		t.Errorf("orphan (-want +got):\n%s", d)
	}
}

func TestNeedsUpdateIgnoresLifecycleFields(t *testing.T) {
	s := domain.CourseRecord{ID: "C1", Title: "A", Stage: domain.StageDraft, Status: "draft"}
	d := domain.CourseRecord{ID: "C1", Title: "A", Stage: domain.StageFinal, Status: "ready"}
	if needsUpdate(s, d) {
		t.Error("stage and status alone should not count as a change")
	}
	d.DurationMinutes = 90
	if !needsUpdate(s, d) {
		t.Error("duration change should count")
	}
}

func TestToolKeysOrderInsensitive(t *testing.T) {
	a := domain.CourseRecord{SecondaryTools: []domain.ToolRecord{{Code: "B"}, {Code: "A"}}}
	b := domain.CourseRecord{SecondaryTools: []domain.ToolRecord{{Code: "A"}, {Code: "B"}}}
	if toolKeys(a) != toolKeys(b) {
		t.Errorf("secondary order should not matter: %q vs %q", toolKeys(a), toolKeys(b))
	}
	b.PrimaryTool = &domain.ToolRecord{Code: "A"}
	if toolKeys(a) == toolKeys(b) {
		t.Error("primary change should matter")
	}
}

func TestComparePlan(t *testing.T) {
	p := Compare(domain.StageDraft, domain.StageFinal,
		[]domain.CourseRecord{{ID: "D2", Title: "x"}, {ID: "D1", Title: "new"}},
		[]domain.CourseRecord{{ID: "D2", Title: "y"}},
	)
	if d := cmp.Diff([]string{"D1", "D2"}, p.Pending()); d != "" {
		t.Errorf("pending (-want +got):\n%s", d)
	}
	if p.Empty() {
		t.Error("plan should not be empty")
	}
	if !Compare(domain.StageIdea, domain.StageDraft, nil, nil).Empty() {
		t.Error("no records, nothing to do")
	}
}
