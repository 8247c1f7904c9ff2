package compose

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-workbench/internal/domain"
	"course-workbench/internal/lifecycle"
)

func final(id, title string) domain.CourseRecord {
	return domain.CourseRecord{ID: id, Title: title, Kind: domain.KindTalk, Stage: domain.StageFinal}
}

func TestCompose_ExampleOutline(t *testing.T) {
	mod, err := Compose(Composition{Title: "Feelings module", Sources: []domain.CourseRecord{final("C1", "A"), final("C2", "B")}})
	require.NoError(t, err)
	assert.Equal(t, "01 C1｜A\n02 C2｜B", mod.Outline)
	assert.Equal(t, "C1｜A\nC2｜B", mod.ModuleItems)
	assert.Equal(t, domain.KindModule, mod.Kind)
	assert.Equal(t, domain.StageFinal, mod.Stage)
	assert.Equal(t, VenueAny, mod.VenueType)
	assert.Empty(t, mod.ID, "compose never saves")
	assert.Nil(t, mod.PrimaryTool)
	assert.Empty(t, mod.SecondaryTools)
	assert.True(t, strings.HasPrefix(mod.Notes, notesTitle+"\n01 C1｜A"))
}

func TestCompose_OutlineHasOneLinePerSource(t *testing.T) {
	var srcs []domain.CourseRecord
	for i := 1; i <= 12; i++ {
		srcs = append(srcs, final(fmt.Sprintf("C%d", i), fmt.Sprintf("T%d", i)))
	}
	mod, err := Compose(Composition{Title: "Long", Sources: srcs})
	require.NoError(t, err)

	lines := strings.Split(mod.Outline, "\n")
	require.Len(t, lines, 12)
	for i, l := range lines {
		assert.True(t, strings.HasPrefix(l, fmt.Sprintf("%02d ", i+1)), l)
	}
	assert.Equal(t, "12 C12｜T12", lines[11])
}

func TestCompose_Validation(t *testing.T) {
	cases := map[string]Composition{
		"no sources":  {Title: "M"},
		"one source":  {Title: "M", Sources: []domain.CourseRecord{final("C1", "A")}},
		"no title":    {Title: " ", Sources: []domain.CourseRecord{final("C1", "A"), final("C2", "B")}},
		"duplicate":   {Title: "M", Sources: []domain.CourseRecord{final("C1", "A"), final("C1", "A")}},
		"unsaved one": {Title: "M", Sources: []domain.CourseRecord{final("C1", "A"), final("", "B")}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compose(c)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}
}

func TestCompose_MergesLinksAndToolCodes(t *testing.T) {
	a := final("C1", "A")
	a.Links = "https://x\nhttps://y"
	a.PrimaryTool = &domain.ToolRecord{Code: "T1"}
	a.SecondaryTools = []domain.ToolRecord{{Code: "T2"}}
	b := final("C2", "B")
	b.Links = "https://y\r\nhttps://z\n"
	b.PrimaryTool = &domain.ToolRecord{Code: "T2"}
	b.SecondaryTools = []domain.ToolRecord{{Code: "T3"}}

	mod, err := Compose(Composition{Title: "M", DurationMinutes: 180, Sources: []domain.CourseRecord{a, b}})
	require.NoError(t, err)
	assert.Equal(t, "https://x\nhttps://y\nhttps://z", mod.Links)
	assert.Equal(t, "T1 T2 T3", mod.Tags)
	assert.Equal(t, 180, mod.DurationMinutes)
	assert.Equal(t, "Module built from 2 sessions", mod.Summary)
}

// fakeRecords serves final records from memory and counts fetches.
type fakeRecords struct {
	mu    sync.Mutex
	recs  map[string]domain.CourseRecord
	gets  int
	stale bool
}

func (f *fakeRecords) Get(ctx context.Context, stage domain.Stage, id string) (domain.CourseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	r, ok := f.recs[id]
	if !ok || stage != domain.StageFinal {
		return domain.CourseRecord{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeRecords) List(ctx context.Context, stage domain.Stage, query string) (lifecycle.ListResult, error) {
	var out []domain.CourseRecord
	for _, id := range []string{"C1", "C2", "C3", "M1"} {
		if r, ok := f.recs[id]; ok {
			out = append(out, r)
		}
	}
	return lifecycle.ListResult{Records: lifecycle.FilterRecords(out, query), Stale: f.stale}, nil
}

func newFakeRecords() *fakeRecords {
	m := final("M1", "Old module")
	m.Kind = domain.KindModule
	return &fakeRecords{recs: map[string]domain.CourseRecord{
		"C1": final("C1", "A"),
		"C2": final("C2", "B"),
		"C3": final("C3", "C"),
		"M1": m,
	}}
}

func TestBuilder_ComposeByIDKeepsOrder(t *testing.T) {
	b := NewBuilder(newFakeRecords(), WithParallelism(3))
	mod, err := b.ComposeByID(context.Background(), Composition{Title: "M"}, []string{"C3", "C1", "C2"})
	require.NoError(t, err)
	assert.Equal(t, "01 C3｜C\n02 C1｜A\n03 C2｜B", mod.Outline)
}

func TestBuilder_ComposeByIDRejectsBadInputBeforeFetching(t *testing.T) {
	f := newFakeRecords()
	b := NewBuilder(f)
	ctx := context.Background()

	_, err := b.ComposeByID(ctx, Composition{Title: "M"}, []string{"C1"})
	assert.True(t, domain.IsValidation(err))
	_, err = b.ComposeByID(ctx, Composition{Title: "M"}, []string{"C1", "C1"})
	assert.True(t, domain.IsValidation(err))
	_, err = b.ComposeByID(ctx, Composition{}, []string{"C1", "C2"})
	assert.True(t, domain.IsValidation(err))
	assert.Zero(t, f.gets)
}

func TestBuilder_ComposeByIDSourceProblems(t *testing.T) {
	b := NewBuilder(newFakeRecords())
	ctx := context.Background()

	_, err := b.ComposeByID(ctx, Composition{Title: "M"}, []string{"C1", "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "nope")

	_, err = b.ComposeByID(ctx, Composition{Title: "M"}, []string{"C1", "M1"})
	assert.True(t, domain.IsValidation(err), "modules cannot nest: %v", err)
}

func TestBuilder_Candidates(t *testing.T) {
	f := newFakeRecords()
	f.stale = true
	res, err := NewBuilder(f).Candidates(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, res.Stale)
	var ids []string
	for _, r := range res.Records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"C1", "C2", "C3"}, ids)
}
