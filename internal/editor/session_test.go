package editor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-workbench/internal/catalog"
	"course-workbench/internal/domain"
)

var tools = catalog.Catalog{Tools: []domain.ToolRecord{
	{Code: "EQ-01", Name: "Five Senses", Link: "https://tools/eq01", Status: "active"},
	{Code: "EQ-02", Name: "Mood Meter", Link: "https://tools/eq02", Status: "active"},
	{Code: "MK-07", Name: "Maker Kit", Status: "active"},
}}

// gatedRecords answers from memory. When gate is set, calls block until it is
// closed so tests can interleave a second action.
type gatedRecords struct {
	mu      sync.Mutex
	rows    map[string]domain.CourseRecord
	saves   int
	gate    chan struct{}
	entered chan struct{}
	err     error
}

func newGatedRecords() *gatedRecords {
	return &gatedRecords{rows: map[string]domain.CourseRecord{}}
}

func (g *gatedRecords) hold() (release func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate = make(chan struct{})
	g.entered = make(chan struct{}, 1)
	gate := g.gate
	return func() { close(gate) }
}

func (g *gatedRecords) wait() {
	g.mu.Lock()
	gate, entered := g.gate, g.entered
	g.mu.Unlock()
	if gate == nil {
		return
	}
	entered <- struct{}{}
	<-gate
}

func (g *gatedRecords) Get(ctx context.Context, stage domain.Stage, id string) (domain.CourseRecord, error) {
	g.wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rows[string(stage)+"/"+id]
	if !ok {
		return domain.CourseRecord{}, domain.ErrNotFound
	}
	return r.Clone(), nil
}

func (g *gatedRecords) Save(ctx context.Context, rec domain.CourseRecord, stage domain.Stage) (domain.CourseRecord, error) {
	g.wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return domain.CourseRecord{}, g.err
	}
	g.saves++
	if rec.ID == "" {
		rec.ID = "R" + string(rune('0'+g.saves))
	}
	rec.Stage = stage
	rec.Status = stage.DefaultStatus()
	g.rows[string(stage)+"/"+rec.ID] = rec.Clone()
	return rec, nil
}

func (g *gatedRecords) entry() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entered
}

func TestSessionSelectionDerivesFields(t *testing.T) {
	s := NewSession(newGatedRecords(), tools)
	s.Edit(func(r *domain.CourseRecord) {
		r.Title = "Feelings lab"
		r.Kind = domain.KindTalk
		r.VenueType = "indoor"
		r.Links = "https://manual/a"
	})

	require.NoError(t, s.SetPrimary("EQ-01"))
	added, err := s.AddSecondary("EQ-02")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddSecondary("EQ-01")
	require.NoError(t, err)
	assert.False(t, added, "primary cannot also be secondary")

	rec := s.Record()
	assert.Equal(t, "talk indoor EQ-01", rec.Tags)
	assert.Equal(t, "https://manual/a\nhttps://tools/eq01\nhttps://tools/eq02", rec.Links)
	require.NotNil(t, rec.PrimaryTool)
	assert.Equal(t, "EQ-01", rec.PrimaryTool.Code)
	require.Len(t, rec.SecondaryTools, 1)

	// switching primary to the secondary tool removes it from the secondary set
	require.NoError(t, s.SetPrimary("EQ-02"))
	assert.Empty(t, s.Selection().Secondary)

	s.RemoveSecondary("EQ-02")
	s.ClearPrimary()
	assert.Nil(t, s.Record().PrimaryTool)
	assert.Contains(t, s.ToolSummary(), "(none selected)")
}

func TestSessionToolLookupErrors(t *testing.T) {
	s := NewSession(newGatedRecords(), catalog.Catalog{})
	err := s.SetPrimary("EQ-01")
	assert.True(t, domain.IsValidation(err), "empty catalog: %v", err)

	s.SetCatalog(tools)
	err = s.SetPrimary("NOPE")
	assert.True(t, domain.IsValidation(err))
	_, err = s.AddSecondary("NOPE")
	assert.True(t, domain.IsValidation(err))
}

func TestSessionEditKeepsOwnedFields(t *testing.T) {
	s := NewSession(newGatedRecords(), tools)
	require.NoError(t, s.SetPrimary("MK-07"))
	s.Edit(func(r *domain.CourseRecord) {
		r.ID = "hijack"
		r.Stage = domain.StageFinal
		r.Title = "kept"
	})
	rec := s.Record()
	assert.Empty(t, rec.ID)
	assert.Equal(t, domain.StageIdea, rec.Stage)
	assert.Equal(t, "kept", rec.Title)
}

func TestSessionSaveAdoptsServerCopy(t *testing.T) {
	recs := newGatedRecords()
	s := NewSession(recs, tools)
	require.NoError(t, s.Start(domain.StageDraft))
	s.Edit(func(r *domain.CourseRecord) { r.Title = "Draft one" })
	require.NoError(t, s.SetPrimary("EQ-01"))

	saved, err := s.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "R1", saved.ID)
	assert.Equal(t, domain.StageDraft, saved.Stage)

	rec := s.Record()
	assert.Equal(t, "R1", rec.ID, "server id replaces the working copy")
	assert.Equal(t, "draft", rec.Status)
	assert.Equal(t, "EQ-01", s.Selection().Primary.Code)

	// a second save updates rather than inserting
	s.Edit(func(r *domain.CourseRecord) { r.Summary = "more" })
	_, err = s.Save(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs.rows, 1)
}

func TestSessionSaveError(t *testing.T) {
	recs := newGatedRecords()
	recs.err = &domain.NetworkError{Op: "upsert", Err: errors.New("down")}
	s := NewSession(recs, tools)
	s.Edit(func(r *domain.CourseRecord) { r.Title = "x" })

	_, err := s.Save(context.Background())
	assert.True(t, domain.IsNetwork(err))
	assert.Equal(t, "x", s.Record().Title, "working copy survives a failed save")

	recs.err = nil
	_, err = s.Save(context.Background())
	assert.NoError(t, err, "failed save releases the in-flight guard")
}

func TestSessionSingleSaveInFlight(t *testing.T) {
	recs := newGatedRecords()
	s := NewSession(recs, tools)
	s.Edit(func(r *domain.CourseRecord) { r.Title = "x" })

	release := recs.hold()
	done := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background())
		done <- err
	}()
	<-recs.entry()

	_, err := s.Save(context.Background())
	assert.ErrorIs(t, err, domain.ErrSavePending)

	release()
	require.NoError(t, <-done)
	assert.Equal(t, 1, recs.saves)
}

func TestSessionDropsLateSave(t *testing.T) {
	recs := newGatedRecords()
	recs.rows["final/F9"] = domain.CourseRecord{ID: "F9", Title: "Other", Stage: domain.StageFinal}
	s := NewSession(recs, tools)
	s.Edit(func(r *domain.CourseRecord) { r.Title = "first" })

	release := recs.hold()
	done := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background())
		done <- err
	}()
	<-recs.entry()

	// user moves on to another record while the save is in flight
	recs.mu.Lock()
	recs.gate = nil
	recs.mu.Unlock()
	_, err := s.Load(context.Background(), domain.StageFinal, "F9")
	require.NoError(t, err)

	release()
	assert.ErrorIs(t, <-done, domain.ErrStaleResponse)
	assert.Equal(t, "F9", s.Record().ID, "late save must not replace the loaded record")
	assert.Equal(t, domain.StageFinal, s.Record().Stage)
}

func TestSessionDropsLateLoad(t *testing.T) {
	recs := newGatedRecords()
	recs.rows["idea/I1"] = domain.CourseRecord{ID: "I1", Title: "Old"}
	s := NewSession(recs, tools)

	release := recs.hold()
	done := make(chan error, 1)
	go func() {
		_, err := s.Load(context.Background(), domain.StageIdea, "I1")
		done <- err
	}()
	<-recs.entry()

	require.NoError(t, s.Start(domain.StageDraft))
	release()

	assert.ErrorIs(t, <-done, domain.ErrStaleResponse)
	assert.Empty(t, s.Record().ID)
	assert.Equal(t, domain.StageDraft, s.Record().Stage)
}

func TestSessionLoadRestoresSelection(t *testing.T) {
	recs := newGatedRecords()
	recs.rows["final/F1"] = domain.CourseRecord{
		ID:             "F1",
		Title:          "Stored",
		Stage:          domain.StageFinal,
		PrimaryTool:    &domain.ToolRecord{Code: "EQ-01", Name: "old name"},
		SecondaryTools: []domain.ToolRecord{{Code: "GONE", Name: "Retired tool"}},
	}
	s := NewSession(recs, tools)

	_, err := s.Load(context.Background(), domain.StageFinal, "F1")
	require.NoError(t, err)
	sel := s.Selection()
	require.NotNil(t, sel.Primary)
	assert.Equal(t, "Five Senses", sel.Primary.Name, "catalog entry replaces the stored copy")
	require.Len(t, sel.Secondary, 1)
	assert.Equal(t, "Retired tool", sel.Secondary[0].Name, "unknown tools are kept")

	_, err = s.Load(context.Background(), domain.StageFinal, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "F1", s.Record().ID)

	_, err = s.Load(context.Background(), domain.Stage("later"), "F1")
	assert.True(t, domain.IsValidation(err))
}

func TestSessionPreviews(t *testing.T) {
	s := NewSession(newGatedRecords(), tools)
	s.Edit(func(r *domain.CourseRecord) {
		r.Title = "Preview me"
		r.DurationMinutes = 90
	})
	require.NoError(t, s.SetPrimary("EQ-01"))

	assert.Contains(t, s.Prompt(), "Preview me")
	assert.Contains(t, s.Proposal(), "Preview me")
	assert.Contains(t, s.TSVLine(), "Preview me")
	assert.NotContains(t, s.TSVLine(), "\n")
	assert.Contains(t, s.ToolSummary(), "EQ-01")
}
