// Package editor keeps the state of the one record a user is editing: the
// working copy, its tool selection and the catalog it picks from.
//
// Responses are matched to the record that asked for them. Every Start or
// Load bumps a generation counter, and a Load or Save that resolves after the
// generation moved on is dropped with domain.ErrStaleResponse instead of
// overwriting the newer record.
package editor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"course-workbench/internal/catalog"
	"course-workbench/internal/derive"
	"course-workbench/internal/domain"
	"course-workbench/internal/export"
	"course-workbench/internal/selection"
)

// Records is the part of lifecycle.Engine a session needs.
type Records interface {
	Get(ctx context.Context, stage domain.Stage, id string) (domain.CourseRecord, error)
	Save(ctx context.Context, rec domain.CourseRecord, stage domain.Stage) (domain.CourseRecord, error)
}

type Session struct {
	records Records
	logger  *zap.Logger

	mu      sync.Mutex
	catalog catalog.Catalog
	gen     uint64
	stage   domain.Stage
	rec     domain.CourseRecord
	sel     *selection.State
	saving  bool
}

type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession starts on a blank idea record.
func NewSession(records Records, cat catalog.Catalog, opts ...Option) *Session {
	s := &Session{
		records: records,
		logger:  zap.NewNop(),
		catalog: cat,
		stage:   domain.StageIdea,
		sel:     selection.New(),
	}
	for _, o := range opts {
		o(s)
	}
	s.rec.Stage = s.stage
	return s
}

// SetCatalog swaps in a freshly synced catalog. The current selection is
// re-resolved against it.
func (s *Session) SetCatalog(cat catalog.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = cat
	snap := s.sel.Snapshot()
	var tmp domain.CourseRecord
	snap.ApplyTo(&tmp)
	s.sel = selection.FromRecord(tmp, cat)
}

func (s *Session) Catalog() catalog.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// Start discards the working record and begins a blank one in stage.
func (s *Session) Start(stage domain.Stage) error {
	if !stage.Valid() {
		return &domain.ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", stage)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.stage = stage
	s.rec = domain.CourseRecord{Stage: stage}
	s.sel = selection.New()
	return nil
}

// Load makes the stored record id the working record.
func (s *Session) Load(ctx context.Context, stage domain.Stage, id string) (domain.CourseRecord, error) {
	if !stage.Valid() {
		return domain.CourseRecord{}, &domain.ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", stage)}
	}
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	rec, err := s.records.Get(ctx, stage, id)
	if err != nil {
		return domain.CourseRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.logger.Debug("dropping late load", zap.String("id", id))
		return domain.CourseRecord{}, domain.ErrStaleResponse
	}
	s.adopt(rec, stage)
	return rec.Clone(), nil
}

func (s *Session) adopt(rec domain.CourseRecord, stage domain.Stage) {
	s.stage = stage
	s.rec = rec.Clone()
	s.rec.Stage = stage
	s.sel = selection.FromRecord(rec, s.catalog)
}

// Edit changes fields of the working record. Tool fields are owned by the
// selection and are ignored here.
func (s *Session) Edit(fn func(rec *domain.CourseRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.rec.Clone()
	fn(&work)
	work.ID = s.rec.ID
	work.Stage = s.rec.Stage
	work.PrimaryTool = s.rec.PrimaryTool
	work.SecondaryTools = s.rec.SecondaryTools
	s.rec = work
}

func (s *Session) lookup(code string) (domain.ToolRecord, error) {
	if !s.catalog.Usable() {
		return domain.ToolRecord{}, &domain.ValidationError{Field: "tools", Reason: "tool catalog is empty, sync it first"}
	}
	t, ok := s.catalog.Find(code)
	if !ok {
		return domain.ToolRecord{}, &domain.ValidationError{Field: "tools", Reason: fmt.Sprintf("no tool %q in the catalog", code)}
	}
	return t, nil
}

func (s *Session) SetPrimary(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(code)
	if err != nil {
		return err
	}
	s.sel.SetPrimary(t)
	return nil
}

func (s *Session) ClearPrimary() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.ClearPrimary()
}

// AddSecondary reports false when the tool is the primary or already chosen.
func (s *Session) AddSecondary(code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(code)
	if err != nil {
		return false, err
	}
	return s.sel.AddSecondary(t), nil
}

func (s *Session) RemoveSecondary(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.sel.Snapshot().Secondary {
		if t.Code == code || (t.Code == "" && t.Name == code) {
			s.sel.RemoveSecondary(t)
		}
	}
}

// Selection returns a snapshot of the current tool choice.
func (s *Session) Selection() selection.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.Snapshot()
}

// Record is the working record with the selection and derived fields applied.
func (s *Session) Record() domain.CourseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

func (s *Session) current() domain.CourseRecord {
	work := s.rec.Clone()
	s.sel.Snapshot().ApplyTo(&work)
	return work
}

// Save stores the working record in its stage. Only one save runs at a time;
// a second call while one is in flight fails with domain.ErrSavePending.
// On success the stored copy, with any server-assigned id, becomes the
// working record.
func (s *Session) Save(ctx context.Context) (domain.CourseRecord, error) {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return domain.CourseRecord{}, domain.ErrSavePending
	}
	s.saving = true
	gen := s.gen
	stage := s.stage
	work := s.current()
	s.mu.Unlock()

	saved, err := s.records.Save(ctx, work, stage)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		return domain.CourseRecord{}, err
	}
	if gen != s.gen {
		s.logger.Debug("dropping late save", zap.String("id", saved.ID))
		return saved, domain.ErrStaleResponse
	}
	s.adopt(saved, stage)
	return saved.Clone(), nil
}

// Previews of the working record.

func (s *Session) ToolSummary() string {
	sel := s.Selection()
	return derive.BuildToolSummaryText(sel.Primary, sel.Secondary)
}

func (s *Session) Prompt() string   { return export.Prompt(s.Record()) }
func (s *Session) Proposal() string { return export.Proposal(s.Record()) }
func (s *Session) TSVLine() string  { return export.Line(s.Record()) }
