// Package lifecycle moves course records through idea, draft and final and
// applies the per-stage save rules.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"course-workbench/internal/domain"
	"course-workbench/internal/providers"
)

type Engine struct {
	store  providers.RecordStore
	lists  providers.ListCache
	policy Policy
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]struct{}
}

type Option func(*Engine)

func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithListCache enables the per-stage list fallback.
func WithListCache(c providers.ListCache) Option {
	return func(e *Engine) { e.lists = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(store providers.RecordStore, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		policy:  DefaultPolicy(),
		logger:  zap.NewNop(),
		now:     time.Now,
		pending: map[string]struct{}{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Policy() Policy { return e.policy }

// ListResult is a stage listing. Stale marks a listing served from the local
// cache because the store could not be reached.
type ListResult struct {
	Records []domain.CourseRecord
	Stale   bool
	Cause   error
}

// Save validates rec, applies the stage defaults and upserts it. The returned
// record is the store's copy and should replace the caller's working copy.
// A second Save for an id whose first Save has not returned fails with
// domain.ErrSavePending.
func (e *Engine) Save(ctx context.Context, rec domain.CourseRecord, stage domain.Stage) (domain.CourseRecord, error) {
	if !stage.Valid() {
		return domain.CourseRecord{}, &domain.ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", stage)}
	}
	if err := e.policy.Validate(rec); err != nil {
		return domain.CourseRecord{}, err
	}
	// a stored record only changes stage through Promote
	if strings.TrimSpace(rec.ID) != "" && rec.Stage != "" && rec.Stage != stage {
		return domain.CourseRecord{}, &domain.ValidationError{
			Field:  "stage",
			Reason: fmt.Sprintf("record %s is in %s; promote it instead of saving into %s", rec.ID, rec.Stage, stage),
		}
	}

	if id := strings.TrimSpace(rec.ID); id != "" {
		if !e.acquire(id) {
			return domain.CourseRecord{}, fmt.Errorf("save %s: %w", id, domain.ErrSavePending)
		}
		defer e.release(id)
	}

	work := rec.Clone()
	work.NormalizeKind()
	work.NormalizeTools()
	ApplyDefaults(&work, stage, e.now())

	saved, err := e.store.UpsertRecord(ctx, stage, work)
	if err != nil {
		e.logger.Warn("save failed", zap.String("stage", string(stage)), zap.String("id", rec.ID), zap.Error(err))
		return domain.CourseRecord{}, domain.WrapNetwork("save", err)
	}
	saved.Stage = stage
	e.logger.Info("record saved", zap.String("stage", string(stage)), zap.String("id", saved.ID))
	e.updateCachedList(ctx, stage, func(recs []domain.CourseRecord) []domain.CourseRecord {
		return upsertByID(recs, saved)
	})
	return saved, nil
}

func (e *Engine) acquire(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.pending[id]; busy {
		return false
	}
	e.pending[id] = struct{}{}
	return true
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, id)
}

// Promote copies the record id from one stage into the next, replacing any
// record with the same id there. The source record stays where it is.
// If the record is gone from the source nothing is written.
func (e *Engine) Promote(ctx context.Context, id string, from, to domain.Stage) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &domain.ValidationError{Field: "id", Reason: "id is required to promote"}
	}
	if !from.Valid() || !to.Valid() || !CanPromote(from, to) {
		return &domain.ValidationError{Field: "stage", Reason: fmt.Sprintf("cannot promote from %q to %q", from, to)}
	}

	rec, err := e.store.GetRecord(ctx, from, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("promote %s: %w", id, domain.ErrNotFound)
		}
		return domain.WrapNetwork("promote", err)
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("promote %s: %w", id, domain.ErrNotFound)
	}

	rec.ID = id
	rec.Stage = to
	rec.Status = promotedStatus(rec.Status, from, to)
	saved, err := e.store.UpsertRecord(ctx, to, rec)
	if err != nil {
		e.logger.Warn("promote failed", zap.String("id", id), zap.String("from", string(from)), zap.String("to", string(to)), zap.Error(err))
		return domain.WrapNetwork("promote", err)
	}
	saved.Stage = to
	e.logger.Info("record promoted", zap.String("id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	e.updateCachedList(ctx, to, func(recs []domain.CourseRecord) []domain.CourseRecord {
		return upsertByID(recs, saved)
	})
	return nil
}

// List returns the records of a stage. An unfiltered listing refreshes the
// local cache; when the store is unreachable the cached listing is filtered
// locally and returned as stale.
func (e *Engine) List(ctx context.Context, stage domain.Stage, query string) (ListResult, error) {
	if !stage.Valid() {
		return ListResult{}, &domain.ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", stage)}
	}
	recs, err := e.store.ListRecords(ctx, stage, query)
	if err != nil {
		nerr := domain.WrapNetwork("list", err)
		if cached := e.cachedList(ctx, stage); cached != nil {
			e.logger.Warn("list failed, serving cache", zap.String("stage", string(stage)), zap.Error(err))
			return ListResult{Records: FilterRecords(cached, query), Stale: true, Cause: nerr}, nil
		}
		return ListResult{}, nerr
	}
	if recs == nil {
		recs = []domain.CourseRecord{}
	}
	for i := range recs {
		recs[i].Stage = stage
	}
	if strings.TrimSpace(query) == "" && e.lists != nil {
		if err := e.lists.WriteCachedList(ctx, stage, recs); err != nil {
			e.logger.Warn("list cache write failed", zap.String("stage", string(stage)), zap.Error(err))
		}
	}
	return ListResult{Records: recs}, nil
}

func (e *Engine) Get(ctx context.Context, stage domain.Stage, id string) (domain.CourseRecord, error) {
	if !stage.Valid() {
		return domain.CourseRecord{}, &domain.ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", stage)}
	}
	rec, err := e.store.GetRecord(ctx, stage, id)
	if err != nil {
		return domain.CourseRecord{}, domain.WrapNetwork("get", err)
	}
	rec.Stage = stage
	return rec, nil
}

// Delete removes the record from the store of its stage and from that
// stage's cached listing.
func (e *Engine) Delete(ctx context.Context, stage domain.Stage, id string) error {
	if !stage.Valid() {
		return &domain.ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", stage)}
	}
	if strings.TrimSpace(id) == "" {
		return &domain.ValidationError{Field: "id", Reason: "id is required to delete"}
	}
	if err := e.store.DeleteRecord(ctx, stage, id); err != nil {
		return domain.WrapNetwork("delete", err)
	}
	e.logger.Info("record deleted", zap.String("stage", string(stage)), zap.String("id", id))
	e.updateCachedList(ctx, stage, func(recs []domain.CourseRecord) []domain.CourseRecord {
		out := recs[:0:0]
		for _, r := range recs {
			if r.ID != id {
				out = append(out, r)
			}
		}
		return out
	})
	return nil
}

func (e *Engine) cachedList(ctx context.Context, stage domain.Stage) []domain.CourseRecord {
	if e.lists == nil {
		return nil
	}
	recs, err := e.lists.ReadCachedList(ctx, stage)
	if err != nil {
		e.logger.Warn("list cache read failed", zap.String("stage", string(stage)), zap.Error(err))
		return nil
	}
	return recs
}

// updateCachedList keeps an existing cached listing in step with a write.
// Stages that were never listed stay uncached.
func (e *Engine) updateCachedList(ctx context.Context, stage domain.Stage, edit func([]domain.CourseRecord) []domain.CourseRecord) {
	recs := e.cachedList(ctx, stage)
	if recs == nil {
		return
	}
	if err := e.lists.WriteCachedList(ctx, stage, edit(recs)); err != nil {
		e.logger.Warn("list cache write failed", zap.String("stage", string(stage)), zap.Error(err))
	}
}

func upsertByID(recs []domain.CourseRecord, rec domain.CourseRecord) []domain.CourseRecord {
	out := make([]domain.CourseRecord, 0, len(recs)+1)
	out = append(out, rec)
	for _, r := range recs {
		if r.ID != rec.ID {
			out = append(out, r)
		}
	}
	return out
}
