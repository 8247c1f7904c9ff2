package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"course-workbench/internal/concurrency"
	"course-workbench/internal/domain"
	"course-workbench/internal/lifecycle"
)

// Records is the slice of the lifecycle engine the builder reads from.
type Records interface {
	Get(ctx context.Context, stage domain.Stage, id string) (domain.CourseRecord, error)
	List(ctx context.Context, stage domain.Stage, query string) (lifecycle.ListResult, error)
}

// Builder composes modules from records already in the final stage.
type Builder struct {
	records Records
	opts    concurrency.ParallelOptions
	logger  *zap.Logger
}

type Option func(*Builder)

func WithParallelism(n int) Option {
	return func(b *Builder) { b.opts.MaxWorkers = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBuilder(records Records, opts ...Option) *Builder {
	b := &Builder{
		records: records,
		opts:    concurrency.ParallelOptions{MaxWorkers: 4},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Candidates lists the final records a module can be built from: every
// final record that is not itself a module.
func (b *Builder) Candidates(ctx context.Context, query string) (lifecycle.ListResult, error) {
	res, err := b.records.List(ctx, domain.StageFinal, query)
	if err != nil {
		return lifecycle.ListResult{}, err
	}
	out := res.Records[:0:0]
	for _, r := range res.Records {
		if r.Kind != domain.KindModule {
			out = append(out, r)
		}
	}
	res.Records = out
	return res, nil
}

// ComposeByID fetches the final-stage records ids, in order, and composes
// them. Input problems are reported before anything is fetched.
func (b *Builder) ComposeByID(ctx context.Context, c Composition, ids []string) (domain.CourseRecord, error) {
	if strings.TrimSpace(c.Title) == "" {
		return domain.CourseRecord{}, &domain.ValidationError{Field: "title", Reason: "module title is required"}
	}
	if err := checkIDs(ids); err != nil {
		return domain.CourseRecord{}, err
	}

	recs, errs := concurrency.ProcessParallel(ctx, ids, b.opts, func(ctx context.Context, _ int, id string) (domain.CourseRecord, error) {
		return b.records.Get(ctx, domain.StageFinal, strings.TrimSpace(id))
	})
	if len(errs) > 0 {
		var ie *concurrency.ItemError
		if errors.As(errs[0], &ie) {
			return domain.CourseRecord{}, fmt.Errorf("module session %s: %w", ids[ie.Index], ie.Err)
		}
		return domain.CourseRecord{}, errs[0]
	}
	for _, r := range recs {
		if r.Kind == domain.KindModule {
			return domain.CourseRecord{}, &domain.ValidationError{Field: "sources", Reason: fmt.Sprintf("%s is already a module", r.ID)}
		}
	}

	c.Sources = recs
	mod, err := Compose(c)
	if err != nil {
		return domain.CourseRecord{}, err
	}
	b.logger.Info("module composed", zap.String("title", mod.Title), zap.Int("sessions", len(recs)))
	return mod, nil
}
