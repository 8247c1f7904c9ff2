package providers

import (
	"context"

	"course-workbench/internal/domain"
)

// CatalogSource returns the raw tool catalog payload in whatever shape the
// remote API emits that day. Normalizing it is the caller's job.
type CatalogSource interface {
	FetchToolCatalog(ctx context.Context) (any, error)
}

// RecordStore is the remote, stage-partitioned course record keeper.
// UpsertRecord is an idempotent-by-id upsert that returns the server's
// canonical copy, including any id it assigned.
type RecordStore interface {
	ListRecords(ctx context.Context, stage domain.Stage, query string) ([]domain.CourseRecord, error)
	GetRecord(ctx context.Context, stage domain.Stage, id string) (domain.CourseRecord, error)
	UpsertRecord(ctx context.Context, stage domain.Stage, rec domain.CourseRecord) (domain.CourseRecord, error)
	DeleteRecord(ctx context.Context, stage domain.Stage, id string) error
}

// CatalogCache keeps the last successfully synced catalog. A nil slice with a
// nil error means nothing has been cached yet.
type CatalogCache interface {
	ReadCachedCatalog(ctx context.Context) ([]domain.ToolRecord, error)
	WriteCachedCatalog(ctx context.Context, tools []domain.ToolRecord) error
}

// ListCache keeps the last successful unfiltered list per stage.
// ReadCachedList returns nil when the stage was never listed and a non-nil,
// possibly empty, slice when it was.
type ListCache interface {
	ReadCachedList(ctx context.Context, stage domain.Stage) ([]domain.CourseRecord, error)
	WriteCachedList(ctx context.Context, stage domain.Stage, recs []domain.CourseRecord) error
}
