package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"course-workbench/internal/domain"
	"course-workbench/internal/providers"
)

// Syncer pulls the remote catalog, normalizes it and keeps the local cache
// current. Overlapping Sync calls share one fetch.
type Syncer struct {
	source  providers.CatalogSource
	cache   providers.CatalogCache
	logger  *zap.Logger
	now     func() time.Time
	timeout time.Duration

	group singleflight.Group
}

// DefaultSyncTimeout bounds a shared fetch once it no longer follows any
// single caller's context.
const DefaultSyncTimeout = 2 * time.Minute

type SyncerOption func(*Syncer)

func WithLogger(l *zap.Logger) SyncerOption {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSyncTimeout bounds each shared fetch. Non-positive values keep the default.
func WithSyncTimeout(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) SyncerOption {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSyncer builds a Syncer. cache may be nil, in which case failed syncs have
// nothing to fall back to.
func NewSyncer(source providers.CatalogSource, cache providers.CatalogCache, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		source:  source,
		cache:   cache,
		logger:  zap.NewNop(),
		now:     time.Now,
		timeout: DefaultSyncTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sync fetches and normalizes the catalog.
//
// A sync that yields no usable records falls back to the cached catalog and
// marks it stale; with no cache the catalog is empty and no error is
// returned. A network failure falls back the same way, but is returned when
// there is no cache to show.
func (s *Syncer) Sync(ctx context.Context) (Catalog, error) {
	ch := s.group.DoChan("catalog", func() (any, error) {
		// detached: callers that give up must not fail the ones still waiting
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.sync(fctx)
	})
	select {
	case <-ctx.Done():
		return Catalog{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("catalog sync coalesced")
		}
		c, _ := res.Val.(Catalog)
		return c, res.Err
	}
}

func (s *Syncer) sync(ctx context.Context) (Catalog, error) {
	raw, err := s.source.FetchToolCatalog(ctx)
	if err != nil {
		s.logger.Warn("catalog fetch failed", zap.Error(err))
		return s.fallback(ctx, domain.WrapNetwork("fetch tool catalog", err), true)
	}

	tools, shape := normalize(raw)
	if len(tools) == 0 {
		s.logger.Warn("catalog payload had no usable tools")
		return s.fallback(ctx, domain.ErrCatalogEmpty, false)
	}
	s.logger.Info("catalog synced", zap.Int("tools", len(tools)), zap.String("shape", shape))

	if s.cache != nil {
		if err := s.cache.WriteCachedCatalog(ctx, tools); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return Catalog{Tools: tools, SyncedAt: s.now()}, nil
}

func (s *Syncer) fallback(ctx context.Context, cause error, surface bool) (Catalog, error) {
	cached := s.cached(ctx)
	if len(cached) > 0 {
		s.logger.Info("serving stale catalog from cache", zap.Int("tools", len(cached)))
		return Catalog{Tools: cached, Stale: true, Cause: cause}, nil
	}
	c := Catalog{Tools: []domain.ToolRecord{}, Cause: cause}
	if surface {
		return c, cause
	}
	return c, nil
}

// Cached returns the cached catalog without touching the network. It is
// what a session shows before the first sync completes.
func (s *Syncer) Cached(ctx context.Context) Catalog {
	tools := s.cached(ctx)
	if tools == nil {
		tools = []domain.ToolRecord{}
	}
	return Catalog{Tools: tools, Stale: len(tools) > 0}
}

func (s *Syncer) cached(ctx context.Context) []domain.ToolRecord {
	if s.cache == nil {
		return nil
	}
	tools, err := s.cache.ReadCachedCatalog(ctx)
	if err != nil {
		s.logger.Warn("catalog cache read failed", zap.Error(err))
		return nil
	}
	return tools
}
