package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-workbench/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_MissingKeysAreEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tools, err := s.ReadCachedCatalog(ctx)
	require.NoError(t, err)
	assert.Empty(t, tools)

	recs, err := s.ReadCachedList(ctx, domain.StageIdea)
	require.NoError(t, err)
	assert.Empty(t, recs)

	at, err := s.CatalogSyncedAt(ctx)
	require.NoError(t, err)
	assert.True(t, at.IsZero())
}

func TestStore_CatalogLastWriteWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fixed := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.WriteCachedCatalog(ctx, []domain.ToolRecord{{Code: "T01", Name: "Cards"}}))
	want := []domain.ToolRecord{{Code: "T02", Name: "Dice", Status: "active", UID: "tool_x"}}
	require.NoError(t, s.WriteCachedCatalog(ctx, want))

	got, err := s.ReadCachedCatalog(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}

	at, err := s.CatalogSyncedAt(ctx)
	require.NoError(t, err)
	assert.True(t, fixed.Equal(at))
}

func TestStore_ListsArePerStage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	ideas := []domain.CourseRecord{{
		ID: "C1", Title: "Idea", Stage: domain.StageIdea, CreatedAt: created, UpdatedAt: created,
		PrimaryTool: &domain.ToolRecord{Code: "T01"},
	}}
	require.NoError(t, s.WriteCachedList(ctx, domain.StageIdea, ideas))
	require.NoError(t, s.WriteCachedList(ctx, domain.StageFinal, []domain.CourseRecord{{ID: "F1"}}))

	got, err := s.ReadCachedList(ctx, domain.StageIdea)
	require.NoError(t, err)
	if diff := cmp.Diff(ideas, got); diff != "" {
		t.Errorf("idea list mismatch (-want +got):\n%s", diff)
	}

	drafts, err := s.ReadCachedList(ctx, domain.StageDraft)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestStore_EmptyListIsStillCached(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	missing, err := s.ReadCachedList(ctx, domain.StageDraft)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.WriteCachedList(ctx, domain.StageDraft, nil))
	empty, err := s.ReadCachedList(ctx, domain.StageDraft)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestStore_ClearDropsCatalogAndLists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fixed := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.WriteCachedCatalog(ctx, []domain.ToolRecord{{Code: "T01"}}))
	require.NoError(t, s.WriteCachedList(ctx, domain.StageIdea, []domain.CourseRecord{{ID: "C1"}}))
	require.NoError(t, s.Put(ctx, "other", 1))

	at, err := s.ListCachedAt(ctx, domain.StageIdea)
	require.NoError(t, err)
	assert.True(t, fixed.Equal(at))

	require.NoError(t, s.Clear(ctx))

	tools, err := s.ReadCachedCatalog(ctx)
	require.NoError(t, err)
	assert.Empty(t, tools)
	recs, err := s.ReadCachedList(ctx, domain.StageIdea)
	require.NoError(t, err)
	assert.Nil(t, recs)
	at, err = s.ListCachedAt(ctx, domain.StageIdea)
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	var n int
	ok, err := s.Get(ctx, "other", &n)
	require.NoError(t, err)
	assert.True(t, ok, "unrelated keys survive")
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "k", map[string]int{"n": 1}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	var out map[string]int
	ok, err := s.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, out["n"])

	require.NoError(t, s.Delete(context.Background(), "k"))
	ok, err = s.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.WriteCachedCatalog(context.Background(), []domain.ToolRecord{{Code: "T01"}}))
	got, err := s.ReadCachedCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
