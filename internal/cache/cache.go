// Package cache is the local key-value store behind the catalog and list
// fallbacks. Values are JSON documents in a single SQLite table; the last
// write for a key wins.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"course-workbench/internal/domain"
)

const (
	catalogKey = "catalog"
	listPrefix = "list:"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the cache database at path. ":memory:"
// gives a private in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("cache migration %d: %w", i, err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Put stores v as JSON under key.
func (s *Store) Put(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(b), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	return nil
}

// Get decodes the value under key into out. It reports false when the key
// has never been written.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// UpdatedAt is when key was last written; zero if never.
func (s *Store) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("cache: updated_at %s: %w", key, err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("cache: updated_at %s: %w", key, err)
	}
	return t, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) ReadCachedCatalog(ctx context.Context) ([]domain.ToolRecord, error) {
	var tools []domain.ToolRecord
	if _, err := s.Get(ctx, catalogKey, &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

func (s *Store) WriteCachedCatalog(ctx context.Context, tools []domain.ToolRecord) error {
	return s.Put(ctx, catalogKey, tools)
}

// CatalogSyncedAt is when the cached catalog was written.
func (s *Store) CatalogSyncedAt(ctx context.Context) (time.Time, error) {
	return s.UpdatedAt(ctx, catalogKey)
}

func ListKey(stage domain.Stage) string { return listPrefix + string(stage) }

func (s *Store) ReadCachedList(ctx context.Context, stage domain.Stage) ([]domain.CourseRecord, error) {
	var recs []domain.CourseRecord
	found, err := s.Get(ctx, ListKey(stage), &recs)
	if err != nil || !found {
		return nil, err
	}
	if recs == nil {
		recs = []domain.CourseRecord{}
	}
	return recs, nil
}

// ListCachedAt is when the stage's listing was last cached; zero if never.
func (s *Store) ListCachedAt(ctx context.Context, stage domain.Stage) (time.Time, error) {
	return s.UpdatedAt(ctx, ListKey(stage))
}

// Clear drops the cached catalog and every stage listing.
func (s *Store) Clear(ctx context.Context) error {
	keys := []string{catalogKey}
	for _, st := range domain.Stages {
		keys = append(keys, ListKey(st))
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) WriteCachedList(ctx context.Context, stage domain.Stage, recs []domain.CourseRecord) error {
	return s.Put(ctx, ListKey(stage), recs)
}
