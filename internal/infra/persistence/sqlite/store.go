// Package sqlite persists the in-memory engine's committed state to a single
// SQLite table, one JSON row per entity bucket.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"modelkit/internal/infra/persistence/memory"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "modelkit.db"

// Store is a memory.Store whose saves are written through to SQLite. Each save
// rewrites only the buckets it touched, inside one SQL transaction.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating when needed) the database at path and hydrates the
// committed state from it.
func NewStore(path string, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{db: db, path: path}
	snapshot, err := s.load()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	opts = append(opts, memory.WithSnapshot(snapshot), memory.WithPersister(s))
	s.Store = memory.NewStore(opts...)
	return s, nil
}

func (s *Store) load() (memory.Snapshot, error) {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{}
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var b memory.Bucket
		if err := json.Unmarshal(payload, &b); err != nil {
			return nil, fmt.Errorf("decode %s: %w", bucket, err)
		}
		snapshot[bucket] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

// Persist implements memory.Persister.
func (s *Store) Persist(ctx context.Context, snapshot memory.Snapshot, buckets []string) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range buckets {
		contents, ok := snapshot[bucket]
		if !ok {
			if _, err := tx.ExecContext(ctx, `DELETE FROM state WHERE bucket = ?`, bucket); err != nil {
				return fmt.Errorf("delete %s: %w", bucket, err)
			}
			continue
		}
		data, err := json.Marshal(contents)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
