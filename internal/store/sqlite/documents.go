// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/postgate-dev/postgate/internal/store"
)

// Compile-time interface checks.
var (
	_ store.DocumentStore = (*DocumentStore)(nil)
	_ store.Locker        = (*DocumentStore)(nil)
)

// DocumentStore implements store.DocumentStore and store.Locker backed by SQLite.
type DocumentStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewDocumentStore opens (or creates) a SQLite database at dbPath and
// initialises the documents and locks tables.
func NewDocumentStore(dbPath string) (*DocumentStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection serializes writers and keeps lock acquisition
	// free of SQLITE_BUSY upgrades.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	return &DocumentStore{db: db, nowFunc: time.Now}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	key        TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS locks (
	name       TEXT PRIMARY KEY,
	holder     TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *DocumentStore) Close() error {
	return s.db.Close()
}

func (s *DocumentStore) Load(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("loading document: empty key: %w", store.ErrInvalidInput)
	}

	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w: %w", key, store.ErrDatabase, err)
	}
	return []byte(body), nil
}

func (s *DocumentStore) Save(ctx context.Context, key string, doc []byte) error {
	if key == "" {
		return fmt.Errorf("saving document: empty key: %w", store.ErrInvalidInput)
	}

	const q = `INSERT INTO documents (key, body, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, q, key, string(doc), s.nowFunc().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving document %s: %w: %w", key, store.ErrDatabase, err)
	}
	return nil
}

// Acquire takes the named lock for ttl. A lock whose expiry has passed is
// treated as abandoned and taken over.
func (s *DocumentStore) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	if name == "" {
		return nil, fmt.Errorf("acquiring lock: empty name: %w", store.ErrInvalidInput)
	}

	holder := uuid.NewString()
	now := s.nowFunc()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning lock tx: %w: %w", store.ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM locks WHERE name = ? AND expires_at <= ?`, name, now.UnixNano()); err != nil {
		return nil, fmt.Errorf("clearing expired lock %s: %w: %w", name, store.ErrDatabase, err)
	}

	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO locks (name, holder, expires_at) VALUES (?, ?, ?)`,
		name, holder, now.Add(ttl).UnixNano())
	if err != nil {
		return nil, fmt.Errorf("inserting lock %s: %w: %w", name, store.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows for lock %s: %w: %w", name, store.ErrDatabase, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("lock %s: %w", name, store.ErrLocked)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing lock %s: %w: %w", name, store.ErrDatabase, err)
	}

	var once sync.Once
	var releaseErr error
	return func(ctx context.Context) error {
		once.Do(func() {
			_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE name = ? AND holder = ?`, name, holder)
			if err != nil {
				releaseErr = fmt.Errorf("releasing lock %s: %w: %w", name, store.ErrDatabase, err)
			}
		})
		return releaseErr
	}, nil
}
