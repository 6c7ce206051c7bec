// Package store owns the embedded SQLite database behind sqew: opening and
// bootstrapping the file, applying the schema, classifying driver errors, and
// retrying transient lock contention.
//
// # WAL mode
//
// The database is opened with PRAGMA journal_mode = WAL so that concurrent
// readers and a single writer can proceed without blocking each other. This
// matters because HTTP handlers enqueue while CLI consumers poll and ack
// against the same file.
//
// # Single-writer discipline
//
// SQLite allows only one writer at a time. The pool is limited to a single
// connection so that concurrent engine calls serialise through it instead of
// surfacing "database is locked" errors; the remaining contention window
// (another process holding the file) is covered by Retry.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/avast/retry-go/v4"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps the sql.DB pool for the sqew database. Every engine call receives
// a *DB as a parameter; the pool itself is process-wide, opened at startup
// and closed at shutdown.
type DB struct {
	sql *sql.DB
}

// Options controls Open.
type Options struct {
	// Path is the database file path, or ":memory:" for a throwaway
	// in-memory database (tests).
	Path string

	// ForceRecreate deletes the database file (and its WAL/SHM sidecars)
	// before opening, yielding an empty freshly-schema'd database.
	ForceRecreate bool
}

// schema is the DDL batch applied on every Open. All statements are
// idempotent, so reopening an existing database is a no-op.
const schema = `
CREATE TABLE IF NOT EXISTS queue (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    name          TEXT    NOT NULL UNIQUE,
    dlq_id        INTEGER REFERENCES queue(id) ON DELETE SET NULL,
    max_attempts  INTEGER NOT NULL DEFAULT 5,
    visibility_ms INTEGER NOT NULL DEFAULT 30000
);
CREATE TABLE IF NOT EXISTS message (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    queue_id         INTEGER NOT NULL REFERENCES queue(id) ON DELETE CASCADE,
    payload          TEXT    NOT NULL,
    priority         INTEGER NOT NULL DEFAULT 0,
    idempotency_key  TEXT,
    attempts         INTEGER NOT NULL DEFAULT 0,
    available_at     INTEGER NOT NULL,
    lease_expires_at INTEGER,
    leased_by        TEXT,
    created_at       INTEGER NOT NULL,
    expires_at       INTEGER
);
CREATE INDEX IF NOT EXISTS idx_message_ready
    ON message (queue_id, available_at, id);
CREATE INDEX IF NOT EXISTS idx_message_priority
    ON message (queue_id, priority DESC, available_at, id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_message_idempotency
    ON message (queue_id, idempotency_key) WHERE idempotency_key IS NOT NULL;
`

// Open opens (or creates) the SQLite database described by opts, enables WAL
// journal mode, and applies the schema. The returned DB is safe for
// concurrent use.
func Open(opts Options) (*DB, error) {
	if opts.ForceRecreate && opts.Path != ":memory:" {
		for _, p := range []string{opts.Path, opts.Path + "-wal", opts.Path + "-shm"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("store: remove %q: %w", p, err)
			}
		}
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", opts.Path, err)
	}

	// Serialise all writers through one connection; see package doc.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		// NORMAL synchronous: durable across application crashes; not OS
		// crashes. A committed transaction survives a process exit.
		`PRAGMA synchronous = NORMAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &DB{sql: db}, nil
}

// Begin starts a transaction. The caller must Commit or Rollback on every
// exit path; engine operations use exactly one transaction at a time.
func (d *DB) Begin(ctx context.Context) (*sql.Tx, error) {
	return d.sql.BeginTx(ctx, nil)
}

// Exec runs a single statement outside any explicit transaction.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.sql.ExecContext(ctx, query, args...)
}

// Query runs a query outside any explicit transaction.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.sql.QueryContext(ctx, query, args...)
}

// QueryRow runs a single-row query outside any explicit transaction.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.sql.QueryRowContext(ctx, query, args...)
}

// Compact runs VACUUM, rewriting the database file to reclaim space freed by
// deleted messages. Purely advisory; the database works without it.
func (d *DB) Compact(ctx context.Context) error {
	if _, err := d.sql.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("store: vacuum: %w", err)
	}
	return nil
}

// Close closes the underlying pool. Callers must not use the DB after Close.
func (d *DB) Close() error {
	return d.sql.Close()
}

// IsTransient reports whether err is a retryable SQLite lock error
// (SQLITE_BUSY or SQLITE_LOCKED).
func IsTransient(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// IsConstraint reports whether err is a SQLite constraint violation
// (uniqueness, foreign key, and friends).
func IsConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

// retryAttempts and the delay bounds implement the bounded-backoff policy for
// transient lock contention: up to 50 attempts between 5 and 50 ms.
const (
	retryAttempts  = 50
	retryBaseDelay = 5 * time.Millisecond
	retryMaxDelay  = 50 * time.Millisecond
)

// Retry runs fn, retrying with bounded exponential backoff while fn returns a
// transient lock error. Any other error, including context cancellation,
// aborts immediately and is returned unchanged.
func Retry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryBaseDelay),
		retry.MaxDelay(retryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
	)
}
