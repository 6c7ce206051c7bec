// Package queue implements the sqew queue engine: enqueue, poll (lease),
// ack, nack, peek, purge, queue management, and DLQ requeue, all as
// transactional operations over the embedded store.
//
// # Concurrency contract
//
// Every operation owns at most one transaction at a time and releases it on
// every exit path. The select-then-update inside Poll runs under a single
// transaction so that between `now` being sampled and the update committing,
// no other poller observes the same ids as ready. Transient lock errors are
// retried with bounded backoff before being surfaced; all other errors
// propagate unchanged, wrapped with context.
//
// # Delivery semantics
//
// At-least-once. A consumer that polls but never acks causes the message to
// become visible again at available_at. Duplicate delivery after a crash or
// a slow consumer is expected and acceptable.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SecretDeveloper/sqew/internal/store"
)

// nowMS returns the current wall clock in absolute milliseconds, the unit
// used by available_at, created_at and friends.
func nowMS() int64 {
	return time.Now().UnixMilli()
}

const queueColumns = `id, name, dlq_id, max_attempts, visibility_ms`

// scanQueue scans a queue row from any row-like source.
func scanQueue(row interface{ Scan(...any) error }) (Queue, error) {
	var (
		q   Queue
		dlq sql.NullInt64
	)
	if err := row.Scan(&q.ID, &q.Name, &dlq, &q.MaxAttempts, &q.VisibilityMS); err != nil {
		return Queue{}, err
	}
	if dlq.Valid {
		q.DLQID = &dlq.Int64
	}
	return q, nil
}

// getQueueByName fetches a queue row, translating sql.ErrNoRows into
// ErrNotFound with the queue name in the message.
func getQueueByName(ctx context.Context, db *store.DB, name string) (Queue, error) {
	q, err := scanQueue(db.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM queue WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return Queue{}, fmt.Errorf("queue %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Queue{}, fmt.Errorf("fetch queue %q: %w", name, err)
	}
	return q, nil
}

// ListQueues returns all queues ordered by id.
func ListQueues(ctx context.Context, db *store.DB) ([]Queue, error) {
	rows, err := db.Query(ctx, `SELECT `+queueColumns+` FROM queue ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var queues []Queue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, fmt.Errorf("list queues: scan: %w", err)
		}
		queues = append(queues, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	return queues, nil
}

// CreateQueueOpts carries the optional attributes of a new queue.
type CreateQueueOpts struct {
	// DLQ names an existing queue to use as the dead-letter target.
	DLQ string

	// VisibilityMS is the default lease duration for polls that do not
	// supply one. Values < 1 fall back to the schema default (30000), so a
	// zero-visibility lease can never be configured.
	VisibilityMS int64
}

const defaultVisibilityMS = 30_000

// CreateQueue creates a queue with the default options.
func CreateQueue(ctx context.Context, db *store.DB, name string, maxAttempts int) (Queue, error) {
	return CreateQueueWith(ctx, db, name, maxAttempts, CreateQueueOpts{})
}

// CreateQueueWith creates a queue and returns the stored record. It fails
// with ErrAlreadyExists when the name is taken, ErrInvalid when the name is
// empty or maxAttempts < 1, and ErrNotFound when opts.DLQ names a queue that
// does not exist.
func CreateQueueWith(ctx context.Context, db *store.DB, name string, maxAttempts int, opts CreateQueueOpts) (Queue, error) {
	if name == "" {
		return Queue{}, fmt.Errorf("queue name must not be empty: %w", ErrInvalid)
	}
	if maxAttempts < 1 {
		return Queue{}, fmt.Errorf("max_attempts must be >= 1, got %d: %w", maxAttempts, ErrInvalid)
	}
	visibility := opts.VisibilityMS
	if visibility < 1 {
		visibility = defaultVisibilityMS
	}

	var dlqID *int64
	if opts.DLQ != "" {
		dlq, err := getQueueByName(ctx, db, opts.DLQ)
		if err != nil {
			return Queue{}, fmt.Errorf("resolve dlq: %w", err)
		}
		dlqID = &dlq.ID
	}

	var created Queue
	err := store.Retry(ctx, func() error {
		res, err := db.Exec(ctx,
			`INSERT INTO queue (name, dlq_id, max_attempts, visibility_ms) VALUES (?, ?, ?, ?)`,
			name, dlqID, maxAttempts, visibility)
		if err != nil {
			if store.IsConstraint(err) {
				return fmt.Errorf("queue %q: %w", name, ErrAlreadyExists)
			}
			return fmt.Errorf("create queue %q: %w", name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("create queue %q: last insert id: %w", name, err)
		}
		created = Queue{ID: id, Name: name, DLQID: dlqID, MaxAttempts: maxAttempts, VisibilityMS: visibility}
		return nil
	})
	if err != nil {
		return Queue{}, err
	}
	return created, nil
}

// ShowQueue returns the queue named name, or ErrNotFound.
func ShowQueue(ctx context.Context, db *store.DB, name string) (Queue, error) {
	return getQueueByName(ctx, db, name)
}

// DeleteQueue deletes the named queue in a single transaction; the schema's
// ON DELETE CASCADE removes all of its messages. It reports whether a row
// was removed.
func DeleteQueue(ctx context.Context, db *store.DB, name string) (bool, error) {
	var removed bool
	err := store.Retry(ctx, func() error {
		res, err := db.Exec(ctx, `DELETE FROM queue WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("delete queue %q: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete queue %q: rows affected: %w", name, err)
		}
		removed = n > 0
		return nil
	})
	return removed, err
}

// QueueStats returns the ready/leased/dlq counts for the named queue.
// Ready counts messages with available_at ≤ now; leased counts live leases;
// dlq counts messages sitting in the associated dead-letter queue.
func QueueStats(ctx context.Context, db *store.DB, name string) (Stats, error) {
	q, err := getQueueByName(ctx, db, name)
	if err != nil {
		return Stats{}, err
	}
	now := nowMS()

	var s Stats
	if err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM message WHERE queue_id = ? AND available_at <= ?`,
		q.ID, now).Scan(&s.Ready); err != nil {
		return Stats{}, fmt.Errorf("stats %q: count ready: %w", name, err)
	}
	if err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM message WHERE queue_id = ? AND lease_expires_at IS NOT NULL AND lease_expires_at > ?`,
		q.ID, now).Scan(&s.Leased); err != nil {
		return Stats{}, fmt.Errorf("stats %q: count leased: %w", name, err)
	}
	if q.DLQID != nil {
		if err := db.QueryRow(ctx,
			`SELECT COUNT(*) FROM message WHERE queue_id = ?`, *q.DLQID).Scan(&s.DLQ); err != nil {
			return Stats{}, fmt.Errorf("stats %q: count dlq: %w", name, err)
		}
	}
	return s, nil
}

// Compact triggers a storage-level compaction. Purely advisory.
func Compact(ctx context.Context, db *store.DB) error {
	return store.Retry(ctx, func() error { return db.Compact(ctx) })
}

// inClause builds a "?,?,?" placeholder list and the matching args slice for
// an `id IN (...)` predicate.
func inClause(ids []int64) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return placeholders, args
}
