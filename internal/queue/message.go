package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/SecretDeveloper/sqew/internal/store"
)

// consumerID identifies this process in the leased_by column. Per-process is
// enough: leases are advisory and expire on their own; the id only exists so
// operators can tell which consumer last held a message.
var consumerID = uuid.NewString()

const messageColumns = `id, queue_id, payload, priority, idempotency_key,
	attempts, available_at, lease_expires_at, leased_by, created_at, expires_at`

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var (
		m     Message
		key   sql.NullString
		lease sql.NullInt64
		by    sql.NullString
		exp   sql.NullInt64
	)
	err := row.Scan(&m.ID, &m.QueueID, &m.Payload, &m.Priority, &key,
		&m.Attempts, &m.AvailableAt, &lease, &by, &m.CreatedAt, &exp)
	if err != nil {
		return Message{}, err
	}
	if key.Valid {
		m.IdempotencyKey = &key.String
	}
	if lease.Valid {
		m.LeaseExpiresAt = &lease.Int64
	}
	if by.Valid {
		m.LeasedBy = &by.String
	}
	if exp.Valid {
		m.ExpiresAt = &exp.Int64
	}
	return m, nil
}

// EnqueueOpts carries the optional attributes of a new message.
type EnqueueOpts struct {
	// DelayMS postpones first delivery; negative values are clamped to 0.
	DelayMS int64

	// Priority orders delivery ahead of FIFO: higher first.
	Priority int

	// IdempotencyKey, when non-empty, dedupes enqueues within the queue:
	// a repeat enqueue fails with ErrDuplicate and returns the stored
	// message.
	IdempotencyKey string

	// TTLMS, when > 0, discards the message ttl milliseconds after enqueue
	// if it has not been delivered and acked by then.
	TTLMS int64
}

// Enqueue inserts a message with only a delivery delay. See EnqueueWith.
func Enqueue(ctx context.Context, db *store.DB, queueName, payload string, delayMS int64) (Message, error) {
	return EnqueueWith(ctx, db, queueName, payload, EnqueueOpts{DelayMS: delayMS})
}

// EnqueueWith validates payload as JSON and inserts it into the named queue,
// returning the stored record. The payload text is stored verbatim; the
// engine never re-encodes it. Fails with ErrNotFound when the queue is
// absent, ErrInvalid when the payload does not parse, and ErrDuplicate when
// opts.IdempotencyKey is already present in the queue (the returned Message
// is then the existing record).
func EnqueueWith(ctx context.Context, db *store.DB, queueName, payload string, opts EnqueueOpts) (Message, error) {
	q, err := getQueueByName(ctx, db, queueName)
	if err != nil {
		return Message{}, err
	}
	if !json.Valid([]byte(payload)) {
		return Message{}, fmt.Errorf("payload is not valid JSON: %w", ErrInvalid)
	}

	now := nowMS()
	delay := opts.DelayMS
	if delay < 0 {
		delay = 0
	}
	var key *string
	if opts.IdempotencyKey != "" {
		key = &opts.IdempotencyKey
	}
	var expiresAt *int64
	if opts.TTLMS > 0 {
		e := now + opts.TTLMS
		expiresAt = &e
	}

	var created Message
	err = store.Retry(ctx, func() error {
		res, err := db.Exec(ctx,
			`INSERT INTO message (queue_id, payload, priority, idempotency_key, attempts, available_at, created_at, expires_at)
			 VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
			q.ID, payload, opts.Priority, key, now+delay, now, expiresAt)
		if err != nil {
			if key != nil && store.IsConstraint(err) {
				existing, lookupErr := scanMessage(db.QueryRow(ctx,
					`SELECT `+messageColumns+` FROM message WHERE queue_id = ? AND idempotency_key = ?`,
					q.ID, *key))
				if lookupErr == nil {
					created = existing
				}
				return fmt.Errorf("queue %q key %q: %w", queueName, *key, ErrDuplicate)
			}
			return fmt.Errorf("enqueue into %q: %w", queueName, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("enqueue into %q: last insert id: %w", queueName, err)
		}
		created, err = GetMessage(ctx, db, id)
		if err != nil {
			return fmt.Errorf("fetch enqueued message %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		// On ErrDuplicate, created carries the existing record.
		return created, err
	}
	return created, nil
}

// Poll leases up to batch ready messages from the named queue. Each returned
// message has its available_at (and lease_expires_at) atomically advanced to
// now + visibility, hiding it from other pollers until that deadline.
//
// Candidates are ordered by priority descending, then available_at and id
// ascending, and the returned slice preserves that order. visibilityMS ≤ 0
// falls back to the queue's configured default, so a zero-length lease can
// never race two pollers onto the same message.
//
// The select-then-update runs inside one transaction; SQLite's writer
// serialization guarantees no two overlapping polls lease the same ids.
func Poll(ctx context.Context, db *store.DB, queueName string, batch int, visibilityMS int64) ([]Message, error) {
	q, err := getQueueByName(ctx, db, queueName)
	if err != nil {
		return nil, err
	}
	if batch <= 0 {
		return nil, nil
	}
	if visibilityMS <= 0 {
		visibilityMS = q.VisibilityMS
	}

	var leased []Message
	err = store.Retry(ctx, func() error {
		leased = nil
		tx, err := db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("poll %q: begin: %w", queueName, err)
		}
		defer tx.Rollback()

		now := nowMS()

		// Discard messages that outlived their TTL before they can be
		// delivered.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM message WHERE queue_id = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
			q.ID, now); err != nil {
			return fmt.Errorf("poll %q: expire: %w", queueName, err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM message
			 WHERE queue_id = ? AND available_at <= ?
			 ORDER BY priority DESC, available_at, id
			 LIMIT ?`,
			q.ID, now, batch)
		if err != nil {
			return fmt.Errorf("poll %q: select candidates: %w", queueName, err)
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("poll %q: scan candidate: %w", queueName, err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("poll %q: candidates: %w", queueName, err)
		}
		if len(ids) == 0 {
			return tx.Commit()
		}

		placeholders, args := inClause(ids)
		deadline := now + visibilityMS
		updateArgs := append([]any{deadline, deadline, consumerID}, args...)
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE message SET available_at = ?, lease_expires_at = ?, leased_by = ? WHERE id IN (%s)`, placeholders),
			updateArgs...); err != nil {
			return fmt.Errorf("poll %q: lease: %w", queueName, err)
		}

		rows, err = tx.QueryContext(ctx,
			fmt.Sprintf(`SELECT `+messageColumns+` FROM message WHERE id IN (%s)`, placeholders),
			args...)
		if err != nil {
			return fmt.Errorf("poll %q: select leased: %w", queueName, err)
		}
		byID := make(map[int64]Message, len(ids))
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("poll %q: scan leased: %w", queueName, err)
			}
			byID[m.ID] = m
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("poll %q: leased rows: %w", queueName, err)
		}

		// Emit in candidate order: the lease update rewrote available_at,
		// so the delivery order has to come from the pre-update selection.
		for _, id := range ids {
			leased = append(leased, byID[id])
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// Ack deletes the messages identified by ids, signalling successful
// processing. It is an idempotent ensure-absent: ids that are already gone
// are skipped without error. Returns the number of rows removed; empty input
// is a no-op returning 0.
func Ack(ctx context.Context, db *store.DB, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders, args := inClause(ids)

	var deleted int64
	err := store.Retry(ctx, func() error {
		res, err := db.Exec(ctx,
			fmt.Sprintf(`DELETE FROM message WHERE id IN (%s)`, placeholders), args...)
		if err != nil {
			return fmt.Errorf("ack: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("ack: rows affected: %w", err)
		}
		return nil
	})
	return deleted, err
}

// Nack negatively acknowledges the messages identified by ids: attempts is
// incremented, the lease is released, and the message becomes visible again
// after delayMS. Messages whose post-increment attempts reach their queue's
// max_attempts are moved to the queue's DLQ when one is configured (with
// attempts reset to 0 and immediate availability) and deleted otherwise.
//
// Returns (requeued, dropped), where dropped counts both deleted and
// dead-lettered messages. The attempt increment must precede the drop pass:
// the drop predicate compares the post-increment attempts against
// max_attempts.
func Nack(ctx context.Context, db *store.DB, ids []int64, delayMS int64) (requeued, dropped int64, err error) {
	if len(ids) == 0 {
		return 0, 0, nil
	}
	if delayMS < 0 {
		delayMS = 0
	}
	placeholders, args := inClause(ids)

	err = store.Retry(ctx, func() error {
		requeued, dropped = 0, 0
		tx, err := db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("nack: begin: %w", err)
		}
		defer tx.Rollback()

		now := nowMS()

		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE message
			 SET attempts = attempts + 1, available_at = ?,
			     lease_expires_at = NULL, leased_by = NULL
			 WHERE id IN (%s)`, placeholders),
			append([]any{now + delayMS}, args...)...)
		if err != nil {
			return fmt.Errorf("nack: requeue: %w", err)
		}
		updated, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("nack: requeue rows: %w", err)
		}

		// Dead-letter pass: exhausted messages whose queue has a DLQ move
		// there with a fresh attempt budget. The idempotency key is cleared
		// so it cannot collide with an earlier dead-lettered duplicate.
		res, err = tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE message
			 SET queue_id = (SELECT dlq_id FROM queue WHERE queue.id = message.queue_id),
			     attempts = 0, available_at = ?, idempotency_key = NULL
			 WHERE id IN (%s)
			   AND attempts >= (SELECT max_attempts FROM queue WHERE queue.id = message.queue_id)
			   AND (SELECT dlq_id FROM queue WHERE queue.id = message.queue_id) IS NOT NULL`, placeholders),
			append([]any{now}, args...)...)
		if err != nil {
			return fmt.Errorf("nack: dead-letter: %w", err)
		}
		moved, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("nack: dead-letter rows: %w", err)
		}

		// Drop pass: exhausted messages without a DLQ are deleted. Rows
		// just moved have attempts = 0 again, so they no longer match.
		res, err = tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM message
			 WHERE id IN (%s)
			   AND attempts >= (SELECT max_attempts FROM queue WHERE queue.id = message.queue_id)`, placeholders),
			args...)
		if err != nil {
			return fmt.Errorf("nack: drop: %w", err)
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("nack: drop rows: %w", err)
		}

		requeued = updated - moved - deleted
		dropped = moved + deleted
		return tx.Commit()
	})
	if err != nil {
		return 0, 0, err
	}
	return requeued, dropped, nil
}

// Peek returns up to limit messages from the named queue in delivery order
// (priority descending, then available_at and id ascending) without mutating
// anything. Unlike Poll it also lists messages that are not yet ready, so
// operators can inspect delayed and leased messages. A missing queue peeks
// as empty.
func Peek(ctx context.Context, db *store.DB, queueName string, limit int64) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := db.Query(ctx,
		`SELECT `+messageColumns+` FROM message
		 WHERE queue_id = (SELECT id FROM queue WHERE name = ?)
		 ORDER BY priority DESC, available_at, id
		 LIMIT ?`,
		queueName, limit)
	if err != nil {
		return nil, fmt.Errorf("peek %q: %w", queueName, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("peek %q: scan: %w", queueName, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("peek %q: %w", queueName, err)
	}
	return msgs, nil
}

// Purge deletes every message in the named queue and returns the count. A
// missing queue purges 0 messages.
func Purge(ctx context.Context, db *store.DB, queueName string) (int64, error) {
	var deleted int64
	err := store.Retry(ctx, func() error {
		res, err := db.Exec(ctx,
			`DELETE FROM message WHERE queue_id = (SELECT id FROM queue WHERE name = ?)`,
			queueName)
		if err != nil {
			return fmt.Errorf("purge %q: %w", queueName, err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("purge %q: rows affected: %w", queueName, err)
		}
		return nil
	})
	return deleted, err
}

// GetMessage returns the message with the given id, or ErrNotFound.
func GetMessage(ctx context.Context, db *store.DB, id int64) (Message, error) {
	m, err := scanMessage(db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM message WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Message{}, fmt.Errorf("fetch message %d: %w", id, err)
	}
	return m, nil
}

// RemoveMessage hard-deletes a single message by id, bypassing the
// attempt/lease machinery. Administrative escape hatch, not an ack path.
// Reports whether a row was removed.
func RemoveMessage(ctx context.Context, db *store.DB, id int64) (bool, error) {
	var removed bool
	err := store.Retry(ctx, func() error {
		res, err := db.Exec(ctx, `DELETE FROM message WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("remove message %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("remove message %d: rows affected: %w", id, err)
		}
		removed = n > 0
		return nil
	})
	return removed, err
}

// RequeueDLQ moves every message in the named queue's dead-letter queue back
// to the queue itself, resetting attempts to 0 and making them immediately
// available. One statement under one retryable transaction. Returns the
// number of messages moved; fails with ErrInvalid when the queue has no DLQ
// configured.
func RequeueDLQ(ctx context.Context, db *store.DB, queueName string) (int64, error) {
	q, err := getQueueByName(ctx, db, queueName)
	if err != nil {
		return 0, err
	}
	if q.DLQID == nil {
		return 0, fmt.Errorf("queue %q has no dead-letter queue: %w", queueName, ErrInvalid)
	}

	var moved int64
	err = store.Retry(ctx, func() error {
		res, err := db.Exec(ctx,
			`UPDATE message
			 SET queue_id = ?, attempts = 0, available_at = ?,
			     lease_expires_at = NULL, leased_by = NULL
			 WHERE queue_id = ?`,
			q.ID, nowMS(), *q.DLQID)
		if err != nil {
			return fmt.Errorf("requeue dlq of %q: %w", queueName, err)
		}
		moved, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("requeue dlq of %q: rows affected: %w", queueName, err)
		}
		return nil
	})
	return moved, err
}
