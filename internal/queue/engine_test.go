package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/SecretDeveloper/sqew/internal/queue"
	"github.com/SecretDeveloper/sqew/internal/store"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// openTestDB opens a fresh database file under t.TempDir and registers
// t.Cleanup to close it, ensuring the pool is released even when tests fail.
func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(store.Options{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// ---------------------------------------------------------------------------
// Queue lifecycle
// ---------------------------------------------------------------------------

func TestQueue_CreateListShowDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Initially empty.
	queues, err := queue.ListQueues(ctx, db)
	if err != nil {
		t.Fatalf("ListQueues: %v", err)
	}
	if len(queues) != 0 {
		t.Fatalf("ListQueues on empty store returned %d queues, want 0", len(queues))
	}

	q, err := queue.CreateQueue(ctx, db, "demo", 2)
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	if q.Name != "demo" {
		t.Errorf("created queue Name = %q, want %q", q.Name, "demo")
	}
	if q.MaxAttempts != 2 {
		t.Errorf("created queue MaxAttempts = %d, want 2", q.MaxAttempts)
	}

	queues, err = queue.ListQueues(ctx, db)
	if err != nil {
		t.Fatalf("ListQueues: %v", err)
	}
	if len(queues) != 1 {
		t.Fatalf("ListQueues returned %d queues, want 1", len(queues))
	}

	got, err := queue.ShowQueue(ctx, db, "demo")
	if err != nil {
		t.Fatalf("ShowQueue: %v", err)
	}
	if got.ID != q.ID {
		t.Errorf("ShowQueue ID = %d, want %d", got.ID, q.ID)
	}

	removed, err := queue.DeleteQueue(ctx, db, "demo")
	if err != nil {
		t.Fatalf("DeleteQueue: %v", err)
	}
	if !removed {
		t.Error("DeleteQueue reported no row removed")
	}

	queues, err = queue.ListQueues(ctx, db)
	if err != nil {
		t.Fatalf("ListQueues: %v", err)
	}
	if len(queues) != 0 {
		t.Errorf("ListQueues after delete returned %d queues, want 0", len(queues))
	}
}

func TestCreateQueue_DuplicateName(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := queue.CreateQueue(ctx, db, "dup", 5); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	_, err := queue.CreateQueue(ctx, db, "dup", 5)
	if !errors.Is(err, queue.ErrAlreadyExists) {
		t.Errorf("duplicate CreateQueue error = %v, want ErrAlreadyExists", err)
	}
}

func TestCreateQueue_RejectsInvalidInput(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := queue.CreateQueue(ctx, db, "", 5); !errors.Is(err, queue.ErrInvalid) {
		t.Errorf("empty name error = %v, want ErrInvalid", err)
	}
	if _, err := queue.CreateQueue(ctx, db, "q", 0); !errors.Is(err, queue.ErrInvalid) {
		t.Errorf("max_attempts=0 error = %v, want ErrInvalid", err)
	}
}

func TestShowQueue_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := queue.ShowQueue(context.Background(), db, "ghost")
	if !errors.Is(err, queue.ErrNotFound) {
		t.Errorf("ShowQueue error = %v, want ErrNotFound", err)
	}
}

func TestDeleteQueue_MissingReportsFalse(t *testing.T) {
	db := openTestDB(t)

	removed, err := queue.DeleteQueue(context.Background(), db, "ghost")
	if err != nil {
		t.Fatalf("DeleteQueue: %v", err)
	}
	if removed {
		t.Error("DeleteQueue of missing queue reported a removed row")
	}
}

func TestDeleteQueue_CascadesToMessages(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := queue.CreateQueue(ctx, db, "doomed", 5); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	m, err := queue.Enqueue(ctx, db, "doomed", `{"n":1}`, 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if _, err := queue.DeleteQueue(ctx, db, "doomed"); err != nil {
		t.Fatalf("DeleteQueue: %v", err)
	}

	if _, err := queue.GetMessage(ctx, db, m.ID); !errors.Is(err, queue.ErrNotFound) {
		t.Errorf("GetMessage after cascade = %v, want ErrNotFound", err)
	}
}

func TestCreateQueue_WithDLQ(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	dlq, err := queue.CreateQueue(ctx, db, "orders-dlq", 5)
	if err != nil {
		t.Fatalf("CreateQueue dlq: %v", err)
	}
	q, err := queue.CreateQueueWith(ctx, db, "orders", 3, queue.CreateQueueOpts{DLQ: "orders-dlq"})
	if err != nil {
		t.Fatalf("CreateQueueWith: %v", err)
	}
	if q.DLQID == nil || *q.DLQID != dlq.ID {
		t.Errorf("DLQID = %v, want %d", q.DLQID, dlq.ID)
	}

	// DLQ must already exist.
	_, err = queue.CreateQueueWith(ctx, db, "other", 3, queue.CreateQueueOpts{DLQ: "ghost"})
	if !errors.Is(err, queue.ErrNotFound) {
		t.Errorf("create with missing dlq error = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Stats and compact
// ---------------------------------------------------------------------------

func TestStats_ReadyCountsOnlyVisible(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := queue.CreateQueue(ctx, db, "q4", 5); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	if _, err := queue.Enqueue(ctx, db, "q4", `{"n":1}`, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := queue.Enqueue(ctx, db, "q4", `{"n":2}`, 1000); err != nil {
		t.Fatalf("Enqueue delayed: %v", err)
	}

	stats, err := queue.QueueStats(ctx, db, "q4")
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats.Ready < 1 {
		t.Errorf("Ready = %d, want >= 1", stats.Ready)
	}
	if stats.Ready > 1 {
		t.Errorf("Ready = %d includes the delayed message, want 1", stats.Ready)
	}
}

func TestStats_LeasedAndDLQCounts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := queue.CreateQueue(ctx, db, "work-dlq", 5); err != nil {
		t.Fatalf("CreateQueue dlq: %v", err)
	}
	if _, err := queue.CreateQueueWith(ctx, db, "work", 1, queue.CreateQueueOpts{DLQ: "work-dlq"}); err != nil {
		t.Fatalf("CreateQueueWith: %v", err)
	}

	if _, err := queue.Enqueue(ctx, db, "work", `{"a":1}`, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	doomed, err := queue.Enqueue(ctx, db, "work", `{"b":2}`, 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Lease one message; dead-letter the other (max_attempts = 1).
	if _, err := queue.Poll(ctx, db, "work", 1, 60_000); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if _, _, err := queue.Nack(ctx, db, []int64{doomed.ID}, 0); err != nil {
		t.Fatalf("Nack: %v", err)
	}

	stats, err := queue.QueueStats(ctx, db, "work")
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats.Leased != 1 {
		t.Errorf("Leased = %d, want 1", stats.Leased)
	}
	if stats.DLQ != 1 {
		t.Errorf("DLQ = %d, want 1", stats.DLQ)
	}
}

func TestCompact_NoError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := queue.CreateQueue(ctx, db, "q", 5); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	if err := queue.Compact(ctx, db); err != nil {
		t.Errorf("Compact: %v", err)
	}
}
