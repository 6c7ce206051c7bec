package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/SecretDeveloper/sqew/internal/store"
)

func openAt(t *testing.T, opts store.Options) *store.DB {
	t.Helper()
	db, err := store.Open(opts)
	if err != nil {
		t.Fatalf("store.Open(%+v): %v", opts, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_CreatesFileAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqew.db")
	db := openAt(t, store.Options{Path: path})

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}

	// The schema must be queryable immediately.
	var n int
	if err := db.QueryRow(context.Background(), `SELECT COUNT(*) FROM queue`).Scan(&n); err != nil {
		t.Fatalf("query queue table: %v", err)
	}
	if n != 0 {
		t.Errorf("fresh queue table has %d rows, want 0", n)
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqew.db")
	ctx := context.Background()

	db := openAt(t, store.Options{Path: path})
	if _, err := db.Exec(ctx, `INSERT INTO queue (name) VALUES ('kept')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = db.Close()

	db2 := openAt(t, store.Options{Path: path})
	var n int
	if err := db2.QueryRow(ctx, `SELECT COUNT(*) FROM queue`).Scan(&n); err != nil {
		t.Fatalf("count after reopen: %v", err)
	}
	if n != 1 {
		t.Errorf("queue rows after reopen = %d, want 1", n)
	}
}

func TestOpen_ForceRecreateDropsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqew.db")
	ctx := context.Background()

	db := openAt(t, store.Options{Path: path})
	if _, err := db.Exec(ctx, `INSERT INTO queue (name) VALUES ('doomed')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = db.Close()

	db2 := openAt(t, store.Options{Path: path, ForceRecreate: true})
	var n int
	if err := db2.QueryRow(ctx, `SELECT COUNT(*) FROM queue`).Scan(&n); err != nil {
		t.Fatalf("count after recreate: %v", err)
	}
	if n != 0 {
		t.Errorf("queue rows after force recreate = %d, want 0", n)
	}
}

func TestIsConstraint_UniqueViolation(t *testing.T) {
	db := openAt(t, store.Options{Path: filepath.Join(t.TempDir(), "sqew.db")})
	ctx := context.Background()

	if _, err := db.Exec(ctx, `INSERT INTO queue (name) VALUES ('dup')`); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := db.Exec(ctx, `INSERT INTO queue (name) VALUES ('dup')`)
	if err == nil {
		t.Fatal("duplicate insert succeeded, want UNIQUE violation")
	}
	if !store.IsConstraint(err) {
		t.Errorf("IsConstraint(%v) = false, want true", err)
	}
	if store.IsTransient(err) {
		t.Errorf("IsTransient(%v) = true for a constraint error", err)
	}
}

func TestClassifiers_IgnoreForeignErrors(t *testing.T) {
	err := errors.New("some unrelated failure")
	if store.IsConstraint(err) {
		t.Error("IsConstraint(true) for a non-sqlite error")
	}
	if store.IsTransient(err) {
		t.Error("IsTransient(true) for a non-sqlite error")
	}
}

func TestRetry_NonTransientFailsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := store.Retry(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Retry error = %v, want wrapped boom", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times for a non-transient error, want 1", calls)
	}
}

func TestRetry_SuccessPassesThrough(t *testing.T) {
	if err := store.Retry(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("Retry of succeeding fn: %v", err)
	}
}

func TestCompact_NoError(t *testing.T) {
	db := openAt(t, store.Options{Path: filepath.Join(t.TempDir(), "sqew.db")})
	if err := db.Compact(context.Background()); err != nil {
		t.Errorf("Compact: %v", err)
	}
}
