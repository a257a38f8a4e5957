package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"stock-council/storage"
)

// getTestDB returns a repository connected to the test database.
// If TEST_DATABASE_URL is not set, the test is skipped.
func getTestDB(t *testing.T) *Repository {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := NewRepository(ctx, connString)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	return repo
}

// cleanupKeys removes all test keys
func cleanupKeys(t *testing.T, repo *Repository) {
	t.Helper()
	ctx := context.Background()
	repo.pool.Exec(ctx, "DELETE FROM kv_store WHERE key LIKE 'test:%'")
}

func TestRepository_Health(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()

	if err := repo.Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}

func TestRepository_KV(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupKeys(t, repo)

	ctx := context.Background()

	if _, err := repo.Get(ctx, "test:missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() missing error = %v, want storage.ErrNotFound", err)
	}

	if err := repo.Set(ctx, "test:run-state", []byte(`{"version":"1"}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(ctx, "test:run-state", []byte(`{"version":"2"}`)); err != nil {
		t.Fatalf("Set() upsert error = %v", err)
	}

	got, err := repo.Get(ctx, "test:run-state")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"version":"2"}` {
		t.Errorf("Get() = %s, want upserted value", got)
	}

	if err := repo.Delete(ctx, "test:run-state"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "test:run-state"); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
	if _, err := repo.Get(ctx, "test:run-state"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want storage.ErrNotFound", err)
	}
}

func TestRepository_Transaction(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupKeys(t, repo)

	ctx := context.Background()

	tx, txRepo, err := repo.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if err := txRepo.Set(ctx, "test:tx", []byte("rolled back")); err != nil {
		t.Fatalf("Set() in tx error = %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if _, err := repo.Get(ctx, "test:tx"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after rollback error = %v, want storage.ErrNotFound", err)
	}
}
