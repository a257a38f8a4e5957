package repository

import (
	"context"
	"errors"
	"fmt"

	"stock-council/storage"

	"github.com/jackc/pgx/v5"
)

// Get returns the blob stored under key
func (r *Repository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := r.db.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query kv_store: %w", err)
	}

	return value, nil
}

// Set upserts the blob stored under key
func (r *Repository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to upsert kv_store: %w", err)
	}

	return nil
}

// Delete removes key; a missing key is not an error
func (r *Repository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete from kv_store: %w", err)
	}
	return nil
}
