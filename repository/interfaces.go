package repository

import (
	"context"

	"stock-council/storage"
)

// RepositoryInterface defines all repository operations
type RepositoryInterface interface {
	storage.KV

	Health(ctx context.Context) error
}

// Compile-time interface verification
var _ RepositoryInterface = (*Repository)(nil)
