package app

import (
	"context"
	"errors"
	"fmt"

	"stock-council/config"
	"stock-council/repository"
	"stock-council/services"
	"stock-council/storage"
)

// OpenStorage opens the key-value backend selected by cfg.Storage.Backend.
// Network backends are retried with cfg.Retry before giving up.
func OpenStorage(ctx context.Context, cfg *config.Config) (storage.KV, error) {
	sc := cfg.Storage
	retry := services.RetryConfig{
		MaxRetries:     cfg.Retry.MaxRetries,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}

	switch sc.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil

	case config.BackendFile:
		var opts []storage.FileOption
		if sc.Passphrase != "" {
			c, err := storage.NewCipher(sc.Passphrase)
			if err != nil {
				return nil, fmt.Errorf("failed to set up storage encryption: %w", err)
			}
			opts = append(opts, storage.WithEncryption(c))
		}
		return storage.NewFileStore(sc.DataDir, opts...)

	case config.BackendSQLite:
		return storage.NewSQLiteStore(sc.SQLitePath)

	case config.BackendRedis:
		var store *storage.RedisStore
		err := services.WithRetry(ctx, retry, func() error {
			var err error
			store, err = storage.NewRedisStore(ctx, sc.RedisAddr,
				storage.WithPassword(sc.RedisPassword),
				storage.WithDB(sc.RedisDB),
				storage.WithPrefix(sc.RedisPrefix),
				storage.WithTTL(sc.RedisTTL))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store, nil

	case config.BackendPostgres:
		if !cfg.HasDatabase() {
			return nil, errors.New("postgres backend needs DATABASE_URL")
		}
		var repo *repository.Repository
		err := services.WithRetry(ctx, retry, func() error {
			var err error
			repo, err = repository.NewRepository(ctx, sc.DatabaseURL)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return repo, nil
	}

	return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
}

// healthProbeKey is read to check backends that have no ping of their own.
const healthProbeKey = "stock-council:health"

type healthChecker interface {
	Health(ctx context.Context) error
}

// probeStorage pings kv, or reads a key that normally does not exist.
func probeStorage(ctx context.Context, kv storage.KV) error {
	if hc, ok := kv.(healthChecker); ok {
		return hc.Health(ctx)
	}
	_, err := kv.Get(ctx, healthProbeKey)
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
