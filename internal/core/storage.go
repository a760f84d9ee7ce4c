package core

import (
	"context"
	"fmt"
	"strings"

	"bifrost/internal/infra/persistence/bolt"
	"bifrost/internal/infra/persistence/memory"
	"bifrost/internal/infra/persistence/postgres"
	"bifrost/internal/infra/persistence/sqlite"
	"bifrost/pkg/domain"
)

// StorageDriver identifies a concrete DocumentStore implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageBolt     StorageDriver = "bolt"     // embedded bbolt file
)

// StorageConfig selects and configures a document store.
type StorageConfig struct {
	Driver     StorageDriver
	DSN        string
	SQLitePath string
	BoltPath   string
	Options    domain.StoreOptions
}

// ResolvedDriver returns the driver OpenDocumentStore will use. Without an
// explicit driver a postgres:// DSN selects postgres and anything else sqlite.
func (c StorageConfig) ResolvedDriver() StorageDriver {
	if c.Driver != "" {
		return c.Driver
	}
	dsn := strings.ToLower(c.DSN)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return StoragePostgres
	}
	return StorageSQLite
}

// OpenDocumentStore constructs the configured backend.
func OpenDocumentStore(ctx context.Context, cfg StorageConfig) (domain.DocumentStore, error) {
	var (
		store domain.DocumentStore
		err   error
	)
	switch driver := cfg.ResolvedDriver(); driver {
	case StorageMemory:
		store = memory.NewStore(cfg.Options)
	case StorageSQLite:
		store, err = opened(sqlite.NewStore(ctx, cfg.SQLitePath, cfg.Options))
	case StoragePostgres:
		store, err = opened(postgres.NewStore(ctx, cfg.DSN, cfg.Options))
	case StorageBolt:
		store, err = opened(bolt.NewStore(cfg.BoltPath, cfg.Options))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// opened drops the typed nil a failed constructor returns.
func opened[T domain.DocumentStore](store T, err error) (domain.DocumentStore, error) {
	if err != nil {
		return nil, err
	}
	return store, nil
}
