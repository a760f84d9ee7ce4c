// Package postgres persists documents to Postgres through the pgx
// database/sql driver, storing each document as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"bifrost/internal/infra/persistence/sqldoc"
	"bifrost/pkg/domain"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/bifrost?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect is the Postgres flavour of the shared document table.
var Dialect = sqldoc.Dialect{Name: "postgres", PayloadType: "JSONB", Rebind: sqldoc.Dollar}

// Store is a Postgres-backed document store.
type Store struct {
	*sqldoc.Store
}

// NewStore connects to dsn (falls back to defaultDSN), verifies the
// connection and ensures the documents table exists.
func NewStore(ctx context.Context, dsn string, opts domain.StoreOptions) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, domain.StoreUnavailableError{Driver: Dialect.Name, Err: fmt.Errorf("ping postgres: %w", err)}
	}
	inner, err := sqldoc.New(ctx, db, Dialect, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner}, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
