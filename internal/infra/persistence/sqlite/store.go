// Package sqlite persists documents to a local SQLite database through the
// pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"bifrost/internal/infra/persistence/sqldoc"
	"bifrost/pkg/domain"
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "bifrost.db"

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Dialect is the SQLite flavour of the shared document table.
var Dialect = sqldoc.Dialect{Name: "sqlite", PayloadType: "TEXT", Rebind: sqldoc.Question}

// Store is a SQLite-backed document store.
type Store struct {
	*sqldoc.Store
	path string
}

// NewStore opens (creating when needed) the database at path.
func NewStore(ctx context.Context, path string, opts domain.StoreOptions) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	inner, err := sqldoc.New(ctx, db, Dialect, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner, path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
