// Package sqldoc stores documents in a single SQL table keyed by collection
// and identifier. The sqlite and postgres drivers share it and differ only
// in their Dialect.
package sqldoc

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"bifrost/pkg/domain"
)

var _ domain.DocumentStore = (*Store)(nil)

// Dialect captures the differences between SQL backends.
type Dialect struct {
	// Name identifies the driver in errors and logs.
	Name string
	// PayloadType is the column type holding the JSON document.
	PayloadType string
	// Rebind rewrites ? placeholders into the backend's native form.
	Rebind func(query string) string
}

// Question keeps ? placeholders unchanged.
func Question(query string) string { return query }

// Dollar rewrites ? placeholders into $1, $2, ...
func Dollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store implements domain.DocumentStore over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	opts    domain.StoreOptions
	newID   func() domain.ObjectID
}

// New prepares the documents table on db and returns a store using it.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts domain.StoreOptions) (*Store, error) {
	if dialect.Rebind == nil {
		dialect.Rebind = Question
	}
	s := &Store{db: db, dialect: dialect, opts: opts, newID: domain.NewObjectID}
	for _, stmt := range s.schemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, s.wrap("ensure schema", err)
		}
	}
	return s, nil
}

func (s *Store) schemaStatements() []string {
	index := `CREATE INDEX IF NOT EXISTS documents_name_idx ON documents (collection, name)`
	if s.opts.UniqueNames {
		index = `CREATE UNIQUE INDEX IF NOT EXISTS documents_name_uniq ON documents (collection, name)`
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT,
		payload ` + s.dialect.PayloadType + ` NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
		index,
	}
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Load resolves key within the collection of kind.
func (s *Store) Load(ctx context.Context, kind domain.Kind, key domain.LookupKey) (domain.Document, bool, error) {
	if err := domain.CheckKey(kind, key); err != nil {
		return nil, false, err
	}
	rows, err := s.query(ctx, s.db, kind, key)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	if len(rows) > 1 {
		return nil, false, domain.DuplicateRecordError{Kind: kind, Key: key.String(), Count: len(rows)}
	}
	doc, err := domain.UnmarshalDocument(rows[0].payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s %s: %w", kind, rows[0].id, err)
	}
	return doc, true, nil
}

// Save inserts or replaces doc inside a transaction.
func (s *Store) Save(ctx context.Context, kind domain.Kind, doc domain.Document) (out domain.Document, retErr error) {
	stored, id, err := domain.PrepareForSave(kind, doc, s.newID)
	if err != nil {
		return nil, err
	}
	payload, err := domain.MarshalDocument(stored)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	var name sql.NullString
	if n, ok := stored.Name(); ok {
		name = sql.NullString{String: n, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.wrap("begin tx", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if name.Valid && s.opts.UniqueNames {
		var holder string
		err := tx.QueryRowContext(ctx, s.dialect.Rebind(`SELECT id FROM documents WHERE collection = ? AND name = ? AND id <> ? LIMIT 1`),
			kind.Collection(), name.String, id.Hex()).Scan(&holder)
		switch {
		case err == nil:
			return nil, domain.DuplicateRecordError{Kind: kind, Key: domain.KeyByName(name.String).String(), Count: 1}
		case !errors.Is(err, sql.ErrNoRows):
			return nil, s.wrap("check unique name", err)
		}
	}

	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`INSERT INTO documents(collection,id,name,payload) VALUES(?,?,?,?) ON CONFLICT(collection,id) DO UPDATE SET name=excluded.name, payload=excluded.payload`),
		kind.Collection(), id.Hex(), name, string(payload)); err != nil {
		return nil, s.wrap("upsert "+kind.Collection(), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, s.wrap("commit", err)
	}
	return stored, nil
}

// Delete removes the single document matched by key.
func (s *Store) Delete(ctx context.Context, kind domain.Kind, key domain.LookupKey) (removed bool, retErr error) {
	if err := domain.CheckKey(kind, key); err != nil {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, s.wrap("begin tx", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	id := key.ID.Hex()
	if !key.UsesID() {
		rows, err := s.query(ctx, tx, kind, key)
		if err != nil {
			return false, err
		}
		switch len(rows) {
		case 0:
			return false, tx.Commit()
		case 1:
			id = rows[0].id
		default:
			return false, domain.DuplicateRecordError{Kind: kind, Key: key.String(), Count: len(rows)}
		}
	}
	res, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`), kind.Collection(), id)
	if err != nil {
		return false, s.wrap("delete "+kind.Collection(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.wrap("rows affected", err)
	}
	if err := tx.Commit(); err != nil {
		return false, s.wrap("commit", err)
	}
	return n == 1, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return domain.StoreUnavailableError{Driver: s.dialect.Name, Err: err}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type row struct {
	id      string
	payload []byte
}

func (s *Store) query(ctx context.Context, q queryer, kind domain.Kind, key domain.LookupKey) ([]row, error) {
	query, arg := `SELECT id, payload FROM documents WHERE collection = ? AND name = ?`, key.Name
	if key.UsesID() {
		query, arg = `SELECT id, payload FROM documents WHERE collection = ? AND id = ?`, key.ID.Hex()
	}
	rows, err := q.QueryContext(ctx, s.dialect.Rebind(query), kind.Collection(), arg)
	if err != nil {
		return nil, s.wrap("select "+kind.Collection(), err)
	}
	defer func() { _ = rows.Close() }()
	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind.Collection(), err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("iterate "+kind.Collection(), err)
	}
	return out, nil
}

// errDBClosed matches the unexported error database/sql returns once Close
// has been called on the handle.
const errDBClosed = "sql: database is closed"

// wrap classifies connection failures as domain.StoreUnavailableError and
// annotates everything else.
func (s *Store) wrap(op string, err error) error {
	if unavailable(err) {
		return domain.StoreUnavailableError{Driver: s.dialect.Name, Err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("%s %s: %w", s.dialect.Name, op, err)
}

func unavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if e.Error() == errDBClosed {
			return true
		}
	}
	return false
}
