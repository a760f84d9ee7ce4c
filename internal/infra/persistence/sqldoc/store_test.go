package sqldoc

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"bifrost/pkg/domain"
)

func TestDollarRebind(t *testing.T) {
	got := Dollar(`SELECT id FROM documents WHERE collection = ? AND name = ? AND id <> ?`)
	want := `SELECT id FROM documents WHERE collection = $1 AND name = $2 AND id <> $3`
	if got != want {
		t.Fatalf("rebind mismatch:\nwant: %s\ngot:  %s", want, got)
	}
	if Question("a = ?") != "a = ?" {
		t.Fatalf("question rebind must be identity")
	}
}

func TestSchemaStatementsFollowOptions(t *testing.T) {
	plain := &Store{dialect: Dialect{Name: "sqlite", PayloadType: "TEXT"}}
	stmts := plain.schemaStatements()
	if !strings.Contains(stmts[0], "payload TEXT NOT NULL") {
		t.Fatalf("expected payload column type, got %s", stmts[0])
	}
	if strings.Contains(stmts[1], "UNIQUE") {
		t.Fatalf("expected non-unique name index, got %s", stmts[1])
	}

	unique := &Store{dialect: Dialect{Name: "postgres", PayloadType: "JSONB"}, opts: domain.StoreOptions{UniqueNames: true}}
	stmts = unique.schemaStatements()
	if !strings.Contains(stmts[0], "JSONB") || !strings.Contains(stmts[1], "UNIQUE INDEX") {
		t.Fatalf("unexpected statements: %v", stmts)
	}
}

func TestWrapClassifiesConnectionFailures(t *testing.T) {
	s := &Store{dialect: Dialect{Name: "postgres"}}
	if err := s.wrap("select", driver.ErrBadConn); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if err := s.wrap("commit", sql.ErrConnDone); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	closed := errors.New("sql: database is closed")
	if err := s.wrap("select", fmt.Errorf("query: %w", closed)); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected closed handle to be unavailable, got %v", err)
	}
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if err := s.wrap("begin tx", refused); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected network failure to be unavailable, got %v", err)
	}
	plain := s.wrap("select", errors.New("syntax error"))
	if errors.Is(plain, domain.ErrStoreUnavailable) {
		t.Fatalf("query errors are not connectivity failures: %v", plain)
	}
	if !strings.Contains(plain.Error(), "postgres select") {
		t.Fatalf("expected annotated error, got %v", plain)
	}
}
