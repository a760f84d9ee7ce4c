package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"bifrost/internal/infra/persistence/postgres/testutil"
	"bifrost/internal/infra/persistence/storetest"
	"bifrost/pkg/domain"
)

func openStub(t *testing.T, opts domain.StoreOptions) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore(context.Background(), "", opts)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, conn
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, opts domain.StoreOptions) domain.DocumentStore {
		store, _ := openStub(t, opts)
		return store
	})
}

func TestNewStoreEnsuresSchema(t *testing.T) {
	_, conn := openStub(t, domain.StoreOptions{UniqueNames: true})
	var sawTable, sawIndex bool
	for _, stmt := range conn.Execs {
		up := strings.ToUpper(stmt)
		if strings.Contains(up, "CREATE TABLE IF NOT EXISTS DOCUMENTS") && strings.Contains(up, "JSONB") {
			sawTable = true
		}
		if strings.Contains(up, "CREATE UNIQUE INDEX") {
			sawIndex = true
		}
	}
	if !sawTable || !sawIndex {
		t.Fatalf("expected documents table and unique index, got execs: %v", conn.Execs)
	}
}

func TestStatementsUseDollarPlaceholders(t *testing.T) {
	store, conn := openStub(t, domain.StoreOptions{})
	if _, err := store.Save(context.Background(), domain.KindSample, domain.Document{"name": "S1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	last := conn.Execs[len(conn.Execs)-1]
	if !strings.Contains(last, "$4") || strings.Contains(last, "?") {
		t.Fatalf("expected rebound insert, got %s", last)
	}
}

func TestNewStoreOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("boom") })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://unused", domain.StoreOptions{}); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestNewStorePingFailureIsUnavailable(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	_, err := NewStore(context.Background(), "", domain.StoreOptions{})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestNewStoreSchemaError(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailExec = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "", domain.StoreOptions{}); err == nil {
		t.Fatalf("expected schema error")
	}
}

func TestSaveCommitError(t *testing.T) {
	store, conn := openStub(t, domain.StoreOptions{})
	conn.FailCommit = true
	if _, err := store.Save(context.Background(), domain.KindRun, domain.Document{"name": "R"}); err == nil {
		t.Fatalf("expected commit error")
	}
}

func TestPingAfterOpen(t *testing.T) {
	store, conn := openStub(t, domain.StoreOptions{})
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	conn.FailPing = true
	if err := store.Ping(context.Background()); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
