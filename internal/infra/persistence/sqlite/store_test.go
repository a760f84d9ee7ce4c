package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"bifrost/internal/infra/persistence/storetest"
	"bifrost/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, opts domain.StoreOptions) domain.DocumentStore {
		s, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "docs.db"), opts)
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "bifrost.db")
	store, err := NewStore(ctx, path, domain.StoreOptions{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("expected path %s, got %s", path, store.Path())
	}
	saved, err := store.Save(ctx, domain.KindComponent, domain.Document{"name": "whats_my_species", "requirements": nil})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(ctx, path, domain.StoreOptions{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	id, _ := saved.ID()
	got, found, err := reopened.Load(ctx, domain.KindComponent, domain.KeyByID(id))
	if err != nil || !found {
		t.Fatalf("expected persisted component, found=%v err=%v", found, err)
	}
	if v, ok := got["requirements"]; !ok || v != nil {
		t.Fatalf("expected null requirements to survive, got %v", got)
	}
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, filepath.Join(t.TempDir(), "closed.db"), domain.StoreOptions{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := store.Load(ctx, domain.KindSample, domain.KeyByName("S1")); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("load: expected store unavailable, got %v", err)
	}
	if _, err := store.Save(ctx, domain.KindSample, domain.Document{"name": "S1"}); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("save: expected store unavailable, got %v", err)
	}
	if _, err := store.Delete(ctx, domain.KindSample, domain.KeyByName("S1")); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("delete: expected store unavailable, got %v", err)
	}
}

func TestStoreInMemory(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, MemoryPath, domain.StoreOptions{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := store.Save(ctx, domain.KindHost, domain.Document{"name": "h"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, found, err := store.Load(ctx, domain.KindHost, domain.KeyByName("h")); err != nil || !found {
		t.Fatalf("expected host, found=%v err=%v", found, err)
	}
}
