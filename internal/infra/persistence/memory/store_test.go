package memory

import (
	"context"
	"errors"
	"testing"

	"bifrost/internal/infra/persistence/storetest"
	"bifrost/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, opts domain.StoreOptions) domain.DocumentStore {
		s := NewStore(opts)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStoreSnapshots(t *testing.T) {
	ctx := context.Background()
	store := NewStore(domain.StoreOptions{})
	saved, err := store.Save(ctx, domain.KindSample, domain.Document{"name": "S1", "categories": map[string]any{}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	snapshot := store.ExportState()
	if len(snapshot["samples"]) != 1 {
		t.Fatalf("expected one sample in snapshot, got %v", snapshot)
	}

	store.ImportState(Snapshot{})
	if _, found, _ := store.Load(ctx, domain.KindSample, domain.KeyByName("S1")); found {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	id, _ := saved.ID()
	got, found, err := store.Load(ctx, domain.KindSample, domain.KeyByID(id))
	if err != nil || !found {
		t.Fatalf("expected restored sample, found=%v err=%v", found, err)
	}

	if got["name"] != "S1" {
		t.Fatalf("unexpected restored sample %v", got)
	}
	snapshot["samples"][id]["name"] = "changed"
	again, _, _ := store.Load(ctx, domain.KindSample, domain.KeyByID(id))
	if again["name"] != "S1" {
		t.Fatalf("snapshot must not alias store state")
	}
}

func TestStoreIDGenerator(t *testing.T) {
	fixed := domain.ObjectID("00000000000000000000abcd")
	store := NewStore(domain.StoreOptions{}, WithIDGenerator(func() domain.ObjectID { return fixed }))
	saved, err := store.Save(context.Background(), domain.KindRun, domain.Document{"name": "R1"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id, _ := saved.ID(); id != fixed {
		t.Fatalf("expected generated id %s, got %s", fixed, id)
	}
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	store := NewStore(domain.StoreOptions{})
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected unavailable after close, got %v", err)
	}
	_, saveErr := store.Save(ctx, domain.KindRun, domain.Document{})
	_, _, loadErr := store.Load(ctx, domain.KindRun, domain.KeyByName("x"))
	_, deleteErr := store.Delete(ctx, domain.KindRun, domain.KeyByName("x"))
	for op, err := range map[string]error{"save": saveErr, "load": loadErr, "delete": deleteErr} {
		if !errors.Is(err, ErrClosed) || !errors.Is(err, domain.ErrStoreUnavailable) {
			t.Fatalf("%s: expected unavailable ErrClosed, got %v", op, err)
		}
	}
}
