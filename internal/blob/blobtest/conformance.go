// Package blobtest holds the behaviour every core.Store driver is tested
// against.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"bifrost/internal/blob/core"
)

// Run exercises put, get, head, list and delete semantics on store, which
// must start empty.
func Run(t *testing.T, store core.Store) {
	t.Helper()
	ctx := context.Background()

	meta := map[string]string{"owner_id": "000000000000000000000001", "filename": "report.txt"}
	info, err := store.Put(ctx, "samples/a/f1/report.txt", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "text/plain", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "samples/a/f1/report.txt" || info.Size != 5 || info.ContentType != "text/plain" {
		t.Fatalf("unexpected info %+v", info)
	}
	meta["filename"] = "mutated"
	if _, err := store.Put(ctx, "samples/a/f1/report.txt", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists on duplicate put, got %v", err)
	}

	head, err := store.Head(ctx, "samples/a/f1/report.txt")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Metadata["filename"] != "report.txt" || head.Metadata["owner_id"] != "000000000000000000000001" {
		t.Fatalf("metadata not preserved: %+v", head.Metadata)
	}
	got, rc, err := store.Get(ctx, "samples/a/f1/report.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(body) != "hello" || got.Size != 5 {
		t.Fatalf("unexpected get %q %+v", body, got)
	}

	if _, err := store.Put(ctx, "samples/a/f2/other.bin", bytes.NewReader([]byte{1, 2}), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	if _, err := store.Put(ctx, "samples/b/f3/x.txt", bytes.NewReader(nil), core.PutOptions{}); err != nil {
		t.Fatalf("put third: %v", err)
	}
	list, err := store.List(ctx, "samples/a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "samples/a/f1/report.txt" || list[1].Key != "samples/a/f2/other.bin" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("expected three blobs, got %d (%v)", len(all), err)
	}

	if _, _, err := store.Get(ctx, "samples/missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if _, err := store.Head(ctx, "samples/missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}

	ok, err := store.Delete(ctx, "samples/a/f1/report.txt")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "samples/a/f1/report.txt")
	if err != nil || ok {
		t.Fatalf("second delete should be false, got %v %v", ok, err)
	}
	if _, err := store.Put(ctx, "samples/a/f1/report.txt", bytes.NewReader([]byte("again")), core.PutOptions{}); err != nil {
		t.Fatalf("put after delete: %v", err)
	}
}
