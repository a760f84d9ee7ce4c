package fs

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/blake2b"

	"bifrost/internal/blob/blobtest"
	"bifrost/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStoreConformance(t *testing.T) {
	blobtest.Run(t, newTempStore(t))
}

func TestStore_ETagIsBlake2b(t *testing.T) {
	store := newTempStore(t)
	info, err := store.Put(context.Background(), "k/v.txt", bytes.NewReader([]byte("payload")), core.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	sum := blake2b.Sum256([]byte("payload"))
	if info.ETag != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected etag %s", info.ETag)
	}
}

func TestStore_PathTraversal(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"../escape.txt", "a/../../b", "/abs", " ", "x.meta"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
			t.Fatalf("expected invalid key error for %q", key)
		}
	}
	if _, err := store.Put(ctx, "dir/report..final.txt", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("dots inside a name are allowed: %v", err)
	}
}

func TestStore_DefaultRoot(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	store, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Root() != DefaultRoot || store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected store %+v", store)
	}
	if _, err := os.Stat(filepath.Join(dir, "blobdata")); err != nil {
		t.Fatalf("expected default root created: %v", err)
	}
}

func TestStore_CorruptSidecar(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "c/file", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Root(), "c", "file.meta"), []byte("{"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, err := store.Head(ctx, "c/file"); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := store.List(ctx, ""); err == nil {
		t.Fatalf("expected list to surface decode error")
	}
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "k", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected context error")
	}
}
