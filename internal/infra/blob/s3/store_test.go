package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"bifrost/internal/blob/blobtest"
	"bifrost/internal/blob/core"
)

func TestMockConformance(t *testing.T) {
	blobtest.Run(t, NewMockForTests())
}

func TestListFollowsContinuationTokens(t *testing.T) {
	ctx := context.Background()
	rt := &mockRoundTripper{state: make(map[string]mockObj), pageSize: 2}
	store := newMockStore(rt)
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("runs/r1/f%d/log.txt", i)
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 5 {
		t.Fatalf("expected 5 entries across pages, got %d", len(infos))
	}
	for i, info := range infos {
		if want := fmt.Sprintf("runs/r1/f%d/log.txt", i); info.Key != want {
			t.Fatalf("entry %d: want %s, got %s", i, want, info.Key)
		}
	}
}

func TestMockAcceptsEmptyPutBody(t *testing.T) {
	rt := &mockRoundTripper{state: make(map[string]mockObj)}
	for _, body := range []io.ReadCloser{nil, http.NoBody} {
		req, err := http.NewRequest(http.MethodPut, "https://mock.s3.local/mock-bucket/samples/s1/f1/empty.txt", nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Body = body
		resp, err := rt.RoundTrip(req)
		if err != nil {
			t.Fatalf("round trip: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	}
	obj, ok := rt.state["samples/s1/f1/empty.txt"]
	if !ok || len(obj.body) != 0 {
		t.Fatalf("expected empty object stored, got %+v (found=%v)", obj, ok)
	}

	store := newMockStore(rt)
	ctx := context.Background()
	if _, err := store.Put(ctx, "samples/s1/f2/empty.txt", bytes.NewReader(nil), core.PutOptions{}); err != nil {
		t.Fatalf("put empty: %v", err)
	}
	info, err := store.Head(ctx, "samples/s1/f2/empty.txt")
	if err != nil || info.Size != 0 {
		t.Fatalf("expected empty object, got %+v err=%v", info, err)
	}
}

func TestDeleteMissingReportsFalse(t *testing.T) {
	store := NewMockForTests()
	ok, err := store.Delete(context.Background(), "nothing/here")
	if err != nil || ok {
		t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestNewWithStaticCredentials(t *testing.T) {
	store, err := New(context.Background(), Config{
		Bucket:          "bifrost",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Bucket() != "bifrost" || store.Driver() != core.DriverS3 {
		t.Fatalf("unexpected store %+v", store)
	}
	creds, err := store.client.Options().Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "minio" {
		t.Fatalf("expected static credentials, got %s", creds.AccessKeyID)
	}
}

func TestIsNotFound(t *testing.T) {
	if isNotFound(errors.New("plain")) {
		t.Fatalf("plain errors are not 404s")
	}
}
