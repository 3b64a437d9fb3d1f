package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"modelkit/internal/blob/core"
)

func TestMockedPutOverwriteGetHead(t *testing.T) {
	store := NewMockForTests(0)
	ctx := context.Background()
	info, err := store.Put(ctx, "state/user.json", bytes.NewReader([]byte(`{"a":1}`)), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"entity": "user"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "state/user.json" || info.ContentType != "application/json" || info.Metadata["entity"] != "user" {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := store.Put(ctx, "state/user.json", bytes.NewReader([]byte(`{"a":2}`)), core.PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_, rc, err := store.Get(ctx, "state/user.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `{"a":2}` {
		t.Fatalf("expected overwritten body, got %q", data)
	}
	if store.Driver() != core.DriverS3 || store.Bucket() != "mock-bucket" {
		t.Fatalf("unexpected store identity")
	}
}

func TestMockedMissingKeysMapToNotFound(t *testing.T) {
	store := NewMockForTests(0)
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if ok, err := store.Delete(ctx, "nope"); ok || err != nil {
		t.Fatalf("expected no-op delete, got %v %v", ok, err)
	}
}

func TestMockedListPaginatesAndDeletes(t *testing.T) {
	store := NewMockForTests(1)
	ctx := context.Background()
	for _, k := range []string{"p/b", "p/a", "q"} {
		if _, err := store.Put(ctx, k, bytes.NewReader([]byte("body")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := store.List(ctx, "p/")
	if err != nil || len(list) != 2 || list[0].Key != "p/a" || list[1].Key != "p/b" {
		t.Fatalf("expected two paged items: %v %+v", err, list)
	}
	if list, err := store.List(ctx, "none/"); err != nil || len(list) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, list)
	}
	if ok, err := store.Delete(ctx, "q"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if all, _ := store.List(ctx, ""); len(all) != 2 {
		t.Fatalf("expected deleted key gone, got %+v", all)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	s, err := New(context.Background(), Config{Bucket: "bkt", Endpoint: "https://mock.s3.local", PathStyle: true, AccessKeyID: "AKIA", SecretAccessKey: "SECRET"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Bucket() != "bkt" {
		t.Fatalf("unexpected bucket %s", s.Bucket())
	}
}

func TestDecodeChunked(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatalf("expected plain body untouched")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected decode hello, got %q", b)
	}
}
