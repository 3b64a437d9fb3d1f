package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"modelkit/internal/blob/core"
)

func TestMemoryStoreOverwriteAndIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	md := map[string]string{"entity": "user"}
	if _, err := s.Put(ctx, "a", bytes.NewReader([]byte("one")), core.PutOptions{Metadata: md}); err != nil {
		t.Fatalf("put: %v", err)
	}
	md["entity"] = "mutated"
	info, err := s.Put(ctx, "a", bytes.NewReader([]byte("two!")), core.PutOptions{Metadata: map[string]string{"entity": "user"}})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if info.Size != 4 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	got, rc, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "two!" || got.Metadata["entity"] != "user" {
		t.Fatalf("unexpected blob %q %+v", data, got)
	}
	got.Metadata["entity"] = "changed"
	head, _ := s.Head(ctx, "a")
	if head.Metadata["entity"] != "user" {
		t.Fatalf("expected stored metadata isolated from callers")
	}
	if _, err := s.Put(ctx, " ", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key rejected")
	}
}

func TestMemoryStoreListDeleteMissing(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"p/b", "p/a", "q"} {
		if _, err := s.Put(ctx, k, bytes.NewReader([]byte(k)), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, _ := s.List(ctx, "p/")
	if len(list) != 2 || list[0].Key != "p/a" {
		t.Fatalf("unexpected list %+v", list)
	}
	if ok, _ := s.Delete(ctx, "q"); !ok {
		t.Fatalf("expected delete")
	}
	if ok, _ := s.Delete(ctx, "q"); ok {
		t.Fatalf("expected second delete to report missing")
	}
	if _, _, err := s.Get(ctx, "q"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Head(ctx, "q"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver")
	}
}
