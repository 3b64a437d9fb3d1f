package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"modelkit/internal/blob/core"
)

func TestFilesystemPutOverwriteGetList(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	first, err := store.Put(ctx, "users/user.json", bytes.NewReader([]byte("v1")), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"entity": "user"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	second, err := store.Put(ctx, "users/user.json", bytes.NewReader([]byte("version2")), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if second.Size != 8 || second.ETag == first.ETag {
		t.Fatalf("expected overwritten info, got %+v", second)
	}

	info, rc, err := store.Get(ctx, "users/user.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "version2" || info.ContentType != "application/json" {
		t.Fatalf("unexpected content %q %+v", data, info)
	}

	if _, err := store.Put(ctx, "other.json", bytes.NewReader(nil), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := store.List(ctx, "users/")
	if err != nil || len(list) != 1 || list[0].Key != "users/user.json" {
		t.Fatalf("unexpected list %+v (%v)", list, err)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 2 || all[0].Key != "other.json" {
		t.Fatalf("expected sorted full listing, got %+v", all)
	}
	entries, _ := os.ReadDir(filepath.Join(store.Root(), "users"))
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" && filepath.Ext(e.Name()) != ".meta" {
			t.Fatalf("unexpected leftover file %s", e.Name())
		}
	}
}

func TestFilesystemMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if ok, err := store.Delete(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected no-op delete, got %v %v", ok, err)
	}
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ok, err := store.Delete(ctx, "k"); !ok || err != nil {
		t.Fatalf("expected delete, got %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "k"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected sidecar removed, got %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	for _, key := range []string{"", "  ", "../x", "a/../../b", "/abs", "x.meta"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected %q rejected", key)
		}
	}
	got, err := sanitizeKey("a//b/./c")
	if err != nil || got != "a/b/c" {
		t.Fatalf("unexpected sanitized key %q (%v)", got, err)
	}
}
