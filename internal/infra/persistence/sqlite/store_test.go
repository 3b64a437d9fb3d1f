package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"modelkit/internal/records"
	"modelkit/pkg/domain"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store := openStore(t, path)
	if store.Path() != path {
		t.Fatalf("unexpected path %s", store.Path())
	}
	u := records.NewUser("ada", records.IntPtr(36), records.GenderFemale)
	if err := store.Insert(u); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := openStore(t, path)
	got, err := reloaded.Fetch(domain.QueryFor[records.User](records.Users()))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 user, got %d", len(got))
	}
	user := got[0].(*records.User)
	if user.Name != "ada" || user.RecordID() != u.RecordID() || user.Gender != records.GenderFemale {
		t.Fatalf("unexpected reloaded user %+v", user)
	}
}

func TestSQLiteStoreDropsEmptyBuckets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store := openStore(t, path)
	u := records.NewUser("ada", nil, records.GenderFemale)
	if err := store.Insert(u); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(u); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Save(context.Background()); err != nil {
		t.Fatalf("save delete: %v", err)
	}
	var rows int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected empty bucket row removed, got %d rows", rows)
	}
}

func TestSQLiteStoreFailedPersistKeepsState(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "state.db"))
	if _, err := store.DB().Exec(`DROP TABLE state`); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if err := store.Insert(records.NewUser("ada", nil, records.GenderFemale)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Save(context.Background()); err == nil {
		t.Fatalf("expected save to fail without the state table")
	}
	if len(store.ExportState()) != 0 {
		t.Fatalf("expected committed state untouched")
	}
	store.Rollback()
	if store.HasChanges() {
		t.Fatalf("expected rollback to clear pending insert")
	}
}
