package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
)

func TestStubUpsertDeleteAndSelect(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	upsert := "INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload"
	for _, payload := range []string{"v1", "v2"} {
		if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "user"}, {Value: payload}}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	rows := conn.Rows("state")
	if len(rows) != 1 || rows[0]["payload"] != "v2" {
		t.Fatalf("expected upsert to replace the row, got %v", rows)
	}

	conn.Seed("state", map[string]any{"bucket": "note", "payload": "n"})
	res, err := conn.ExecContext(ctx, "DELETE FROM state WHERE bucket = $1", []driver.NamedValue{{Value: "user"}})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("expected one row deleted, got %d", n)
	}

	r, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := r.Next(dest); err != nil || dest[0] != "note" {
		t.Fatalf("unexpected row %v (%v)", dest, err)
	}
	if err := r.Next(dest); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if conn.ExecCount("insert") != 2 || conn.ExecCount("delete") != 1 {
		t.Fatalf("unexpected recorded statements %v", conn.Execs)
	}
}

func TestStubFailureSwitches(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailPing = true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailBegin = true
	if _, err := conn.Begin(); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailTables = map[string]bool{"state": true}
	if _, err := conn.QueryContext(ctx, "select bucket from state", nil); err == nil {
		t.Fatalf("expected query failure")
	}
	if _, err := conn.ExecContext(ctx, "DELETE FROM state", []driver.NamedValue{{Value: "x"}}); err == nil {
		t.Fatalf("expected unparsable delete to fail")
	}
	if _, err := conn.QueryContext(ctx, "UPDATE state", nil); err == nil {
		t.Fatalf("expected non-select query to fail")
	}
}
