package goid

import "testing"

func TestCurrentIsStablePerGoroutine(t *testing.T) {
	id := Current()
	if id == 0 {
		t.Fatalf("expected a goroutine id")
	}
	if again := Current(); again != id {
		t.Fatalf("expected stable id, got %d then %d", id, again)
	}
	other := make(chan uint64)
	go func() { other <- Current() }()
	if got := <-other; got == 0 || got == id {
		t.Fatalf("expected a distinct id for another goroutine, got %d (self %d)", got, id)
	}
}
