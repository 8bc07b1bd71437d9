package sync

import (
	"errors"
	"testing"
	"time"
)

func TestEnqueueIdempotent(t *testing.T) {
	q := NewQueue()
	q.Enqueue("k")
	q.Enqueue("k")
	if q.Len() != 1 {
		t.Fatalf("want exactly one entry, got %d", q.Len())
	}
}

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")
	q.Remove("b")
	q.Enqueue("d")

	entries := q.Entries()
	want := []string{"a", "c", "d"}
	if len(entries) != len(want) {
		t.Fatalf("want %d entries, got %d", len(want), len(entries))
	}
	for i, key := range want {
		if entries[i].Key != key {
			t.Fatalf("position %d: want %s, got %s", i, key, entries[i].Key)
		}
	}
}

func TestRecordFailureFlagsAtCeiling(t *testing.T) {
	q := NewQueue()
	q.Enqueue("k")

	errPush := errors.New("push failed")
	for i := 0; i < 3; i++ {
		q.RecordFailure("k", errPush, 3, time.Now())
	}

	e, ok := q.Get("k")
	if !ok {
		t.Fatal("flagged entry must stay queued")
	}
	if e.Attempts != 3 {
		t.Fatalf("want 3 attempts, got %d", e.Attempts)
	}
	if !e.Flagged {
		t.Fatal("entry at ceiling must be flagged")
	}
	if e.LastError != "push failed" {
		t.Fatalf("want last error recorded, got %q", e.LastError)
	}
}

func TestResetClearsFlag(t *testing.T) {
	q := NewQueue()
	q.Enqueue("k")
	q.RecordFailure("k", errors.New("x"), 1, time.Now())

	if e, _ := q.Get("k"); !e.Flagged {
		t.Fatal("precondition: entry should be flagged")
	}
	if !q.Reset("k") {
		t.Fatal("reset should find the entry")
	}
	e, _ := q.Get("k")
	if e.Flagged || e.Attempts != 0 {
		t.Fatalf("reset should clear flag and attempts, got %+v", e)
	}
}
