package sync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"offline-sync-service/internal/backend"
	"offline-sync-service/internal/cache"
)

func newTestReconciler(t *testing.T) (*Reconciler, *cache.Store, *Queue) {
	t.Helper()
	store := cache.NewStore("test", nil, 0.25)
	queue := NewQueue()
	store.OnDirty(queue.Enqueue)

	rec := NewReconciler(store, queue, ReconcilerConfig{
		MaxAttempts: 5,
		Backoff:     time.Nanosecond,
		PushTimeout: time.Second,
	})
	return rec, store, queue
}

func dirtyWrite(t *testing.T, store *cache.Store, key, payload string) *cache.Entry {
	t.Helper()
	e, err := store.Put(context.Background(), key, json.RawMessage(payload), cache.PutOptions{MarkDirty: true})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func succeedAll(ctx context.Context, key string, entry *cache.Entry) (backend.PushResult, error) {
	return backend.PushResult{Success: true, NewVersion: entry.Version}, nil
}

func TestDrainSuccessCleansAndDequeues(t *testing.T) {
	rec, store, queue := newTestReconciler(t)
	dirtyWrite(t, store, "a", `{"v":1}`)
	dirtyWrite(t, store, "b", `{"v":2}`)

	res := rec.Drain(context.Background(), succeedAll)
	if res.Synced != 2 || res.Failed != 0 {
		t.Fatalf("want 2 synced, got %+v", res)
	}
	if queue.Len() != 0 {
		t.Fatalf("queue should be empty, len=%d", queue.Len())
	}
	if e := store.Get("a"); e == nil || e.Dirty {
		t.Fatal("synced entry must be clean")
	}
	if res.RunID == "" {
		t.Fatal("completed drain must carry a run id")
	}
}

func TestDrainPartialFailureContinues(t *testing.T) {
	rec, store, queue := newTestReconciler(t)
	dirtyWrite(t, store, "bad", `{"v":1}`)
	dirtyWrite(t, store, "good", `{"v":2}`)

	fn := func(ctx context.Context, key string, entry *cache.Entry) (backend.PushResult, error) {
		if key == "bad" {
			return backend.PushResult{}, &backend.TransientError{Source: "sync", Err: errors.New("boom")}
		}
		return backend.PushResult{Success: true}, nil
	}

	res := rec.Drain(context.Background(), fn)
	if res.Synced != 1 || res.Failed != 1 {
		t.Fatalf("one key's failure must not block the rest: %+v", res)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("want 1 accumulated error, got %v", res.Errors)
	}

	qe, ok := queue.Get("bad")
	if !ok {
		t.Fatal("failed key must stay queued")
	}
	if qe.Attempts != 1 {
		t.Fatalf("want attempts=1, got %d", qe.Attempts)
	}
	if e := store.Get("bad"); e == nil || !e.Dirty {
		t.Fatal("failed key must stay dirty")
	}
}

func TestDrainConflictSurfacedNotMerged(t *testing.T) {
	rec, store, queue := newTestReconciler(t)

	// Local entry at version 3.
	dirtyWrite(t, store, "k", `{"v":1}`)
	dirtyWrite(t, store, "k", `{"v":2}`)
	dirtyWrite(t, store, "k", `{"v":3}`)

	fn := func(ctx context.Context, key string, entry *cache.Entry) (backend.PushResult, error) {
		return backend.PushResult{Success: false, Conflict: true, NewVersion: 5}, nil
	}

	res := rec.Drain(context.Background(), fn)
	if res.Failed != 1 {
		t.Fatalf("conflict is a failure: %+v", res)
	}

	var conflict *backend.ConflictError
	if len(res.Errors) != 1 || !errors.As(res.Errors[0], &conflict) {
		t.Fatalf("conflict must be surfaced in errors, got %v", res.Errors)
	}
	if conflict.LocalVersion != 3 || conflict.RemoteVersion != 5 {
		t.Fatalf("both versions must be attached, got %+v", conflict)
	}

	qe, _ := queue.Get("k")
	if qe.Attempts != 1 {
		t.Fatalf("want attempts=1 after conflict, got %d", qe.Attempts)
	}
	if e := store.Get("k"); e == nil || !e.Dirty {
		t.Fatal("conflicted entry must stay dirty; no auto-merge")
	}
}

func TestDrainNonReentrant(t *testing.T) {
	rec, store, _ := newTestReconciler(t)
	dirtyWrite(t, store, "k", `{"v":1}`)

	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := func(ctx context.Context, key string, entry *cache.Entry) (backend.PushResult, error) {
		close(entered)
		<-release
		return backend.PushResult{Success: true}, nil
	}

	done := make(chan SyncResult, 1)
	go func() { done <- rec.Drain(context.Background(), blocking) }()
	<-entered

	// Second drain while the first is in flight: immediate empty result.
	res := rec.Drain(context.Background(), succeedAll)
	if res.Synced != 0 || res.Failed != 0 || res.RunID != "" {
		t.Fatalf("concurrent drain must return empty immediately, got %+v", res)
	}

	close(release)
	first := <-done
	if first.Synced != 1 {
		t.Fatalf("first drain should complete normally, got %+v", first)
	}
}

func TestDrainFlagsAfterCeiling(t *testing.T) {
	store := cache.NewStore("test", nil, 0.25)
	queue := NewQueue()
	store.OnDirty(queue.Enqueue)
	rec := NewReconciler(store, queue, ReconcilerConfig{
		MaxAttempts: 2,
		Backoff:     time.Nanosecond,
		PushTimeout: time.Second,
	})
	dirtyWrite(t, store, "k", `{"v":1}`)

	failing := func(ctx context.Context, key string, entry *cache.Entry) (backend.PushResult, error) {
		return backend.PushResult{}, &backend.TransientError{Source: "sync", Err: errors.New("down")}
	}

	for i := 0; i < 2; i++ {
		time.Sleep(time.Millisecond) // let the backoff window pass
		rec.Drain(context.Background(), failing)
	}

	qe, ok := queue.Get("k")
	if !ok {
		t.Fatal("flagged entry must never be dropped")
	}
	if !qe.Flagged {
		t.Fatalf("want flagged after %d attempts, got %+v", qe.Attempts, qe)
	}

	// Further drains skip the flagged key entirely.
	res := rec.Drain(context.Background(), succeedAll)
	if res.Synced != 0 {
		t.Fatalf("flagged key must be skipped, got %+v", res)
	}

	// Manual reset makes it eligible again.
	queue.Reset("k")
	time.Sleep(time.Millisecond)
	res = rec.Drain(context.Background(), succeedAll)
	if res.Synced != 1 {
		t.Fatalf("reset key should drain, got %+v", res)
	}
}

func TestDrainSkipsCleanedEntries(t *testing.T) {
	rec, store, queue := newTestReconciler(t)
	dirtyWrite(t, store, "gone", `{"v":1}`)
	store.Remove(context.Background(), "gone")

	res := rec.Drain(context.Background(), succeedAll)
	if res.Synced != 0 || res.Failed != 0 {
		t.Fatalf("stale queue reference should be dropped silently, got %+v", res)
	}
	if queue.Len() != 0 {
		t.Fatal("stale reference should be removed from the queue")
	}
}
