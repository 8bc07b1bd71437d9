package sync

import (
	stdsync "sync"
	"time"
)

// QueueEntry tracks one key awaiting sync. The queue holds keys only; the
// payload lives in the cache so the two can never diverge.
type QueueEntry struct {
	Key           string    `json:"key"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`
	Flagged       bool      `json:"flagged,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Queue is a FIFO set of keys with unsynced local writes.
type Queue struct {
	mu    stdsync.Mutex
	order []string
	index map[string]*QueueEntry
	now   func() time.Time
}

func NewQueue() *Queue {
	return &Queue{
		index: make(map[string]*QueueEntry),
		now:   time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Enqueue adds a key. Re-adding a queued key is a no-op.
func (q *Queue) Enqueue(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[key]; ok {
		return
	}
	q.index[key] = &QueueEntry{
		Key:        key,
		EnqueuedAt: q.now(),
	}
	q.order = append(q.order, key)
}

// Remove drops a key from the queue. Returns whether it was queued.
func (q *Queue) Remove(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[key]; !ok {
		return false
	}
	delete(q.index, key)
	for i, k := range q.order {
		if k == key {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Entries returns a snapshot of queued entries in enqueue order.
func (q *Queue) Entries() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]QueueEntry, 0, len(q.order))
	for _, key := range q.order {
		entries = append(entries, *q.index[key])
	}
	return entries
}

// Len returns the number of queued keys.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// RecordFailure bumps the attempt count after a failed sync, schedules the
// next eligible attempt, and flags the entry once the ceiling is reached.
// Flagged entries stay queued; data is never dropped for failing to sync.
func (q *Queue) RecordFailure(key string, err error, ceiling int, nextAttempt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.index[key]
	if !ok {
		return
	}
	e.Attempts++
	e.NextAttemptAt = nextAttempt
	if err != nil {
		e.LastError = err.Error()
	}
	if ceiling > 0 && e.Attempts >= ceiling {
		e.Flagged = true
	}
}

// Reset clears attempts and the flag so a drain will try the key again.
// Manual intervention path for flagged entries.
func (q *Queue) Reset(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.index[key]
	if !ok {
		return false
	}
	e.Attempts = 0
	e.Flagged = false
	e.NextAttemptAt = time.Time{}
	e.LastError = ""
	return true
}

// Get returns a copy of the entry for key, if queued.
func (q *Queue) Get(key string) (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.index[key]
	if !ok {
		return QueueEntry{}, false
	}
	return *e, true
}
