package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"offline-sync-service/internal/backend"
	"offline-sync-service/internal/cache"
)

type Source string

const (
	SourceCache     Source = "cache"
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
)

// ReadResult reports the payload and where it was served from. Data is nil
// for a clean not-found in every source.
type ReadResult struct {
	Data    json.RawMessage `json:"data"`
	Source  Source          `json:"source"`
	Version int64           `json:"version,omitempty"`
}

// SyncFunc pushes one dirty entry to the authoritative backend.
type SyncFunc func(ctx context.Context, key string, entry *cache.Entry) (backend.PushResult, error)

// SyncResult summarizes one drain run. Errors accumulate per key; a failing
// key never aborts the run.
type SyncResult struct {
	RunID       string    `json:"run_id,omitempty"`
	Synced      int       `json:"synced"`
	Failed      int       `json:"failed"`
	Errors      []error   `json:"-"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// ErrorMessages renders accumulated errors for transport.
func (r SyncResult) ErrorMessages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, err := range r.Errors {
		msgs = append(msgs, err.Error())
	}
	return msgs
}

func (r SyncResult) String() string {
	return fmt.Sprintf("drain %s: %d synced, %d failed", r.RunID, r.Synced, r.Failed)
}

// KeyStatus is the caller-visible sync state of one key.
type KeyStatus struct {
	Exists          bool      `json:"exists"`
	Dirty           bool      `json:"dirty"`
	Version         int64     `json:"version,omitempty"`
	LastModified    time.Time `json:"last_modified,omitempty"`
	Attempts        int       `json:"attempts,omitempty"`
	Flagged         bool      `json:"flagged,omitempty"`
	MigrationIntent bool      `json:"migration_intent,omitempty"`
}
