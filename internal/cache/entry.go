package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is a versioned cache record. Version increases on every local write
// to the same key and never regresses, including across snapshot reloads.
type Entry struct {
	Key             string          `json:"key"`
	Payload         json.RawMessage `json:"payload"`
	Version         int64           `json:"version"`
	Checksum        string          `json:"checksum"`
	LastModified    time.Time       `json:"last_modified"`
	ExpiresAt       time.Time       `json:"expires_at,omitempty"` // zero = no TTL
	Dirty           bool            `json:"dirty"`
	MigrationIntent bool            `json:"migration_intent,omitempty"`
}

func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s v%d (dirty=%v)", e.Key, e.Version, e.Dirty)
}

// Checksum hashes a payload for later corruption detection.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%x", sum)
}
