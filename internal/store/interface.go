package store

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned by Save when the backing storage rejects the
// blob for being over its size budget. Callers may evict and retry once.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// SnapshotStore persists one serialized cache blob per logical namespace.
type SnapshotStore interface {
	// Save writes the blob for a namespace, replacing any previous one.
	Save(ctx context.Context, namespace string, blob []byte) error

	// Load returns the blob for a namespace, or (nil, nil) if none exists.
	Load(ctx context.Context, namespace string) ([]byte, error)

	// Delete removes the blob for a namespace.
	Delete(ctx context.Context, namespace string) error

	Close() error
}
