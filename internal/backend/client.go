package backend

import (
	"context"
	"encoding/json"

	"offline-sync-service/internal/config"
)

// PushRequest carries a local entry to the authoritative backend.
type PushRequest struct {
	Payload  json.RawMessage `json:"payload"`
	Version  int64           `json:"version"`
	Checksum string          `json:"checksum"`
}

// PushResult is the backend's verdict on a pushed write. Conflict means the
// remote holds a newer version than the push assumed.
type PushResult struct {
	Success    bool  `json:"success"`
	NewVersion int64 `json:"new_version,omitempty"`
	Conflict   bool  `json:"conflict,omitempty"`
}

// Client is a fallible remote document store. Fetch returns (nil, nil) for a
// clean not-found; transport failures come back as errors.
type Client interface {
	Name() string
	Fetch(ctx context.Context, key string) (json.RawMessage, error)
	Push(ctx context.Context, key string, req PushRequest) (PushResult, error)
}

// NewClient builds a mock or HTTP client from config. Selection is the
// explicit use_mock flag, never inferred from URL contents.
func NewClient(name string, cfg config.BackendConnection) Client {
	if cfg.UseMock {
		return NewMockClient(name)
	}
	return NewHTTPClient(name, cfg)
}
