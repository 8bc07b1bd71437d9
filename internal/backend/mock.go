package backend

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MockClient is an in-memory stand-in for an unconfigured backend. It is
// also the test double for the reader and reconciler.
type MockClient struct {
	name string

	mu       sync.Mutex
	data     map[string]json.RawMessage
	versions map[string]int64

	// Test knobs.
	FetchErr error
	PushErr  error
	Latency  time.Duration

	fetchCalls int
	pushCalls  int
}

func NewMockClient(name string) *MockClient {
	return &MockClient{
		name:     name,
		data:     make(map[string]json.RawMessage),
		versions: make(map[string]int64),
	}
}

func (m *MockClient) Name() string { return m.name }

func (m *MockClient) Fetch(ctx context.Context, key string) (json.RawMessage, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	value, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return value, nil
}

func (m *MockClient) Push(ctx context.Context, key string, req PushRequest) (PushResult, error) {
	if err := m.sleep(ctx); err != nil {
		return PushResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushCalls++
	if m.PushErr != nil {
		return PushResult{}, m.PushErr
	}

	if remote := m.versions[key]; remote > req.Version {
		return PushResult{Success: false, Conflict: true, NewVersion: remote}, nil
	}

	m.data[key] = req.Payload
	m.versions[key] = req.Version
	return PushResult{Success: true, NewVersion: req.Version}, nil
}

func (m *MockClient) sleep(ctx context.Context) error {
	if m.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(m.Latency):
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// Seed preloads a value, bypassing version checks. Test helper.
func (m *MockClient) Seed(key string, payload json.RawMessage, version int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = payload
	m.versions[key] = version
}

// Calls reports how many fetches and pushes the mock has served.
func (m *MockClient) Calls() (fetches, pushes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls, m.pushCalls
}
