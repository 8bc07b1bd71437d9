package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"offline-sync-service/internal/backend"
	"offline-sync-service/internal/cache"
	"offline-sync-service/internal/config"
	"offline-sync-service/internal/logger"
	"offline-sync-service/internal/metrics"
	"offline-sync-service/internal/store"
	"offline-sync-service/internal/validate"
)

// Manager wires the cache, queue, reader and reconciler together and is the
// surface the API and scheduler talk to. Writes are always optimistic-local:
// they succeed offline and sync later.
type Manager struct {
	cfg        *config.Config
	cache      *cache.Store
	queue      *Queue
	reader     *Reader
	reconciler *Reconciler
	primary    backend.Client
	secondary  backend.Client
	monitor    *backend.Monitor
	schema     []validate.Rule

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup

	mu      stdsync.Mutex
	started bool
}

func NewManager(cfg *config.Config, snapshots store.SnapshotStore, primary, secondary backend.Client, monitor *backend.Monitor, schema []validate.Rule) (*Manager, error) {
	cacheStore := cache.NewStore(cfg.Cache.Namespace, snapshots, cfg.Cache.EvictFraction)
	queue := NewQueue()

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:       cfg,
		cache:     cacheStore,
		queue:     queue,
		primary:   primary,
		secondary: secondary,
		monitor:   monitor,
		schema:    schema,
		ctx:       ctx,
		cancel:    cancel,
	}

	m.reader = NewReader(cacheStore, ReaderConfig{
		Retries: cfg.Sync.FetchRetries,
		Backoff: cfg.Sync.GetFetchBackoff(),
		Timeout: cfg.Backends.Primary.GetTimeout(),
	}, m.validatePayload)

	m.reconciler = NewReconciler(cacheStore, queue, ReconcilerConfig{
		MaxAttempts: cfg.Sync.MaxAttempts,
		Backoff:     cfg.Sync.GetPushBackoff(),
		PushTimeout: cfg.Backends.Primary.GetTimeout(),
	})

	// Dirty writes always land in the queue; this hook is the invariant.
	cacheStore.OnDirty(func(key string) {
		queue.Enqueue(key)
		metrics.SetQueueDepth(queue.Len())
	})

	if err := cacheStore.LoadSnapshot(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to restore snapshot: %w", err)
	}
	// Requeue writes that were still unsynced when the process last exited.
	for _, key := range cacheStore.DirtyKeys() {
		queue.Enqueue(key)
	}
	metrics.SetQueueDepth(queue.Len())
	metrics.SetCacheEntries(cacheStore.Len())

	return m, nil
}

// Start launches the connectivity watcher. An offline->online transition
// triggers a drain; the reconciler's guard debounces it against the
// scheduler's periodic tick.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	events := m.monitor.Subscribe()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case online := <-events:
				if online {
					logger.Log.Info("Back online, draining sync queue")
					m.DrainNow(m.ctx)
				}
			case <-m.ctx.Done():
				return
			}
		}
	}()
}

// Stop shuts down the watcher and saves a final snapshot.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.cache.SaveSnapshot(ctx); err != nil {
		logger.Log.Error("Final snapshot save failed", zap.Error(err))
	}
}

// Read serves key from cache, then primary, then secondary. Values cached
// from a backend fetch get ttl, falling back to the configured default.
func (m *Manager) Read(ctx context.Context, key string, ttl time.Duration) (ReadResult, error) {
	if ttl <= 0 {
		ttl = m.cfg.Cache.GetDefaultTTL()
	}
	result, err := m.reader.Read(ctx, key, m.primary, m.secondary, ttl)
	if err == nil {
		metrics.RecordRead(string(result.Source))
		metrics.SetCacheEntries(m.cache.Len())
	}
	return result, err
}

// Write applies an optimistic local write: validated, versioned, marked
// dirty and queued. Only severe corruption or a schema violation rejects
// the write; a failed snapshot flush does not.
func (m *Manager) Write(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration) (*cache.Entry, error) {
	if err := m.validatePayload(key, payload); err != nil {
		return nil, err
	}
	if max := m.cfg.Cache.MaxPayloadSize; max > 0 && int64(len(payload)) > max {
		metrics.RecordValidationFailure("schema")
		return nil, &backend.ValidationError{Key: key, Issues: []string{
			fmt.Sprintf("payload is %d bytes, limit is %d", len(payload), max),
		}}
	}

	// No default TTL here: a local write with no TTL never expires. The
	// default only applies to values cached from a backend fetch.
	entry, err := m.cache.Put(ctx, key, payload, cache.PutOptions{TTL: ttl, MarkDirty: true})
	if errors.Is(err, cache.ErrPersistFailed) {
		// Saved locally, pending sync; persistence will catch up.
		err = nil
	}
	if err != nil {
		return nil, err
	}

	metrics.SetCacheEntries(m.cache.Len())
	if !m.monitor.IsOnline() {
		logger.Log.Info("Offline write saved locally, pending sync", zap.String("key", key))
	}
	return entry, nil
}

// Delete removes the entry and any queue membership.
func (m *Manager) Delete(ctx context.Context, key string) (bool, error) {
	m.queue.Remove(key)
	metrics.SetQueueDepth(m.queue.Len())

	removed, err := m.cache.Remove(ctx, key)
	if errors.Is(err, cache.ErrPersistFailed) {
		err = nil
	}
	metrics.SetCacheEntries(m.cache.Len())
	return removed, err
}

// DrainNow runs one drain pass against the primary backend.
func (m *Manager) DrainNow(ctx context.Context) SyncResult {
	return m.reconciler.Drain(ctx, m.push)
}

func (m *Manager) push(ctx context.Context, key string, entry *cache.Entry) (backend.PushResult, error) {
	return m.primary.Push(ctx, key, backend.PushRequest{
		Payload:  entry.Payload,
		Version:  entry.Version,
		Checksum: entry.Checksum,
	})
}

// Status reports the sync state of one key.
func (m *Manager) Status(key string) KeyStatus {
	status := KeyStatus{}
	if e := m.cache.Get(key); e != nil {
		status.Exists = true
		status.Dirty = e.Dirty
		status.Version = e.Version
		status.LastModified = e.LastModified
		status.MigrationIntent = e.MigrationIntent
	}
	if qe, ok := m.queue.Get(key); ok {
		status.Attempts = qe.Attempts
		status.Flagged = qe.Flagged
	}
	return status
}

// QueueEntries returns the pending sync queue in FIFO order.
func (m *Manager) QueueEntries() []QueueEntry {
	return m.queue.Entries()
}

// RetryKey clears a flagged key's attempt count so draining resumes.
func (m *Manager) RetryKey(key string) bool {
	return m.queue.Reset(key)
}

// History returns recent drain results, newest first.
func (m *Manager) History() []SyncResult {
	return m.reconciler.History()
}

// EvictExpired sweeps expired entries.
func (m *Manager) EvictExpired() int {
	count := m.cache.EvictExpired()
	if count > 0 {
		metrics.RecordEviction("expired", count)
		metrics.SetCacheEntries(m.cache.Len())
	}
	return count
}

// Online reports current connectivity.
func (m *Manager) Online() bool {
	return m.monitor.IsOnline()
}

// Cache exposes the underlying store. Used by tests and the API status
// endpoint.
func (m *Manager) Cache() *cache.Store {
	return m.cache
}

// validatePayload runs the schema check (when configured) and the
// corruption check. Severe corruption blocks; lesser findings are logged
// and the payload passes.
func (m *Manager) validatePayload(key string, payload json.RawMessage) error {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		metrics.RecordValidationFailure("corruption")
		return &backend.CorruptionError{Key: key, Reasons: []string{"payload is not valid JSON"}}
	}

	corruption := validate.CheckCorruption(decoded, "")
	if corruption.Severity == validate.SeveritySevere {
		metrics.RecordValidationFailure("corruption")
		return &backend.CorruptionError{Key: key, Reasons: corruption.Reasons}
	}
	if corruption.Severity > validate.SeverityNone {
		logger.Log.Warn("Payload accepted with corruption warnings",
			zap.String("key", key),
			zap.String("severity", corruption.Severity.String()),
			zap.Strings("reasons", corruption.Reasons),
		)
	}

	if len(m.schema) > 0 {
		obj, ok := decoded.(map[string]any)
		if !ok {
			metrics.RecordValidationFailure("schema")
			return &backend.ValidationError{Key: key, Issues: []string{"payload is not an object"}}
		}
		result := validate.Validate(obj, m.schema)
		if !result.IsValid {
			metrics.RecordValidationFailure("schema")
			return &backend.ValidationError{Key: key, Issues: result.Errors}
		}
		for _, warning := range result.Warnings {
			logger.Log.Debug("Validation warning", zap.String("key", key), zap.String("warning", warning))
		}
	}
	return nil
}
