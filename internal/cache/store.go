package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"offline-sync-service/internal/logger"
	"offline-sync-service/internal/metrics"
	"offline-sync-service/internal/store"
	"go.uber.org/zap"
)

// ErrPersistFailed reports that the in-memory write applied but the snapshot
// flush did not, even after eviction and a retry.
var ErrPersistFailed = errors.New("cache persist failed")

type PutOptions struct {
	TTL       time.Duration // 0 = no expiry
	MarkDirty bool
}

// Store is the local item store: an in-memory versioned map flushed to a
// SnapshotStore as one blob per namespace.
type Store struct {
	mu        sync.Mutex
	flushMu   sync.Mutex // serializes snapshot saves so an older blob never lands last
	entries   map[string]*Entry
	versions  map[string]int64 // survives eviction so versions never regress
	namespace string
	snapshots store.SnapshotStore
	evictFrac float64
	now       func() time.Time
	onDirty   func(key string)
}

func NewStore(namespace string, snapshots store.SnapshotStore, evictFraction float64) *Store {
	if evictFraction <= 0 || evictFraction > 1 {
		evictFraction = 0.25
	}
	return &Store{
		entries:   make(map[string]*Entry),
		versions:  make(map[string]int64),
		namespace: namespace,
		snapshots: snapshots,
		evictFrac: evictFraction,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// OnDirty registers the hook invoked whenever a put marks a key dirty.
// The sync queue subscribes here so dirty entries are always queued.
func (s *Store) OnDirty(fn func(key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDirty = fn
}

// Get returns the entry for key, evicting it first if expired. Dirty
// entries are never expired: an unsynced write stays live until it is
// confirmed, no matter its TTL.
func (s *Store) Get(key string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if e.expired(s.now()) && !e.Dirty {
		delete(s.entries, key)
		return nil
	}
	cp := *e
	return &cp
}

// Put applies a local write: version bump, checksum, snapshot flush.
// The entry is returned even when the flush fails; the error then wraps
// ErrPersistFailed and the cache stays usable in memory.
func (s *Store) Put(ctx context.Context, key string, payload json.RawMessage, opts PutOptions) (*Entry, error) {
	s.mu.Lock()

	now := s.now()
	e := &Entry{
		Key:          key,
		Payload:      payload,
		Version:      s.versions[key] + 1,
		Checksum:     Checksum(payload),
		LastModified: now,
		Dirty:        opts.MarkDirty,
	}
	if opts.TTL > 0 {
		e.ExpiresAt = now.Add(opts.TTL)
	}

	s.entries[key] = e
	s.versions[key] = e.Version

	hook := s.onDirty
	cp := *e
	s.mu.Unlock()

	if opts.MarkDirty && hook != nil {
		hook(key)
	}

	if err := s.flush(ctx); err != nil {
		return &cp, err
	}
	return &cp, nil
}

// Remove deletes the entry and its version floor. Returns whether an entry
// existed.
func (s *Store) Remove(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	delete(s.versions, key)
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	return true, s.flush(ctx)
}

// MarkClean clears the dirty flag after a confirmed sync and stamps the
// confirmation time.
func (s *Store) MarkClean(key string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.Dirty = false
		e.LastModified = at
	}
}

// MarkMigrationIntent flags a value that was served from the legacy backend.
func (s *Store) MarkMigrationIntent(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.MigrationIntent = true
	}
}

// EvictExpired sweeps all expired clean entries and returns how many were
// removed. Like EvictOldestClean, the sweep never touches dirty entries.
func (s *Store) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for k, e := range s.entries {
		if e.expired(now) && !e.Dirty {
			delete(s.entries, k)
			count++
		}
	}
	return count
}

// EvictOldestClean removes the oldest fraction of clean entries by
// LastModified. Dirty entries are never evicted.
func (s *Store) EvictOldestClean(fraction float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictOldestCleanLocked(fraction)
}

func (s *Store) evictOldestCleanLocked(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	if fraction > 1 {
		fraction = 1
	}

	var clean []*Entry
	for _, e := range s.entries {
		if !e.Dirty {
			clean = append(clean, e)
		}
	}
	if len(clean) == 0 {
		return 0
	}

	sort.Slice(clean, func(i, j int) bool {
		return clean[i].LastModified.Before(clean[j].LastModified)
	})

	n := int(float64(len(clean)) * fraction)
	if n < 1 {
		n = 1
	}
	for _, e := range clean[:n] {
		delete(s.entries, e.Key)
	}
	return n
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Keys returns all live keys.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

type snapshot struct {
	Entries  map[string]*Entry `json:"entries"`
	Versions map[string]int64  `json:"versions"`
}

// flush serializes the full map and saves it as one blob. A quota rejection
// triggers a single evict-and-retry; a second failure degrades to
// memory-only operation.
func (s *Store) flush(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}

	// Marshal under flushMu so a flush that starts later always captures
	// state at least as new as any blob already saved. Without this a slow
	// earlier Save could land after a newer one and a restart would reload
	// regressed versions.
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	blob, err := s.marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	err = s.snapshots.Save(ctx, s.namespace, blob)
	if errors.Is(err, store.ErrQuotaExceeded) {
		s.mu.Lock()
		evicted := s.evictOldestCleanLocked(s.evictFrac)
		s.mu.Unlock()
		metrics.RecordEviction("pressure", evicted)
		logger.Log.Warn("Snapshot over quota, evicted clean entries",
			zap.String("namespace", s.namespace),
			zap.Int("evicted", evicted),
		)

		blob, merr := s.marshal()
		if merr == nil {
			err = s.snapshots.Save(ctx, s.namespace, blob)
		} else {
			err = merr
		}
	}
	if err != nil {
		logger.Log.Error("Snapshot flush failed, cache is memory-only",
			zap.String("namespace", s.namespace),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	return nil
}

func (s *Store) marshal() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(snapshot{Entries: s.entries, Versions: s.versions})
}

// SaveSnapshot forces a flush. Used on shutdown.
func (s *Store) SaveSnapshot(ctx context.Context) error {
	return s.flush(ctx)
}

// LoadSnapshot restores entries from the persisted blob. A corrupt or
// missing blob is not fatal: the cache starts empty and keeps running.
func (s *Store) LoadSnapshot(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}

	blob, err := s.snapshots.Load(ctx, s.namespace)
	if err != nil {
		logger.Log.Warn("Snapshot load failed, starting empty",
			zap.String("namespace", s.namespace),
			zap.Error(err),
		)
		return nil
	}
	if len(blob) == 0 {
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		logger.Log.Warn("Snapshot corrupt, starting empty",
			zap.String("namespace", s.namespace),
			zap.Error(err),
		)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Entries != nil {
		s.entries = snap.Entries
	}
	if snap.Versions != nil {
		s.versions = snap.Versions
	}
	// Version floors must cover every live entry even if the blob predates
	// floor tracking.
	for k, e := range s.entries {
		if s.versions[k] < e.Version {
			s.versions[k] = e.Version
		}
	}
	return nil
}

// DirtyKeys returns the keys of all dirty entries. Used to rebuild the sync
// queue after a snapshot restore.
func (s *Store) DirtyKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k, e := range s.entries {
		if e.Dirty {
			keys = append(keys, k)
		}
	}
	return keys
}
