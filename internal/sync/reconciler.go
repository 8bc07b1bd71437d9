package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"offline-sync-service/internal/backend"
	"offline-sync-service/internal/cache"
	"offline-sync-service/internal/logger"
	"offline-sync-service/internal/metrics"
)

const historyLimit = 50

var errSyncRejected = errors.New("sync rejected by backend")

type ReconcilerConfig struct {
	// MaxAttempts flags an entry for manual intervention once reached.
	MaxAttempts int
	// Backoff is the base delay before a failed key becomes eligible
	// again; it doubles per recorded failure (exponential).
	Backoff time.Duration
	// PushTimeout bounds each sync call.
	PushTimeout time.Duration
}

// Reconciler drains the sync queue against the authoritative backend. Only
// one drain runs at a time; concurrent calls return an empty result rather
// than blocking.
type Reconciler struct {
	cache    *cache.Store
	queue    *Queue
	cfg      ReconcilerConfig
	now      func() time.Time
	draining atomic.Bool

	histMu  stdsync.Mutex
	history []SyncResult
}

func NewReconciler(store *cache.Store, queue *Queue, cfg ReconcilerConfig) *Reconciler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 5 * time.Second
	}
	return &Reconciler{
		cache: store,
		queue: queue,
		cfg:   cfg,
		now:   time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Drain walks the queue in FIFO order pushing each dirty entry through fn.
// Successes clear the dirty flag and dequeue; failures record an attempt
// and the key stays queued. Flagged keys and keys inside their backoff
// window are skipped. One key's failure never aborts the rest.
func (r *Reconciler) Drain(ctx context.Context, fn SyncFunc) SyncResult {
	if !r.draining.CompareAndSwap(false, true) {
		return SyncResult{}
	}
	defer r.draining.Store(false)

	result := SyncResult{
		RunID:     uuid.New().String(),
		StartedAt: r.now(),
	}

	for _, qe := range r.queue.Entries() {
		if ctx.Err() != nil {
			break
		}
		if qe.Flagged {
			continue
		}
		if !qe.NextAttemptAt.IsZero() && r.now().Before(qe.NextAttemptAt) {
			continue
		}

		entry := r.cache.Get(qe.Key)
		if entry == nil || !entry.Dirty {
			// Entry gone or already clean; the queue reference is stale.
			r.queue.Remove(qe.Key)
			continue
		}

		err := r.syncOne(ctx, fn, qe.Key, entry)
		if err == nil {
			r.cache.MarkClean(qe.Key, r.now())
			r.queue.Remove(qe.Key)
			result.Synced++
			continue
		}

		var conflict *backend.ConflictError
		if errors.As(err, &conflict) {
			metrics.RecordConflict()
		}

		shift := qe.Attempts
		if shift > 10 {
			shift = 10
		}
		backoff := r.cfg.Backoff << uint(shift)
		r.queue.RecordFailure(qe.Key, err, r.cfg.MaxAttempts, r.now().Add(backoff))
		result.Failed++
		result.Errors = append(result.Errors, err)

		if updated, ok := r.queue.Get(qe.Key); ok && updated.Flagged {
			logger.Log.Error("Key reached sync attempt ceiling, flagged for manual intervention",
				zap.String("key", qe.Key),
				zap.Int("attempts", updated.Attempts),
			)
		}
	}

	result.CompletedAt = r.now()
	r.record(result)

	metrics.RecordDrain(result.CompletedAt.Sub(result.StartedAt), result.Failed)
	metrics.SetQueueDepth(r.queue.Len())

	logger.Log.Info("Drain completed",
		zap.String("runID", result.RunID),
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed),
	)
	return result
}

func (r *Reconciler) syncOne(ctx context.Context, fn SyncFunc, key string, entry *cache.Entry) error {
	pushCtx, cancel := context.WithTimeout(ctx, r.cfg.PushTimeout)
	defer cancel()

	res, err := fn(pushCtx, key, entry)
	if err != nil {
		return err
	}
	if res.Conflict {
		return &backend.ConflictError{
			Key:           key,
			LocalVersion:  entry.Version,
			RemoteVersion: res.NewVersion,
		}
	}
	if !res.Success {
		return &backend.TransientError{Source: "sync", Err: errSyncRejected}
	}
	return nil
}

// History returns recent drain results, newest first.
func (r *Reconciler) History() []SyncResult {
	r.histMu.Lock()
	defer r.histMu.Unlock()
	out := make([]SyncResult, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Reconciler) record(result SyncResult) {
	r.histMu.Lock()
	defer r.histMu.Unlock()
	r.history = append([]SyncResult{result}, r.history...)
	if len(r.history) > historyLimit {
		r.history = r.history[:historyLimit]
	}
}
