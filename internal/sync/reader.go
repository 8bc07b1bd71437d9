package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"offline-sync-service/internal/backend"
	"offline-sync-service/internal/cache"
	"offline-sync-service/internal/logger"
	"go.uber.org/zap"
)

// ValidateFunc gates a fetched payload before it is persisted. A non-nil
// error rejects the value.
type ValidateFunc func(key string, payload json.RawMessage) error

type ReaderConfig struct {
	// Retries is the number of additional attempts after the first.
	Retries int
	// Backoff is the base delay; attempt n waits n*Backoff (linear).
	Backoff time.Duration
	// Timeout bounds each individual fetch attempt.
	Timeout time.Duration
}

// Reader serves reads cache-first, then primary, then the legacy secondary.
type Reader struct {
	cache    *cache.Store
	cfg      ReaderConfig
	validate ValidateFunc
}

func NewReader(store *cache.Store, cfg ReaderConfig, validate ValidateFunc) *Reader {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Reader{cache: store, cfg: cfg, validate: validate}
}

// Read consults the cache, then the primary backend, then the secondary.
// A value served by the secondary gets a migration-intent mark. A clean
// not-found in every source returns a nil-data result and no error; if both
// backends failed with transport errors and nothing is cached, the error
// wraps backend.ErrUnavailable with both causes.
func (r *Reader) Read(ctx context.Context, key string, primary, secondary backend.Client, ttl time.Duration) (ReadResult, error) {
	if e := r.cache.Get(key); e != nil {
		return ReadResult{Data: e.Payload, Source: SourceCache, Version: e.Version}, nil
	}

	payload, primaryErr := r.fetchWithRetry(ctx, primary, key)
	if primaryErr == nil && payload != nil {
		entry, err := r.persist(ctx, key, payload, ttl, false)
		if err != nil {
			return ReadResult{Source: SourcePrimary}, err
		}
		return ReadResult{Data: payload, Source: SourcePrimary, Version: entry.Version}, nil
	}
	if primaryErr != nil {
		logger.Log.Warn("Primary fetch failed, falling back",
			zap.String("key", key),
			zap.Error(primaryErr),
		)
	}

	payload, secondaryErr := r.fetchWithRetry(ctx, secondary, key)
	if secondaryErr == nil && payload != nil {
		entry, err := r.persist(ctx, key, payload, ttl, true)
		if err != nil {
			return ReadResult{Source: SourceSecondary}, err
		}
		return ReadResult{Data: payload, Source: SourceSecondary, Version: entry.Version}, nil
	}

	// Not found anywhere is a clean miss, not an error.
	if primaryErr == nil && secondaryErr == nil {
		return ReadResult{Source: SourcePrimary}, nil
	}

	err := fmt.Errorf("%w: primary: %v, secondary: %v", backend.ErrUnavailable, primaryErr, secondaryErr)
	return ReadResult{Source: SourcePrimary}, err
}

// fetchWithRetry runs bounded attempts with linear backoff. A nil payload
// (not found) is returned immediately so the caller can fall through to the
// next source. Late results from a timed-out attempt are discarded.
func (r *Reader) fetchWithRetry(ctx context.Context, client backend.Client, key string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * r.cfg.Backoff
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, backend.ErrTimeout
			}
		}

		payload, err := r.fetchOnce(ctx, client, key)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !backend.Retryable(err) {
			break
		}
	}
	return nil, lastErr
}

type fetchOutcome struct {
	payload json.RawMessage
	err     error
}

func (r *Reader) fetchOnce(ctx context.Context, client backend.Client, key string) (json.RawMessage, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	// Buffered so an abandoned attempt can still complete its send; the
	// result is simply never read.
	done := make(chan fetchOutcome, 1)
	go func() {
		payload, err := client.Fetch(fetchCtx, key)
		done <- fetchOutcome{payload, err}
	}()

	select {
	case out := <-done:
		if errors.Is(out.err, context.DeadlineExceeded) {
			return nil, backend.ErrTimeout
		}
		return out.payload, out.err
	case <-fetchCtx.Done():
		return nil, backend.ErrTimeout
	}
}

func (r *Reader) persist(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration, fromSecondary bool) (*cache.Entry, error) {
	if r.validate != nil {
		if err := r.validate(key, payload); err != nil {
			return nil, err
		}
	}

	entry, err := r.cache.Put(ctx, key, payload, cache.PutOptions{TTL: ttl})
	if errors.Is(err, cache.ErrPersistFailed) {
		// Memory state updated; flush failure already logged.
		err = nil
	}
	if err != nil {
		return nil, err
	}

	if fromSecondary {
		r.cache.MarkMigrationIntent(key)
	}
	return entry, nil
}
