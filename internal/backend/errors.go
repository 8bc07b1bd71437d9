package backend

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTimeout marks a call abandoned after its deadline. Retryable.
	ErrTimeout = errors.New("backend call timed out")

	// ErrUnavailable is the clean "no cached data and both sources down"
	// signal. Not a transport failure.
	ErrUnavailable = errors.New("unavailable, no cached data")
)

// TransientError wraps a retryable transport failure with its source.
type TransientError struct {
	Source string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient error: %v", e.Source, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ConflictError reports a version conflict found during sync. Not
// auto-retryable; both versions are attached so the caller can resolve.
type ConflictError struct {
	Key           string
	LocalVersion  int64
	RemoteVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %q: local v%d, remote v%d", e.Key, e.LocalVersion, e.RemoteVersion)
}

// ValidationError marks a payload the caller must fix. Not retryable.
type ValidationError struct {
	Key    string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %q: %v", e.Key, e.Issues)
}

// CorruptionError marks a payload that failed the severe corruption check.
// Blocks persistence, not retryable.
type CorruptionError struct {
	Key     string
	Reasons []string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("severe corruption in %q: %v", e.Key, e.Reasons)
}

// Retryable reports whether an error is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te *TransientError
	return errors.As(err, &te)
}
