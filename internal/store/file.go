package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"offline-sync-service/internal/config"
	"offline-sync-service/internal/logger"
	"go.uber.org/zap"
)

var namespaceRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// FileStore keeps one blob file per namespace under a data directory.
// Writes go through a temp file and rename so a crash never leaves a
// half-written snapshot.
type FileStore struct {
	dir      string
	maxBytes int64
}

func NewFileStore(cfg config.StateStorage) (*FileStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &FileStore{
		dir:      cfg.DataDir,
		maxBytes: cfg.MaxBytes,
	}, nil
}

func (s *FileStore) path(namespace string) (string, error) {
	if !namespaceRe.MatchString(namespace) {
		return "", fmt.Errorf("invalid namespace %q", namespace)
	}
	return filepath.Join(s.dir, namespace+".snapshot.json"), nil
}

func (s *FileStore) Save(ctx context.Context, namespace string, blob []byte) error {
	if s.maxBytes > 0 && int64(len(blob)) > s.maxBytes {
		return ErrQuotaExceeded
	}

	path, err := s.path(namespace)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	logger.Log.Debug("Saved snapshot",
		zap.String("namespace", namespace),
		zap.Int("bytes", len(blob)),
	)
	return nil
}

func (s *FileStore) Load(ctx context.Context, namespace string) ([]byte, error) {
	path, err := s.path(namespace)
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return blob, nil
}

func (s *FileStore) Delete(ctx context.Context, namespace string) error {
	path, err := s.path(namespace)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
