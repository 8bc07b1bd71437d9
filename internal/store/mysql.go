package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"offline-sync-service/internal/config"
	"offline-sync-service/internal/logger"
	"go.uber.org/zap"
)

type MySQLStore struct {
	db       *sql.DB
	maxBytes int64
}

func NewMySQLStore(cfg config.StateStorage) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	// Retry loop for Ping
	maxRetries := 30
	for i := 0; i < maxRetries; i++ {
		err = db.Ping()
		if err == nil {
			break
		}
		logger.Log.Info("Waiting for state DB...", zap.Error(err), zap.Int("attempt", i+1))
		time.Sleep(1 * time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to ping mysql after retries: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return &MySQLStore{db: db, maxBytes: cfg.MaxBytes}, nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) Save(ctx context.Context, namespace string, blob []byte) error {
	if s.maxBytes > 0 && int64(len(blob)) > s.maxBytes {
		return ErrQuotaExceeded
	}

	query := `INSERT INTO cache_snapshots (namespace, blob, updated_at)
			  VALUES (?, ?, NOW())
			  ON DUPLICATE KEY UPDATE
			  blob = VALUES(blob),
			  updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query, namespace, blob)
	return err
}

func (s *MySQLStore) Load(ctx context.Context, namespace string) ([]byte, error) {
	query := `SELECT blob FROM cache_snapshots WHERE namespace = ?`

	var blob []byte
	err := s.db.QueryRowContext(ctx, query, namespace).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *MySQLStore) Delete(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_snapshots WHERE namespace = ?`, namespace)
	return err
}

// NewSnapshotStore selects the persistence backend from config.
func NewSnapshotStore(cfg config.StateStorage) (SnapshotStore, error) {
	switch cfg.Type {
	case "mysql":
		return NewMySQLStore(cfg)
	case "file", "":
		return NewFileStore(cfg)
	default:
		return nil, fmt.Errorf("unknown state storage type %q", cfg.Type)
	}
}
