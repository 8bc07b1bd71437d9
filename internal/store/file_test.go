package store

import (
	"context"
	"errors"
	"testing"

	"offline-sync-service/internal/config"
)

func newTestFileStore(t *testing.T, maxBytes int64) *FileStore {
	t.Helper()
	s, err := NewFileStore(config.StateStorage{
		DataDir:  t.TempDir(),
		MaxBytes: maxBytes,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := newTestFileStore(t, 0)
	ctx := context.Background()

	blob := []byte(`{"entries":{}}`)
	if err := s.Save(ctx, "ns", blob); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx, "ns")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(blob) {
		t.Fatalf("want %s, got %s", blob, got)
	}
}

func TestFileStoreMissingNamespace(t *testing.T) {
	s := newTestFileStore(t, 0)
	got, err := s.Load(context.Background(), "never-written")
	if err != nil {
		t.Fatalf("missing namespace is not an error: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil blob, got %q", got)
	}
}

func TestFileStoreQuota(t *testing.T) {
	s := newTestFileStore(t, 8)
	err := s.Save(context.Background(), "ns", []byte("a blob larger than eight bytes"))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("want ErrQuotaExceeded, got %v", err)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	s := newTestFileStore(t, 0)
	ctx := context.Background()

	s.Save(ctx, "ns", []byte("v1"))
	s.Save(ctx, "ns", []byte("v2"))
	got, _ := s.Load(ctx, "ns")
	if string(got) != "v2" {
		t.Fatalf("want v2, got %s", got)
	}
}

func TestFileStoreRejectsPathTraversal(t *testing.T) {
	s := newTestFileStore(t, 0)
	if err := s.Save(context.Background(), "../escape", []byte("x")); err == nil {
		t.Fatal("namespace with path separators must be rejected")
	}
}

func TestFileStoreDelete(t *testing.T) {
	s := newTestFileStore(t, 0)
	ctx := context.Background()

	s.Save(ctx, "ns", []byte("v"))
	if err := s.Delete(ctx, "ns"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Load(ctx, "ns"); got != nil {
		t.Fatal("deleted namespace should load as nil")
	}
	// Deleting again is not an error.
	if err := s.Delete(ctx, "ns"); err != nil {
		t.Fatal(err)
	}
}
