package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		tempDir := filepath.Join(os.TempDir(), "peertube_batch_test_"+randomSuffix())
		defer func() { _ = os.RemoveAll(tempDir) }()

		storage, err := NewLocalStorage(tempDir)
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		if storage.TempDir() != tempDir {
			t.Errorf("TempDir() = %v, want %v", storage.TempDir(), tempDir)
		}

		info, err := os.Stat(tempDir)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected directory, got file")
		}
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		storage, err := NewLocalStorage("")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		expected := filepath.Join(os.TempDir(), "peertube-batch")
		if storage.TempDir() != expected {
			t.Errorf("TempDir() = %v, want %v", storage.TempDir(), expected)
		}
	})
}

func TestLocalStorage_TempFile(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("creates empty file matching pattern", func(t *testing.T) {
		path, err := storage.TempFile(ctx, "segment-*.mp4")
		if err != nil {
			t.Fatalf("TempFile() error = %v", err)
		}
		defer func() { _ = os.Remove(path) }()

		if !strings.HasSuffix(path, ".mp4") {
			t.Errorf("path %s should end in .mp4", path)
		}
		if !strings.HasPrefix(path, storage.TempDir()) {
			t.Errorf("path %s should be under %s", path, storage.TempDir())
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("file not created: %v", err)
		}
		if info.Size() != 0 {
			t.Errorf("expected empty file, got %d bytes", info.Size())
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.TempFile(ctx, "segment-*.mp4")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_LoadTemp(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("loads scratch file", func(t *testing.T) {
		path := writeScratch(t, storage, "load data")
		defer func() { _ = os.Remove(path) }()

		reader, err := storage.LoadTemp(ctx, path)
		if err != nil {
			t.Fatalf("LoadTemp() error = %v", err)
		}
		defer func() { _ = reader.Close() }()

		content, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("failed to read: %v", err)
		}
		if string(content) != "load data" {
			t.Errorf("got %q, want %q", string(content), "load data")
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		_, err := storage.LoadTemp(ctx, "/non/existent/file")
		if err == nil {
			t.Error("expected error for non-existent file")
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.LoadTemp(ctx, "/some/path")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_CleanupTemp(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("removes files", func(t *testing.T) {
		var paths []string
		for i := 0; i < 3; i++ {
			paths = append(paths, writeScratch(t, storage, "data"))
		}

		err := storage.CleanupTemp(ctx, paths)
		if err != nil {
			t.Fatalf("CleanupTemp() error = %v", err)
		}

		for _, p := range paths {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Errorf("file %s still exists", p)
			}
		}
	})

	t.Run("ignores non-existent files", func(t *testing.T) {
		err := storage.CleanupTemp(ctx, []string{"/non/existent/file"})
		if err != nil {
			t.Errorf("CleanupTemp() should ignore non-existent files, got %v", err)
		}
	})

	t.Run("ignores empty paths", func(t *testing.T) {
		err := storage.CleanupTemp(ctx, []string{"", ""})
		if err != nil {
			t.Errorf("CleanupTemp() should ignore empty paths, got %v", err)
		}
	})

	t.Run("continues past failures", func(t *testing.T) {
		path := writeScratch(t, storage, "data")

		// A directory with contents cannot be removed with os.Remove.
		blocked := filepath.Join(storage.TempDir(), "blocked")
		if err := os.MkdirAll(filepath.Join(blocked, "child"), 0o750); err != nil {
			t.Fatalf("failed to create blocked dir: %v", err)
		}

		err := storage.CleanupTemp(ctx, []string{blocked, path})
		if err == nil {
			t.Error("expected error for undeletable path")
		}

		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("file %s should have been removed despite earlier failure", path)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := storage.CleanupTemp(ctx, []string{"/some/path"})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_Archive(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	_, err := storage.Archive(ctx, "key", bytes.NewReader([]byte("data")))
	if !errors.Is(err, ErrArchiveNotConfigured) {
		t.Errorf("expected ErrArchiveNotConfigured, got %v", err)
	}
}

// writeScratch creates a scratch file through the storage and fills it
// with content.
func writeScratch(t *testing.T, storage *LocalStorage, content string) string {
	t.Helper()

	path, err := storage.TempFile(context.Background(), "scratch-*")
	if err != nil {
		t.Fatalf("TempFile() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write scratch file: %v", err)
	}
	return path
}

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	tempDir := filepath.Join(os.TempDir(), "peertube_batch_test_"+randomSuffix())
	t.Cleanup(func() { _ = os.RemoveAll(tempDir) })

	storage, err := NewLocalStorage(tempDir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return storage
}

func randomSuffix() string {
	return time.Now().Format("20060102150405.000000000")
}
