package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrArchiveNotConfigured indicates no archive backend is configured.
var ErrArchiveNotConfigured = errors.New("archive backend not configured")

// LocalStorage implements Storage using the local filesystem.
type LocalStorage struct {
	tempDir string
}

// NewLocalStorage creates a LocalStorage rooted at tempDir, creating the
// directory if needed.
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "peertube-batch")
	}

	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create temp directory %s: %w", tempDir, err)
	}

	return &LocalStorage{tempDir: tempDir}, nil
}

// TempDir returns the scratch directory used for temp files.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// TempFile creates an empty scratch file in the storage temp directory.
func (s *LocalStorage) TempFile(ctx context.Context, pattern string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	f, err := os.CreateTemp(s.tempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	path := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	return path, nil
}

// LoadTemp opens a scratch file for reading.
func (s *LocalStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open temp file %s: %w", path, err)
	}

	return f, nil
}

// CleanupTemp removes each path, continuing past failures and returning
// the first error seen. Paths that no longer exist are not errors.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error

	for _, path := range paths {
		select {
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			return firstErr
		default:
		}

		if path == "" {
			continue
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}
	}

	return firstErr
}

// Archive is not supported by local storage.
func (s *LocalStorage) Archive(ctx context.Context, key string, data io.Reader) (string, error) {
	return "", ErrArchiveNotConfigured
}
