// Package storage provides scratch-file management for per-item pipeline
// artifacts and an optional S3 archive for published thumbnails.
package storage

import (
	"context"
	"io"
)

// Storage defines temp-file and archive operations for the pipeline.
// Each work item gets its own scratch files; nothing is shared between
// items, and the coordinator deletes every path it created on exit.
type Storage interface {
	// TempFile creates an empty scratch file using pattern (as in
	// os.CreateTemp) and returns its path.
	TempFile(ctx context.Context, pattern string) (path string, err error)

	// LoadTemp reads a scratch file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified scratch files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Archive uploads data under key to the configured archive bucket and
	// returns the archive URL. Returns ErrArchiveNotConfigured when no
	// archive backend is set up.
	Archive(ctx context.Context, key string, data io.Reader) (url string, err error)
}
