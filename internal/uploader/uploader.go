// Package uploader provides the common interface for video hosting
// platforms and the batch orchestrator that uploads catalog entries to them.
package uploader

import "context"

// Metadata describes the video being uploaded, independent of platform.
type Metadata struct {
	Title       string
	Description string
	// Unlisted controls visibility on platforms that support it.
	Unlisted bool
}

// Result identifies the uploaded video on its platform.
type Result struct {
	// ID is the platform-assigned video identifier.
	ID string
	// WatchURL is the public watch page for the video.
	WatchURL string
}

// Platform defines the interface for video hosting destinations.
// Both the PeerTube and YouTube adapters implement this interface.
type Platform interface {
	// Name returns a short platform label for logs and summaries.
	Name() string

	// Upload sends the video file at path with its metadata and returns
	// the platform's identifier for it.
	Upload(ctx context.Context, path string, meta Metadata) (Result, error)
}
