package uploader

import (
	"context"
	"fmt"

	"peertube-batch/internal/peertube"
)

const (
	peertubePrivacyPublic   = 1
	peertubePrivacyUnlisted = 2

	// peertubeCategoryHowTo is the PeerTube category for instructional content.
	peertubeCategoryHowTo = 8
)

// PeerTubeAdapter adapts the PeerTube client to the Platform interface.
type PeerTubeAdapter struct {
	client *peertube.Client
}

// NewPeerTubeAdapter creates a new PeerTube platform adapter.
func NewPeerTubeAdapter(client *peertube.Client) *PeerTubeAdapter {
	return &PeerTubeAdapter{client: client}
}

// Name returns the platform label.
func (a *PeerTubeAdapter) Name() string {
	return "peertube"
}

// Upload sends the video to the PeerTube instance.
func (a *PeerTubeAdapter) Upload(ctx context.Context, path string, meta Metadata) (Result, error) {
	privacy := peertubePrivacyPublic
	if meta.Unlisted {
		privacy = peertubePrivacyUnlisted
	}

	result, err := a.client.UploadVideo(ctx, path, peertube.VideoMeta{
		Title:       meta.Title,
		Description: meta.Description,
		Privacy:     privacy,
		Category:    peertubeCategoryHowTo,
	})
	if err != nil {
		return Result{}, fmt.Errorf("peertube adapter upload: %w", err)
	}

	return Result{ID: result.UUID, WatchURL: result.WatchURL}, nil
}

// Compile-time check that PeerTubeAdapter implements Platform.
var _ Platform = (*PeerTubeAdapter)(nil)
