package uploader

import (
	"context"
	"fmt"

	"peertube-batch/internal/youtube"
)

// YouTubeAdapter adapts the YouTube client to the Platform interface.
type YouTubeAdapter struct {
	client youtube.Client
}

// NewYouTubeAdapter creates a new YouTube platform adapter.
func NewYouTubeAdapter(client youtube.Client) *YouTubeAdapter {
	return &YouTubeAdapter{client: client}
}

// Name returns the platform label.
func (a *YouTubeAdapter) Name() string {
	return "youtube"
}

// Upload sends the video to YouTube.
func (a *YouTubeAdapter) Upload(ctx context.Context, path string, meta Metadata) (Result, error) {
	privacy := "public"
	if meta.Unlisted {
		privacy = "unlisted"
	}

	result, err := a.client.UploadVideo(ctx, path, youtube.VideoMeta{
		Title:       meta.Title,
		Description: meta.Description,
		Privacy:     privacy,
	})
	if err != nil {
		return Result{}, fmt.Errorf("youtube adapter upload: %w", err)
	}

	return Result{ID: result.ID, WatchURL: result.WatchURL}, nil
}

// Compile-time check that YouTubeAdapter implements Platform.
var _ Platform = (*YouTubeAdapter)(nil)
