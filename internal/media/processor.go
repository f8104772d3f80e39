// Package media provides video segment fetching and thumbnail frame
// extraction on top of the ffmpeg CLI, plus validation of the produced
// artifacts.
package media

import "context"

// Processor defines the media operations the thumbnail pipeline depends on.
// Implementations shell out to ffmpeg/ffprobe.
type Processor interface {
	// FetchSegment downloads the leading duration seconds of the remote
	// video at videoURL into dst. Transient network failures are marked
	// retryable for the caller's retry policy.
	FetchSegment(ctx context.Context, videoURL string, duration int, dst string) error

	// ExtractFrame writes a single JPEG still of the segment at the given
	// timestamp to dst, within the thumbnail size and dimension limits.
	ExtractFrame(ctx context.Context, segmentPath string, timestamp float64, dst string) error

	// ProbeDuration returns the duration in seconds of a media file.
	ProbeDuration(ctx context.Context, path string) (float64, error)
}
