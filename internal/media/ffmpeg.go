package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"peertube-batch/internal/retry"
)

// Thumbnail constraints imposed by the PeerTube API.
const (
	// MaxThumbnailBytes is the hard upload limit for thumbnail images.
	MaxThumbnailBytes = 4 * 1024 * 1024
	// MaxThumbnailWidth and MaxThumbnailHeight bound the output resolution.
	MaxThumbnailWidth  = 1280
	MaxThumbnailHeight = 720
)

// fallback resolution used when the quality ladder alone cannot reach the
// size limit.
const (
	fallbackWidth  = 854
	fallbackHeight = 480
)

// minSegmentBytes is the smallest plausible size for a fetched segment;
// anything below it is a truncated or empty download.
const minSegmentBytes = 1024

// Static errors for media operations.
var (
	// ErrFetchFailed is returned when a remote segment cannot be downloaded.
	ErrFetchFailed = errors.New("media: segment fetch failed")
	// ErrTimestampOutOfRange is returned when the requested frame lies
	// beyond the end of the segment.
	ErrTimestampOutOfRange = errors.New("media: timestamp beyond segment duration")
	// ErrArtifactTooLarge is returned when the thumbnail cannot be encoded
	// within the size limit even at minimum quality.
	ErrArtifactTooLarge = errors.New("media: thumbnail exceeds size limit")
	// ErrInvalidFormat is returned when an artifact is not a well-formed
	// JPEG within the dimension bounds.
	ErrInvalidFormat = errors.New("media: invalid thumbnail format")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("media: ffprobe execution failed")
	// ErrInvalidDuration is returned when duration is not positive.
	ErrInvalidDuration = errors.New("media: invalid duration: must be positive")
)

// Default wall-clock bounds on subprocess invocations. A hung ffmpeg must
// surface as a stage failure, never stall the batch.
const (
	DefaultFetchTimeout = 120 * time.Second
	DefaultProbeTimeout = 30 * time.Second
)

// FFmpegProcessor implements Processor using the ffmpeg CLI.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
	// fetchTimeout bounds one segment download attempt.
	fetchTimeout time.Duration
	// probeTimeout bounds one ffprobe run or single-frame encode.
	probeTimeout time.Duration
	// maxThumbnailBytes is the size limit enforced by the quality ladder.
	maxThumbnailBytes int64
}

// ProcessorOption customizes a FFmpegProcessor.
type ProcessorOption func(*FFmpegProcessor)

// WithFFprobePath sets the path to the ffprobe binary.
func WithFFprobePath(path string) ProcessorOption {
	return func(p *FFmpegProcessor) {
		p.ffprobePath = path
	}
}

// WithFetchTimeout sets the wall-clock bound for one segment download
// attempt. Zero disables the bound.
func WithFetchTimeout(d time.Duration) ProcessorOption {
	return func(p *FFmpegProcessor) {
		p.fetchTimeout = d
	}
}

// WithProbeTimeout sets the wall-clock bound for one ffprobe run or
// single-frame encode. Zero disables the bound.
func WithProbeTimeout(d time.Duration) ProcessorOption {
	return func(p *FFmpegProcessor) {
		p.probeTimeout = d
	}
}

// WithMaxThumbnailBytes overrides the thumbnail size limit.
func WithMaxThumbnailBytes(n int64) ProcessorOption {
	return func(p *FFmpegProcessor) {
		p.maxThumbnailBytes = n
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string, opts ...ProcessorOption) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &FFmpegProcessor{
		ffmpegPath:        ffmpegPath,
		ffprobePath:       "ffprobe",
		fetchTimeout:      DefaultFetchTimeout,
		probeTimeout:      DefaultProbeTimeout,
		maxThumbnailBytes: MaxThumbnailBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchSegment downloads only the leading duration seconds of a remote
// video into dst, copying streams without re-encoding so bandwidth stays
// bounded per item. Each attempt runs under the fetch timeout; exceeding
// it fails the attempt. Transient network failures come back marked retryable
// for the caller's retry policy; everything else is terminal. Either way
// the error wraps ErrFetchFailed and no partial output survives.
func (p *FFmpegProcessor) FetchSegment(ctx context.Context, videoURL string, duration int, dst string) error {
	if duration <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidDuration, duration)
	}

	args := []string{
		"-y",
		"-reconnect", "1",
		"-reconnect_at_eof", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-timeout", "10000000", // socket timeout, microseconds
		"-i", videoURL,
		"-t", fmt.Sprintf("%d", duration),
		"-c", "copy",
		"-movflags", "faststart",
		dst,
	}

	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}

	if err := p.runFFmpeg(ctx, args); err != nil {
		_ = os.Remove(dst)

		var ffErr *FFmpegError
		if errors.As(err, &ffErr) && isTransientFetch(ffErr.Stderr) {
			return retry.Mark(fmt.Errorf("%w: %w", ErrFetchFailed, err))
		}
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("%w: segment was not created: %w", ErrFetchFailed, err)
	}
	if info.Size() < minSegmentBytes {
		_ = os.Remove(dst)
		return fmt.Errorf("%w: segment too small (%d bytes)", ErrFetchFailed, info.Size())
	}

	return nil
}

// transientFetchPatterns are ffmpeg stderr fragments that indicate a
// network hiccup worth retrying rather than a permanent failure.
var transientFetchPatterns = []string{
	"connection reset",
	"connection refused",
	"connection timed out",
	"operation timed out",
	"timed out",
	"end of file",
	"temporary failure",
	"5xx server error",
	"error in the pull function",
}

// isTransientFetch classifies ffmpeg stderr output.
func isTransientFetch(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, pattern := range transientFetchPatterns {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}

// ExtractFrame produces a single JPEG still from the segment at the given
// timestamp, scaled to fit 1280x720 with aspect-preserving padding. If the
// first encoding exceeds the size limit, quality is stepped down, then the
// resolution is dropped once; a frame that still cannot fit fails with
// ErrArtifactTooLarge. The timestamp must lie within the segment.
func (p *FFmpegProcessor) ExtractFrame(ctx context.Context, segmentPath string, timestamp float64, dst string) error {
	duration, err := p.ProbeDuration(ctx, segmentPath)
	if err != nil {
		return err
	}
	if timestamp > duration {
		return fmt.Errorf("%w: want %.2fs, segment is %.2fs", ErrTimestampOutOfRange, timestamp, duration)
	}

	// Quality ladder: -q:v 5 is good quality; larger values are smaller
	// files, 20 is the floor before the resolution drop.
	for quality := 5; quality <= 20; quality += 3 {
		size, err := p.encodeFrame(ctx, segmentPath, timestamp, dst, MaxThumbnailWidth, MaxThumbnailHeight, quality)
		if err != nil {
			_ = os.Remove(dst)
			return err
		}
		if size <= p.maxThumbnailBytes {
			return nil
		}
	}

	// Last resort: reduce resolution.
	size, err := p.encodeFrame(ctx, segmentPath, timestamp, dst, fallbackWidth, fallbackHeight, 10)
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if size > p.maxThumbnailBytes {
		_ = os.Remove(dst)
		return fmt.Errorf("%w: %d bytes at minimum quality", ErrArtifactTooLarge, size)
	}

	return nil
}

// encodeFrame runs one ffmpeg frame extraction and returns the encoded size.
func (p *FFmpegProcessor) encodeFrame(ctx context.Context, src string, timestamp float64, dst string, w, h, quality int) (int64, error) {
	// scale fits within w x h preserving aspect ratio, pad centers the
	// frame on a black canvas of exactly w x h.
	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h, w, h)

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", timestamp),
		"-i", src,
		"-vf", filter,
		"-frames:v", "1",
		"-q:v", fmt.Sprintf("%d", quality),
		"-f", "image2",
		dst,
	}

	if p.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.probeTimeout)
		defer cancel()
	}

	if err := p.runFFmpeg(ctx, args); err != nil {
		return 0, err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("media: frame was not created: %w", err)
	}
	return info.Size(), nil
}

// ProbeDuration returns the duration in seconds of a media file.
// It uses ffprobe to extract the duration metadata.
func (p *FFmpegProcessor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if p.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.probeTimeout)
		defer cancel()
	}

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: ffprobe exceeded time limit: %w", ErrFFprobeExecution, ctx.Err())
		}
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	_, err = fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	return duration, nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ffmpeg exceeded time limit: %w", ctx.Err())
		}
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
