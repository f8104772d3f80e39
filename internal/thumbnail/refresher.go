package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"peertube-batch/internal/media"
	"peertube-batch/internal/retry"
	"peertube-batch/internal/storage"
)

// PlatformAPI is the remote platform surface a refresh needs: resolving a
// downloadable file URL for a video and publishing the finished thumbnail.
type PlatformAPI interface {
	VideoFileURL(ctx context.Context, videoID string) (string, error)
	UploadThumbnail(ctx context.Context, videoID, imagePath string) error
}

// Refresher coordinates a single video's thumbnail refresh:
// fetch a short segment, extract a frame, validate it, publish it.
// Every scratch file it creates is removed before Refresh returns,
// on success and on every failure path.
type Refresher struct {
	api            PlatformAPI
	processor      media.Processor
	store          storage.Storage
	policy         retry.Policy
	segmentSeconds int
	logger         *slog.Logger
}

// NewRefresher creates a Refresher. segmentSeconds controls how much of the
// video is downloaded before frame extraction.
func NewRefresher(api PlatformAPI, processor media.Processor, store storage.Storage, policy retry.Policy, segmentSeconds int, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if segmentSeconds <= 0 {
		segmentSeconds = 10
	}
	return &Refresher{
		api:            api,
		processor:      processor,
		store:          store,
		policy:         policy,
		segmentSeconds: segmentSeconds,
		logger:         logger,
	}
}

// Refresh runs the full pipeline for one video and returns a terminal Result.
// Errors never escape: every failure is reduced to Result.Err with the stage
// it occurred in. Only the fetch is retried, per the retry policy; the
// publish is attempted exactly once.
func (r *Refresher) Refresh(ctx context.Context, videoID string, timestamp float64) Result {
	logger := r.logger.With(slog.String("video_id", videoID))
	state := newRun()

	var scratch []string
	defer func() {
		if err := r.store.CleanupTemp(context.WithoutCancel(ctx), scratch); err != nil {
			logger.Warn("scratch cleanup incomplete", slog.String("error", err.Error()))
		}
	}()

	fileURL, err := r.api.VideoFileURL(ctx, videoID)
	if err != nil {
		return r.failure(logger, state, fmt.Errorf("resolve file URL: %w", err))
	}

	segmentPath, err := r.store.TempFile(ctx, "segment-*.mp4")
	if err != nil {
		return r.failure(logger, state, err)
	}
	scratch = append(scratch, segmentPath)

	err = r.policy.Do(ctx, func(ctx context.Context) error {
		return r.processor.FetchSegment(ctx, fileURL, r.segmentSeconds, segmentPath)
	})
	if err != nil {
		return r.failure(logger, state, err)
	}

	if err := state.advance(StageExtracting); err != nil {
		return r.failure(logger, state, err)
	}

	thumbPath, err := r.store.TempFile(ctx, "thumb-*.jpg")
	if err != nil {
		return r.failure(logger, state, err)
	}
	scratch = append(scratch, thumbPath)

	if err := r.processor.ExtractFrame(ctx, segmentPath, timestamp, thumbPath); err != nil {
		return r.failure(logger, state, err)
	}

	if err := state.advance(StageValidating); err != nil {
		return r.failure(logger, state, err)
	}

	if err := media.ValidateThumbnail(thumbPath); err != nil {
		return r.failure(logger, state, err)
	}

	if err := state.advance(StagePublishing); err != nil {
		return r.failure(logger, state, err)
	}

	if err := r.api.UploadThumbnail(ctx, videoID, thumbPath); err != nil {
		return r.failure(logger, state, err)
	}

	r.archive(ctx, logger, videoID, thumbPath)

	if err := state.advance(StageDone); err != nil {
		return r.failure(logger, state, err)
	}

	logger.Info("thumbnail published")
	return Result{Stage: StageDone}
}

// archive copies the published thumbnail to the archive bucket when one is
// configured. Archive failures are logged and never fail the item.
func (r *Refresher) archive(ctx context.Context, logger *slog.Logger, videoID, thumbPath string) {
	reader, err := r.store.LoadTemp(ctx, thumbPath)
	if err != nil {
		logger.Warn("archive skipped, thumbnail unreadable", slog.String("error", err.Error()))
		return
	}
	defer reader.Close()

	key := fmt.Sprintf("thumbnails/%s.jpg", videoID)
	url, err := r.store.Archive(ctx, key, reader)
	if err != nil {
		if errors.Is(err, storage.ErrArchiveNotConfigured) {
			return
		}
		logger.Warn("thumbnail archive failed", slog.String("error", err.Error()))
		return
	}

	logger.Info("thumbnail archived", slog.String("url", url))
}

func (r *Refresher) failure(logger *slog.Logger, state *run, err error) Result {
	stage := state.stage
	_ = state.advance(StageFailed)
	logger.Warn("refresh failed",
		slog.String("stage", string(stage)),
		slog.String("error", err.Error()),
	)
	return Result{Stage: stage, Err: err}
}
