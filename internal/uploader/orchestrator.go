package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"peertube-batch/internal/catalog"
	"peertube-batch/internal/runid"
)

// Failure records a single upload that did not complete.
type Failure struct {
	Title    string
	Platform string
	Reason   string
}

// Summary describes the outcome of a batch upload run. Uploads counts
// individual platform uploads, not items.
type Summary struct {
	RunID    string
	Total    int
	Skipped  int
	Uploads  int
	Failed   int
	Failures []Failure
}

// Orchestrator uploads catalog entries that are missing platform IDs.
// Like the thumbnail batch, it walks the catalog in order and persists it
// after every successful upload, so an interrupted run never re-uploads
// what already succeeded.
type Orchestrator struct {
	platforms   []Platform
	catalogPath string
	unlisted    bool
	logger      *slog.Logger
}

// NewOrchestrator creates a batch upload Orchestrator. Videos are uploaded
// unlisted, matching how course videos are hosted.
func NewOrchestrator(platforms []Platform, catalogPath string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		platforms:   platforms,
		catalogPath: catalogPath,
		unlisted:    true,
		logger:      logger,
	}
}

// needsUpload reports whether item is missing an ID for the named platform.
func needsUpload(item catalog.Item, platform string) bool {
	switch platform {
	case "peertube":
		return item.PeerTubeID == ""
	case "youtube":
		return item.YouTubeID == ""
	default:
		return false
	}
}

// Run uploads every catalog item that lacks a platform ID from videoDir.
//
// Catalog I/O failures abort the run. A missing video file, or a rejected
// upload on one platform, is recorded in the Summary and never stops the
// loop; the other platforms still get their turn for the same item.
func (o *Orchestrator) Run(ctx context.Context, videoDir string) (Summary, error) {
	id := runid.Generate()
	logger := o.logger.With(slog.String("run_id", id))

	cat, err := catalog.Load(o.catalogPath)
	if err != nil {
		return Summary{RunID: id}, err
	}

	summary := Summary{RunID: id, Total: len(cat.Items)}

	logger.Info("upload run starting",
		slog.Int("total", summary.Total),
		slog.Int("platforms", len(o.platforms)),
	)

	for _, item := range cat.Items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		var pending []Platform
		for _, p := range o.platforms {
			if needsUpload(item, p.Name()) {
				pending = append(pending, p)
			}
		}
		if len(pending) == 0 {
			summary.Skipped++
			continue
		}

		path := filepath.Join(videoDir, item.Filename)
		if _, err := os.Stat(path); err != nil {
			summary.Failed += len(pending)
			for _, p := range pending {
				summary.Failures = append(summary.Failures, Failure{
					Title:    item.Title,
					Platform: p.Name(),
					Reason:   fmt.Sprintf("video file missing: %s", item.Filename),
				})
			}
			logger.Warn("video file missing",
				slog.String("title", item.Title),
				slog.String("path", path),
			)
			continue
		}

		meta := Metadata{
			Title:       item.Title,
			Description: item.Title,
			Unlisted:    o.unlisted,
		}

		for _, p := range pending {
			result, err := p.Upload(ctx, path, meta)
			if err != nil {
				summary.Failed++
				summary.Failures = append(summary.Failures, Failure{
					Title:    item.Title,
					Platform: p.Name(),
					Reason:   err.Error(),
				})
				logger.Warn("upload failed",
					slog.String("title", item.Title),
					slog.String("platform", p.Name()),
					slog.String("error", err.Error()),
				)
				continue
			}

			var peertubeID, youtubeID string
			switch p.Name() {
			case "peertube":
				peertubeID = result.ID
			case "youtube":
				youtubeID = result.ID
			}
			if err := cat.SetPlatformIDs(item.VideoID, peertubeID, youtubeID); err != nil {
				// The video is live but the ledger cannot record it.
				// Abort so the operator notices before more work is lost.
				return summary, err
			}
			summary.Uploads++

			logger.Info("video uploaded",
				slog.String("title", item.Title),
				slog.String("platform", p.Name()),
				slog.String("url", result.WatchURL),
			)
		}
	}

	logger.Info("upload run finished",
		slog.Int("uploads", summary.Uploads),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
	)

	return summary, nil
}
