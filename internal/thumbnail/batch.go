package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"peertube-batch/internal/catalog"
	"peertube-batch/internal/runid"
)

// ErrNotOnPlatform is returned when a single-video refresh is requested for
// a catalog item that has no platform ID yet.
var ErrNotOnPlatform = errors.New("video has no platform ID")

// ItemRefresher runs the pipeline for one video. Satisfied by *Refresher.
type ItemRefresher interface {
	Refresh(ctx context.Context, videoID string, timestamp float64) Result
}

// Authenticator logs in against the platform before a run starts.
type Authenticator interface {
	Login(ctx context.Context) error
}

// Failure records a single item that could not be refreshed.
type Failure struct {
	Title  string
	Reason string
}

// Summary describes the outcome of a batch run.
type Summary struct {
	RunID     string
	Total     int
	Skipped   int
	Succeeded int
	Failed    int
	Failures  []Failure
}

// Processor drives a resumable batch run over the catalog file: each item
// that still needs a thumbnail is refreshed in catalog order, and the catalog
// is rewritten after every success so an interrupted run loses at most the
// item that was in flight.
type Processor struct {
	refresher   ItemRefresher
	auth        Authenticator
	catalogPath string
	timestamp   float64
	logger      *slog.Logger
}

// NewProcessor creates a batch Processor. timestamp is the default frame
// position in seconds for every item.
func NewProcessor(refresher ItemRefresher, auth Authenticator, catalogPath string, timestamp float64, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		refresher:   refresher,
		auth:        auth,
		catalogPath: catalogPath,
		timestamp:   timestamp,
		logger:      logger,
	}
}

// Run executes a batch refresh over every eligible catalog item.
//
// Catalog I/O errors and authentication failure abort the run before any
// item is processed. After that, item failures are collected in the Summary
// and never stop the loop. Items are processed strictly sequentially in
// catalog order.
func (p *Processor) Run(ctx context.Context) (Summary, error) {
	id := runid.Generate()
	logger := p.logger.With(slog.String("run_id", id))

	cat, err := catalog.Load(p.catalogPath)
	if err != nil {
		return Summary{RunID: id}, err
	}

	if err := p.auth.Login(ctx); err != nil {
		return Summary{RunID: id}, fmt.Errorf("login: %w", err)
	}

	eligible, skipped := cat.Partition()
	summary := Summary{
		RunID:   id,
		Total:   len(cat.Items),
		Skipped: len(skipped),
	}

	logger.Info("batch run starting",
		slog.Int("total", summary.Total),
		slog.Int("eligible", len(eligible)),
		slog.Int("skipped", summary.Skipped),
	)

	for _, item := range eligible {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res := p.refresher.Refresh(ctx, item.PeerTubeID, p.timestamp)
		if !res.OK() {
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{
				Title:  item.Title,
				Reason: fmt.Sprintf("%s: %v", res.Stage, res.Err),
			})
			continue
		}

		if err := cat.MarkThumbnailDone(item.VideoID); err != nil {
			// The thumbnail is live but the ledger cannot record it.
			// Abort so the operator notices before more work is lost.
			return summary, err
		}
		summary.Succeeded++
	}

	logger.Info("batch run finished",
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
	)

	return summary, nil
}

// RunOne refreshes a single catalog item by its video ID, regardless of its
// completion flag, and records completion on success. timestamp <= 0 uses
// the processor default.
func (p *Processor) RunOne(ctx context.Context, videoID string, timestamp float64) (Result, error) {
	cat, err := catalog.Load(p.catalogPath)
	if err != nil {
		return Result{}, err
	}

	item, err := cat.Find(videoID)
	if err != nil {
		return Result{}, err
	}
	if item.PeerTubeID == "" {
		return Result{}, fmt.Errorf("%w: %s", ErrNotOnPlatform, videoID)
	}

	if err := p.auth.Login(ctx); err != nil {
		return Result{}, fmt.Errorf("login: %w", err)
	}

	if timestamp <= 0 {
		timestamp = p.timestamp
	}

	res := p.refresher.Refresh(ctx, item.PeerTubeID, timestamp)
	if res.OK() && !item.Thumbnail {
		if err := cat.MarkThumbnailDone(item.VideoID); err != nil {
			return res, err
		}
	}

	return res, nil
}
