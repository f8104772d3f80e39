// Package bootstrap provides dependency initialization for the batch tool.
package bootstrap

import (
	"fmt"
	"log/slog"

	"peertube-batch/internal/config"
	"peertube-batch/internal/media"
	"peertube-batch/internal/peertube"
	"peertube-batch/internal/retry"
	"peertube-batch/internal/storage"
	"peertube-batch/internal/thumbnail"
	"peertube-batch/internal/uploader"
	"peertube-batch/internal/youtube"
)

// Dependencies holds all initialized dependencies for the CLI commands.
type Dependencies struct {
	Thumbnails *thumbnail.Processor
	Uploads    *uploader.Orchestrator
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	clientOpts := []peertube.Option{}
	if cfg.UploadEndpoint != "" {
		clientOpts = append(clientOpts, peertube.WithUploadEndpoint(cfg.UploadEndpoint))
	}
	client, err := peertube.NewClient(cfg.InstanceURL, cfg.Username, cfg.Password, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create PeerTube client: %w", err)
	}

	processor := media.NewFFmpegProcessor("",
		media.WithFetchTimeout(cfg.FetchTimeout),
		media.WithProbeTimeout(cfg.ProbeTimeout),
	)

	policy := retry.Policy{
		MaxAttempts: cfg.FetchMaxAttempts,
		BaseBackoff: cfg.FetchBackoff,
	}

	refresher := thumbnail.NewRefresher(client, processor, store, policy, cfg.SegmentSeconds, logger)
	thumbnails := thumbnail.NewProcessor(refresher, client, cfg.CatalogPath, cfg.ThumbnailTimestamp, logger)

	platforms := []uploader.Platform{uploader.NewPeerTubeAdapter(client)}
	if cfg.YouTubeEnabled() {
		ytClient, err := youtube.NewClient(cfg.YouTubeAccessToken)
		if err != nil {
			return nil, fmt.Errorf("create YouTube client: %w", err)
		}
		platforms = append(platforms, uploader.NewYouTubeAdapter(ytClient))
		logger.Info("YouTube uploads enabled")
	}
	uploads := uploader.NewOrchestrator(platforms, cfg.CatalogPath, logger)

	return &Dependencies{
		Thumbnails: thumbnails,
		Uploads:    uploads,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.ArchiveEnabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("thumbnail archive configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
