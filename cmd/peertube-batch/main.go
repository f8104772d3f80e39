// Package main provides the entry point for the peertube-batch CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"peertube-batch/internal/bootstrap"
	"peertube-batch/internal/config"
	"peertube-batch/internal/thumbnail"
	"peertube-batch/internal/uploader"
)

// CLI flags
var timestampFlag float64

var rootCmd = &cobra.Command{
	Use:   "peertube-batch",
	Short: "Batch thumbnail and upload tooling for a PeerTube course library",
	Long: `peertube-batch maintains the course video catalog on a PeerTube instance.

It regenerates video thumbnails by downloading a short segment of each video,
extracting a frame with ffmpeg and publishing it back, and it batch-uploads
new course videos. Progress is tracked in a JSON catalog file so interrupted
runs resume where they left off.

Configuration comes from the environment (PEERTUBE_INSTANCE,
PEERTUBE_USERNAME, PEERTUBE_PASSWORD, CATALOG_PATH, ...).

Examples:
  peertube-batch thumbnails
  peertube-batch thumbnail lesson-03 --timestamp 12
  peertube-batch upload ./rendered-videos`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var thumbnailCmd = &cobra.Command{
	Use:   "thumbnail <video-id>",
	Short: "Refresh the thumbnail of a single catalog video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := setup()
		if err != nil {
			return err
		}

		res, err := deps.Thumbnails.RunOne(cmd.Context(), args[0], timestampFlag)
		if err != nil {
			return err
		}
		if !res.OK() {
			return fmt.Errorf("refresh failed at %s: %w", res.Stage, res.Err)
		}

		fmt.Printf("thumbnail updated for %s\n", args[0])
		return nil
	},
}

var thumbnailsCmd = &cobra.Command{
	Use:   "thumbnails",
	Short: "Regenerate thumbnails for every pending catalog video",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := setup()
		if err != nil {
			return err
		}

		summary, err := deps.Thumbnails.Run(cmd.Context())
		if err != nil {
			return err
		}

		printThumbnailSummary(summary)
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <video-dir>",
	Short: "Upload catalog videos that are not on the platforms yet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := setup()
		if err != nil {
			return err
		}

		summary, err := deps.Uploads.Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		printUploadSummary(summary)
		return nil
	},
}

func init() {
	thumbnailCmd.Flags().Float64VarP(&timestampFlag, "timestamp", "t", 0, "Frame position in seconds (0 = configured default)")
	rootCmd.AddCommand(thumbnailCmd, thumbnailsCmd, uploadCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and wires the command dependencies.
func setup() (*bootstrap.Dependencies, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting peertube-batch",
		slog.String("instance", cfg.InstanceURL),
		slog.String("catalog", cfg.CatalogPath),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.Bool("archive_enabled", cfg.ArchiveEnabled()),
		slog.Bool("youtube_enabled", cfg.YouTubeEnabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize dependencies: %w", err)
	}

	return deps, nil
}

func printThumbnailSummary(s thumbnail.Summary) {
	fmt.Printf("run %s: %d total, %d skipped, %d updated, %d failed\n",
		s.RunID, s.Total, s.Skipped, s.Succeeded, s.Failed)
	for _, f := range s.Failures {
		fmt.Printf("  failed: %s (%s)\n", f.Title, f.Reason)
	}
}

func printUploadSummary(s uploader.Summary) {
	fmt.Printf("run %s: %d total, %d skipped, %d uploaded, %d failed\n",
		s.RunID, s.Total, s.Skipped, s.Uploads, s.Failed)
	for _, f := range s.Failures {
		fmt.Printf("  failed: %s on %s (%s)\n", f.Title, f.Platform, f.Reason)
	}
}
