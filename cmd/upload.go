package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cartx/imagesync/internal/uploader"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Uploads downloaded images to cloud storage",
		Long: `Copies every image under the local image directory into the configured
GCS bucket. Objects that already exist are skipped unless storage.overwrite
is set.`,
		RunE: runUploadCommand,
	}
}

func runUploadCommand(cmd *cobra.Command, _ []string) error {
	app, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	up, err := uploader.New(
		cmd.Context(),
		app.Cfg.Storage.Bucket,
		app.Cfg.Storage.Prefix,
		app.Cfg.Storage.Overwrite,
		app.Logger.Named("uploader"),
	)
	if err != nil {
		return fmt.Errorf("init uploader: %w", err)
	}

	stats, err := up.UploadDir(cmd.Context(), app.Cfg.Paths.ImagesDir)
	if err != nil {
		return fmt.Errorf("upload images: %w", err)
	}

	fmt.Printf("uploaded %d, skipped %d, failed %d\n", stats.Uploaded, stats.Skipped, stats.Failed)
	return nil
}
