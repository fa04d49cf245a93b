package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cartx/imagesync/internal/catalog"
	"github.com/cartx/imagesync/internal/tasks"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetches the product map and resolves all images in one pass",
		Long: `Runs the full pipeline end to end: builds the product map from the
vendor order API, writes it to the tasks file, then resolves and downloads
an image for every product.`,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	app, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	client := catalog.New(catalog.Config{
		BaseURL:           app.Cfg.Vendor.BaseURL,
		DomainKey:         app.Cfg.Vendor.DomainKey,
		AuthToken:         app.Cfg.Vendor.AuthToken,
		StartDate:         app.Cfg.Vendor.StartDate,
		EndDate:           app.Cfg.Vendor.EndDate,
		RequestsPerSecond: app.Cfg.Vendor.RequestsPerSecond,
		MaxWorkers:        app.Cfg.Vendor.FetchWorkers,
		Timeout:           app.Cfg.VendorTimeout(),
	}, app.Logger.Named("catalog"))

	list, err := client.BuildProductMap(cmd.Context())
	if cerr := client.Close(); cerr != nil {
		app.Logger.Warn("close catalog client", zap.Error(cerr))
	}
	if err != nil {
		return fmt.Errorf("build product map: %w", err)
	}

	if err := tasks.Save(app.Cfg.Paths.TasksFile, list); err != nil {
		return fmt.Errorf("save product map: %w", err)
	}
	app.Logger.Info("product map written",
		zap.String("path", app.Cfg.Paths.TasksFile),
		zap.Int("products", len(list)),
	)

	r, err := runPipeline(cmd.Context(), app, list)
	if err != nil {
		return err
	}
	fmt.Println(r.Summary())
	return nil
}
