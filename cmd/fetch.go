package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cartx/imagesync/internal/catalog"
	"github.com/cartx/imagesync/internal/tasks"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Builds the product map from the vendor order API",
		Long: `Pages through the vendor's imported orders, collects every ordered
product's ID and ERP code, and writes the deduplicated product map to the
configured tasks file.`,
		RunE: runFetchCommand,
	}
}

func runFetchCommand(cmd *cobra.Command, _ []string) error {
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
	defer func() {
		if cerr := client.Close(); cerr != nil {
			app.Logger.Warn("close catalog client", zap.Error(cerr))
		}
	}()

	list, err := client.BuildProductMap(cmd.Context())
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
	return nil
}
