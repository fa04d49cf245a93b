// Package cmd defines the imagesync CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cartx/imagesync/internal/config"
	"github.com/cartx/imagesync/internal/logging"
)

// userAgent is sent on every vendor request, fast path and browser alike.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var cfgFile string

type appKeyType string

const appKey appKeyType = "app"

// App carries the per-invocation dependencies every subcommand needs.
type App struct {
	Cfg    config.Config
	Logger *zap.Logger
}

// Close flushes buffered log entries.
func (a *App) Close() {
	_ = a.Logger.Sync()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imagesync",
		Short: "Synchronizes product catalog images from the vendor storefront.",
		Long: `imagesync builds the product map from the vendor order API, resolves a
product image for every mapped product through a fast HTTP pass and a
headless-browser fallback, and uploads the results to cloud storage.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			ctx := context.WithValue(cmd.Context(), appKey, &App{Cfg: cfg, Logger: logger})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if app, ok := cmd.Context().Value(appKey).(*App); ok && app != nil {
				app.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables are always read)")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newImagesCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*App, error) {
	app, ok := ctx.Value(appKey).(*App)
	if !ok || app == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return app, nil
}

// Execute runs the CLI. It installs signal handling so Ctrl-C cancels the
// in-flight stage instead of killing Chrome processes mid-render.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "imagesync: %v\n", err)
		os.Exit(1)
	}
}
