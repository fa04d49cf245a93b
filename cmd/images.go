package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cartx/imagesync/internal/api"
	"github.com/cartx/imagesync/internal/catalog"
	"github.com/cartx/imagesync/internal/config"
	"github.com/cartx/imagesync/internal/fetch"
	"github.com/cartx/imagesync/internal/imaging"
	"github.com/cartx/imagesync/internal/pipeline"
	"github.com/cartx/imagesync/internal/report"
	"github.com/cartx/imagesync/internal/store"
	"github.com/cartx/imagesync/internal/tasks"
)

func newImagesCmd() *cobra.Command {
	var fromAPI bool
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Resolves and downloads an image for every mapped product",
		Long: `Loads the product map, tries plain HTTP fetching first for every
product page, then renders the residual failures in headless Chrome. Images
land in the configured local directory; a run report is printed and
optionally persisted and published.

With --from-api the product pages are bypassed entirely: image URLs come
from the vendor's product listing endpoint and are downloaded directly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fromAPI {
				return runAPIImagesCommand(cmd)
			}
			return runImagesCommand(cmd)
		},
	}
	cmd.Flags().BoolVar(&fromAPI, "from-api", false, "download image URLs listed by the vendor API instead of scraping product pages")
	return cmd
}

func runImagesCommand(cmd *cobra.Command) error {
	app, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	list, err := tasks.Load(app.Cfg.Paths.TasksFile)
	if err != nil {
		return fmt.Errorf("load product map: %w", err)
	}

	r, err := runPipeline(cmd.Context(), app, list)
	if err != nil {
		return err
	}
	fmt.Println(r.Summary())
	return nil
}

// runAPIImagesCommand downloads every image the vendor's product listing
// exposes, straight from the listed URLs. No browser is involved.
func runAPIImagesCommand(cmd *cobra.Command) error {
	app, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := app.Cfg

	client := catalog.New(catalog.Config{
		BaseURL:           cfg.Vendor.BaseURL,
		DomainKey:         cfg.Vendor.DomainKey,
		AuthToken:         cfg.Vendor.AuthToken,
		RequestsPerSecond: cfg.Vendor.RequestsPerSecond,
		MaxWorkers:        cfg.Vendor.FetchWorkers,
		Timeout:           cfg.VendorTimeout(),
	}, app.Logger.Named("catalog"))
	defer func() {
		if cerr := client.Close(); cerr != nil {
			app.Logger.Warn("close catalog client", zap.Error(cerr))
		}
	}()

	images, err := client.FetchProductImages(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetch product images: %w", err)
	}

	gate, err := imaging.NewGate(cfg.Paths.ImagesDir)
	if err != nil {
		return fmt.Errorf("prepare image dir: %w", err)
	}
	downloader := fetch.NewDownloader(userAgent, cfg.DownloadTimeout())
	defer func() {
		if cerr := downloader.Close(); cerr != nil {
			app.Logger.Warn("close downloader", zap.Error(cerr))
		}
	}()

	var saved, present, failed int
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(cfg.Vendor.FetchWorkers)
	for _, img := range images {
		g.Go(func() error {
			outcome := downloadListedImage(gctx, app, gate, downloader, img)
			mu.Lock()
			switch outcome {
			case pipeline.StatusSaved:
				saved++
			case pipeline.StatusAlreadyPresent:
				present++
			default:
				failed++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("downloaded %d, already present %d, failed %d (of %d listed)\n",
		saved, present, failed, len(images))
	return nil
}

func downloadListedImage(ctx context.Context, app *App, gate *imaging.Gate, downloader *fetch.Downloader, img catalog.ProductImage) pipeline.Status {
	if gate.Exists(img.StorageKey) {
		return pipeline.StatusAlreadyPresent
	}
	data, err := downloader.Download(ctx, img.ImageURL)
	if err != nil {
		app.Logger.Debug("image download failed",
			zap.String("storage_key", img.StorageKey),
			zap.String("url", img.ImageURL),
			zap.Error(err),
		)
		return pipeline.StatusFailed
	}
	if err := gate.Write(img.StorageKey, data); err != nil {
		app.Logger.Warn("image write failed",
			zap.String("storage_key", img.StorageKey),
			zap.Error(err),
		)
		return pipeline.StatusFailed
	}
	return pipeline.StatusSaved
}

// runPipeline assembles both stages plus the optional store, publisher and
// ops listener, and executes one run. Shared by the images and run commands.
func runPipeline(ctx context.Context, app *App, list []tasks.Task) (report.Report, error) {
	cfg := app.Cfg

	gate, err := imaging.NewGate(cfg.Paths.ImagesDir)
	if err != nil {
		return report.Report{}, fmt.Errorf("prepare image dir: %w", err)
	}

	pages := fetch.NewPageFetcher(fetch.PageConfig{
		UserAgent: userAgent,
		Timeout:   cfg.PageTimeout(),
	})
	downloader := fetch.NewDownloader(userAgent, cfg.DownloadTimeout())
	defer func() {
		if cerr := downloader.Close(); cerr != nil {
			app.Logger.Warn("close downloader", zap.Error(cerr))
		}
	}()

	fast := pipeline.NewFastStage(
		pages,
		downloader,
		gate,
		cfg.Vendor.BaseURL,
		cfg.Pipeline.FastWorkers,
		app.Logger.Named("fast"),
	)

	browser := buildBrowserStage(cfg, gate, app.Logger)
	if browser == nil {
		app.Logger.Warn("no usable browser binary found, slow pass disabled")
	}

	var runStore pipeline.RunStore
	if cfg.DB.DSN != "" {
		pg, err := store.New(ctx, cfg.DB.DSN)
		if err != nil {
			return report.Report{}, fmt.Errorf("init run store: %w", err)
		}
		defer pg.Close()
		runStore = pg
	}

	var publisher report.Publisher
	if cfg.Report.ProjectID != "" {
		ps, err := report.NewPubSubPublisher(ctx, cfg.Report.ProjectID, cfg.Report.TopicID)
		if err != nil {
			return report.Report{}, fmt.Errorf("init report publisher: %w", err)
		}
		defer func() {
			if cerr := ps.Close(); cerr != nil {
				app.Logger.Warn("close report publisher", zap.Error(cerr))
			}
		}()
		publisher = ps
	}

	if cfg.Ops.ListenAddr != "" {
		opsCtx, stopOps := context.WithCancel(ctx)
		defer stopOps()
		srv := api.NewServer(app.Logger.Named("ops"))
		go func() {
			if serveErr := srv.Serve(opsCtx, cfg.Ops.ListenAddr); serveErr != nil {
				app.Logger.Warn("ops server error", zap.Error(serveErr))
			}
		}()
	}

	orch := pipeline.NewOrchestrator(fast, browser, runStore, publisher, app.Logger.Named("pipeline"))
	r, err := orch.Run(ctx, list)
	if err != nil {
		return report.Report{}, fmt.Errorf("run pipeline: %w", err)
	}
	return r, nil
}

func buildBrowserStage(cfg config.Config, gate *imaging.Gate, logger *zap.Logger) *pipeline.BrowserStage {
	if !pipeline.BrowserAvailable(cfg.Browser.ExecPath) {
		return nil
	}

	factory := pipeline.NewChromedpResolverFactory(pipeline.BrowserConfig{
		ExecPath:      cfg.Browser.ExecPath,
		UserAgent:     userAgent,
		Visible:       cfg.Browser.Visible,
		LoadImages:    cfg.Browser.LoadImages,
		RenderTimeout: cfg.RenderTimeout(),
		CookieTimeout: cfg.CookieTimeout(),
	}, logger.Named("browser"))

	session := func() pipeline.ByteFetcher {
		return fetch.NewDownloader(userAgent, cfg.DownloadTimeout())
	}

	return pipeline.NewBrowserStage(
		factory,
		session,
		gate,
		cfg.Vendor.BaseURL,
		cfg.Pipeline.BrowserWorkers,
		logger.Named("browser"),
	)
}
