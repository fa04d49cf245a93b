package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/cartx/imagesync/internal/imaging"
)

// BrowserConfig controls the headless Chrome workers.
type BrowserConfig struct {
	ExecPath      string
	UserAgent     string
	Visible       bool
	LoadImages    bool
	RenderTimeout time.Duration
	CookieTimeout time.Duration
}

// knownBrowserBinaries are probed when no explicit path is configured.
var knownBrowserBinaries = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
}

// BrowserAvailable reports whether a Chrome binary can be found, so the
// orchestrator can skip the slow pass instead of spawning workers doomed to
// fail.
func BrowserAvailable(execPath string) bool {
	if execPath != "" {
		_, err := os.Stat(execPath)
		return err == nil
	}
	for _, name := range knownBrowserBinaries {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

// chromedpResolver owns one Chrome process and renders product pages in it.
type chromedpResolver struct {
	browserCtx context.Context
	cfg        BrowserConfig
}

// NewChromedpResolverFactory returns a ResolverFactory whose every invocation
// launches a dedicated Chrome process with its own temporary profile
// directory. The returned teardown closes the browser and removes the
// profile; it must run even when the worker's last task failed.
func NewChromedpResolverFactory(cfg BrowserConfig, logger *zap.Logger) ResolverFactory {
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 15 * time.Second
	}
	if cfg.CookieTimeout <= 0 {
		cfg.CookieTimeout = 3 * time.Second
	}

	return func(ctx context.Context) (ImageResolver, func(), error) {
		profileDir, err := os.MkdirTemp("", "imagesync-profile-")
		if err != nil {
			return nil, nil, fmt.Errorf("create profile dir: %w", err)
		}

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.UserDataDir(profileDir),
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-gpu", true),
		)
		if cfg.Visible {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		if !cfg.LoadImages {
			opts = append(opts, chromedp.Flag("blink-settings", "images=false"))
		}
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}

		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)

		teardown := func() {
			browserCancel()
			allocCancel()
			if err := os.RemoveAll(profileDir); err != nil {
				logger.Warn("failed to remove browser profile dir",
					zap.String("dir", profileDir),
					zap.Error(err),
				)
			}
		}

		// Warmup launches the Chrome process; failure here means this worker
		// cannot function and must not consume tasks.
		warmupCtx, cancelWarmup := context.WithTimeout(browserCtx, 30*time.Second)
		defer cancelWarmup()
		stopForward := forwardCancel(ctx, cancelWarmup)
		defer stopForward()
		if err := chromedp.Run(warmupCtx, networkSetup(cfg.UserAgent)); err != nil {
			teardown()
			return nil, nil, fmt.Errorf("chromedp warmup: %w", err)
		}

		return &chromedpResolver{browserCtx: browserCtx, cfg: cfg}, teardown, nil
	}
}

// Resolve navigates a fresh tab to the page, dismisses the cookie-consent
// overlay when present, waits for the product image element, and returns its
// src attribute.
func (r *chromedpResolver) Resolve(ctx context.Context, pageURL string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	stop := forwardCancel(ctx, cancelTab)
	defer stop()

	navCtx, cancelNav := context.WithTimeout(tabCtx, r.cfg.RenderTimeout)
	defer cancelNav()
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}

	// The consent overlay intercepts clicks but not DOM queries; dismiss it
	// when it shows up, and move on quietly when it does not.
	clickCtx, cancelClick := context.WithTimeout(tabCtx, r.cfg.CookieTimeout)
	_ = chromedp.Run(clickCtx, chromedp.Click(imaging.CookieSelector, chromedp.ByQuery))
	cancelClick()

	var src, dataSrc string
	var hasSrc, hasDataSrc bool
	waitCtx, cancelWait := context.WithTimeout(tabCtx, r.cfg.RenderTimeout)
	defer cancelWait()
	if err := chromedp.Run(waitCtx,
		chromedp.WaitReady(imaging.VendorSlideSelector, chromedp.ByQuery),
		chromedp.AttributeValue(imaging.VendorSlideSelector, "src", &src, &hasSrc, chromedp.ByQuery),
		chromedp.AttributeValue(imaging.VendorSlideSelector, "data-src", &dataSrc, &hasDataSrc, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("wait for product image on %s: %w", pageURL, err)
	}

	imageURL := strings.TrimSpace(src)
	if imageURL == "" && hasDataSrc {
		imageURL = strings.TrimSpace(dataSrc)
	}
	if imageURL == "" || imaging.IsPlaceholder(imageURL) {
		return "", ErrNoImage
	}
	return imageURL, nil
}

func networkSetup(userAgent string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	}
}

// forwardCancel ties an external context to a chromedp cancel func so caller
// cancellation tears the tab down promptly.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
