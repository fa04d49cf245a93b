// Package fetch provides the HTTP clients used by both pipeline stages: a
// colly-backed page fetcher for catalog HTML and a resty downloader for
// image bytes.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// PageConfig controls page fetching behavior.
type PageConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// PageResult carries the outcome of one page fetch.
type PageResult struct {
	URL        string
	StatusCode int
	Body       []byte
}

// PageFetcher retrieves catalog page HTML. All clones share one pooled
// transport so concurrent workers reuse connections to the vendor host.
type PageFetcher struct {
	cfg           PageConfig
	baseCollector *colly.Collector
}

// NewPageFetcher builds a PageFetcher with a connection-pooled transport.
// TLS certificate verification is disabled: the vendor serves the catalog
// behind adhoc certificates, so this is a documented trust relaxation
// scoped to this client, not a general default.
func NewPageFetcher(cfg PageConfig) *PageFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit(), colly.IgnoreRobotsTxt())
	c.WithTransport(newVendorTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)

	return &PageFetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single GET and returns the response even for non-200
// statuses; the caller decides whether a status is acceptable. Transport
// errors and timeouts are returned as errors.
func (f *PageFetcher) Fetch(ctx context.Context, url string) (PageResult, error) {
	var (
		result   PageResult
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	collector.OnResponse(func(r *colly.Response) {
		result = PageResult{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			// Non-2xx responses surface here; report them as results so the
			// caller can advance to the next candidate URL.
			result = PageResult{
				URL:        url,
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
			}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return PageResult{}, fmt.Errorf("page fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return PageResult{}, fmt.Errorf("page fetch %s: %w", url, fetchErr)
		}
		if err != nil && result.StatusCode == 0 {
			return PageResult{}, fmt.Errorf("page fetch %s: %w", url, err)
		}
		return result, nil
	}
}

func newVendorTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, // #nosec G402 -- vendor host uses adhoc certificates
		},
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}
