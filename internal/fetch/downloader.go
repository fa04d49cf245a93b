package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"resty.dev/v3"
)

// StatusError reports a non-success HTTP status from an image download.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
}

// Downloader retrieves image bytes over a pooled resty client. The fast
// stage shares one Downloader across its workers; each browser worker owns
// its own session.
type Downloader struct {
	client *resty.Client
}

// NewDownloader builds a Downloader with the given per-request timeout.
// Certificate verification is disabled for the same reason as the page
// fetcher: the vendor's image CDN shares its adhoc certificate setup.
func NewDownloader(userAgent string, timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true, // #nosec G402 -- vendor host uses adhoc certificates
		})
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	return &Downloader{client: client}
}

// Download fetches the image bytes at url. Non-2xx responses return a
// *StatusError so callers can distinguish them from transport failures.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode()}
	}
	body := resp.Bytes()
	if len(body) == 0 {
		return nil, fmt.Errorf("download %s: empty body", url)
	}
	return body, nil
}

// Close releases idle connections held by the underlying client.
func (d *Downloader) Close() error {
	return d.client.Close()
}
