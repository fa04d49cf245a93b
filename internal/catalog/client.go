package catalog

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"resty.dev/v3"

	"github.com/cartx/imagesync/internal/tasks"
)

// Config holds the connection parameters for the vendor API.
type Config struct {
	BaseURL           string
	DomainKey         string
	AuthToken         string
	StartDate         string
	EndDate           string
	RequestsPerSecond int
	MaxWorkers        int
	Timeout           time.Duration
}

// Client talks to the vendor catalog API. All requests share one resty
// client and are paced by a process-wide rate limiter.
type Client struct {
	cfg    Config
	http   *resty.Client
	rl     ratelimit.Limiter
	logger *zap.Logger
}

// New builds a Client. TLS verification is disabled to match the vendor's
// adhoc certificate setup.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Accept", "application/json").
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true, // #nosec G402 -- vendor host uses adhoc certificates
		})
	if cfg.DomainKey != "" {
		client.SetHeader("DomainKey", cfg.DomainKey)
	}
	if cfg.AuthToken != "" {
		client.SetHeader("Authorization", "Basic "+cfg.AuthToken)
	}

	return &Client{
		cfg:    cfg,
		http:   client,
		rl:     ratelimit.New(cfg.RequestsPerSecond),
		logger: logger,
	}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

func (c *Client) getJSON(ctx context.Context, path string, params map[string]string, out any) error {
	c.rl.Take()

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("get %s: unexpected status %d", path, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Bytes(), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// FetchOrderCodes walks the paged order listing for the configured date
// window and returns every order code.
func (c *Client) FetchOrderCodes(ctx context.Context) ([]string, error) {
	var codes []string
	page := 1
	totalPages := 1

	for page <= totalPages {
		var parsed ordersPage
		params := map[string]string{
			"start_created": c.cfg.StartDate,
			"end_created":   c.cfg.EndDate,
			"page":          fmt.Sprintf("%d", page),
		}
		if err := c.getJSON(ctx, "/importacao/pedidos", params, &parsed); err != nil {
			return nil, fmt.Errorf("orders page %d: %w", page, err)
		}
		if page == 1 && parsed.Pagination.PageCount > 0 {
			totalPages = parsed.Pagination.PageCount
		}
		for _, order := range parsed.Data {
			if order.Code != "" {
				codes = append(codes, string(order.Code))
			}
		}
		c.logger.Debug("fetched orders page",
			zap.Int("page", page),
			zap.Int("total_pages", totalPages),
			zap.Int("orders", len(parsed.Data)),
		)
		page++
	}

	c.logger.Info("order listing complete", zap.Int("orders", len(codes)))
	return codes, nil
}

// FetchOrderProducts returns the products attached to one order.
func (c *Client) FetchOrderProducts(ctx context.Context, orderCode string) ([]OrderProduct, error) {
	var parsed orderProductsPage
	path := fmt.Sprintf("/importacao/pedidos/%s/pedido-produtos", orderCode)
	if err := c.getJSON(ctx, path, nil, &parsed); err != nil {
		return nil, err
	}
	return parsed.Data, nil
}

// BuildProductMap aggregates the products of every order into a task list,
// deduplicated by product ID. Per-order fetches run concurrently under a
// bounded errgroup; an order that fails to resolve is skipped with a warning
// rather than failing the whole collection.
func (c *Client) BuildProductMap(ctx context.Context) ([]tasks.Task, error) {
	codes, err := c.FetchOrderCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch order codes: %w", err)
	}

	var (
		mu         sync.Mutex
		productMap = make(map[string]string)
		skipped    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxWorkers)
	for _, code := range codes {
		g.Go(func() error {
			products, err := c.FetchOrderProducts(gctx, code)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.Warn("skipping order", zap.String("order", code), zap.Error(err))
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			for _, p := range products {
				if p.ProductID != "" && p.StorageKey != "" {
					productMap[string(p.ProductID)] = string(p.StorageKey)
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate order products: %w", err)
	}

	// The pipeline requires storage keys to be unique, so collapse products
	// sharing an ERP code down to one task each.
	byStorageKey := make(map[string]string, len(productMap))
	for productID, storageKey := range productMap {
		if prev, ok := byStorageKey[storageKey]; !ok || productID < prev {
			byStorageKey[storageKey] = productID
		}
	}
	list := make([]tasks.Task, 0, len(byStorageKey))
	for storageKey, productID := range byStorageKey {
		list = append(list, tasks.Task{ProductID: productID, StorageKey: storageKey})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StorageKey < list[j].StorageKey })

	c.logger.Info("product map built",
		zap.Int("products", len(list)),
		zap.Int("orders", len(codes)),
		zap.Int("orders_skipped", skipped),
	)
	return list, nil
}

// preferredImageSize is the rendition requested from the image listing; when
// absent the largest available rendition is used instead.
const preferredImageSize = 250

// BestImageURL picks the preferred rendition from a product's image list,
// falling back to the largest one.
func BestImageURL(variants []ImageVariant) string {
	if len(variants) == 0 {
		return ""
	}
	best := variants[0]
	for _, v := range variants {
		if v.Size == preferredImageSize {
			return v.Location
		}
		if v.Size > best.Size {
			best = v
		}
	}
	return best.Location
}

// ProductImage pairs a storage key with the direct URL of its best image
// rendition.
type ProductImage struct {
	StorageKey string
	ImageURL   string
}

// FetchProductImages walks the paged product listing, keeping only products
// that expose at least one image rendition. A page that fails to parse is
// skipped with a warning, matching the order listing's tolerance.
func (c *Client) FetchProductImages(ctx context.Context) ([]ProductImage, error) {
	var images []ProductImage
	seen := make(map[string]struct{})
	page := 1
	totalPages := 1

	for page <= totalPages {
		var parsed productsPage
		params := map[string]string{
			"page":          fmt.Sprintf("%d", page),
			"possui_imagem": "true",
		}
		if err := c.getJSON(ctx, "/importacao/produtos", params, &parsed); err != nil {
			if page == 1 {
				return nil, fmt.Errorf("products page 1: %w", err)
			}
			c.logger.Warn("skipping products page", zap.Int("page", page), zap.Error(err))
			page++
			continue
		}
		if page == 1 && parsed.Pagination.PageCount > 0 {
			totalPages = parsed.Pagination.PageCount
		}
		for _, p := range parsed.Data {
			key := string(p.StorageKey)
			if key == "" {
				continue
			}
			imageURL := BestImageURL(p.Images)
			if imageURL == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			images = append(images, ProductImage{StorageKey: key, ImageURL: imageURL})
		}
		c.logger.Debug("fetched products page",
			zap.Int("page", page),
			zap.Int("total_pages", totalPages),
			zap.Int("products", len(parsed.Data)),
		)
		page++
	}

	c.logger.Info("image listing complete", zap.Int("products", len(images)))
	return images, nil
}
