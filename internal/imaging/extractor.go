// Package imaging resolves and persists product images: URL extraction from
// page HTML and the idempotent download gate shared by both pipeline stages.
package imaging

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the catalog site. The cookie selector is used by the browser
// stage; the image selectors feed the extraction strategies below.
const (
	OGImageSelector     = `meta[property="og:image"]`
	VendorSlideSelector = "div.vip-slide-wrapper img"
	CookieSelector      = "div.lgpd--cookie__opened button"
)

// fallbackSelectors are known patterns for the product image region, tried
// after the vendor slide container.
var fallbackSelectors = []string{
	"div.product-image img",
	"div.produto-detalhe img",
	"div.swiper-slide img",
}

var placeholderTokens = []string{"default", "placeholder"}

var assetPathFragments = []string{"/produto", "/uploads", "/images"}

// IsPlaceholder reports whether an image URL is a known placeholder sentinel.
func IsPlaceholder(url string) bool {
	lower := strings.ToLower(url)
	for _, token := range placeholderTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// strategy inspects a parsed document and returns a candidate URL or "".
type strategy func(doc *goquery.Document) string

// Extraction is an ordered chain: first strategy to produce a
// non-placeholder URL wins. Names surface in metrics.
var strategies = []struct {
	name string
	scan strategy
}{
	{"og_image", fromOpenGraph},
	{"vendor_slide", fromSelector(VendorSlideSelector)},
	{"fallback_selector", fromFallbackSelectors},
	{"image_scan", fromImageScan},
}

// Extract returns the product image URL found in the HTML document along
// with the name of the strategy that produced it. Deterministic for
// identical input: parse anomalies and placeholder-only pages yield no
// result rather than an error.
func Extract(html string) (url, strategyName string, ok bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", false
	}
	for _, s := range strategies {
		if url := s.scan(doc); url != "" && !IsPlaceholder(url) {
			return url, s.name, true
		}
	}
	return "", "", false
}

// ExtractImageURL is Extract without the strategy attribution.
func ExtractImageURL(html string) (string, bool) {
	url, _, ok := Extract(html)
	return url, ok
}

func fromOpenGraph(doc *goquery.Document) string {
	content, _ := doc.Find(OGImageSelector).First().Attr("content")
	return strings.TrimSpace(content)
}

func fromSelector(selector string) strategy {
	return func(doc *goquery.Document) string {
		return imageSrc(doc.Find(selector).First())
	}
}

func fromFallbackSelectors(doc *goquery.Document) string {
	for _, sel := range fallbackSelectors {
		if url := imageSrc(doc.Find(sel).First()); url != "" {
			return url
		}
	}
	return ""
}

// fromImageScan walks every img element, skipping placeholders. An image
// whose path contains a product-asset fragment wins outright; otherwise the
// first non-placeholder image seen is kept as a last resort.
func fromImageScan(doc *goquery.Document) string {
	var preferred, first string
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		url := imageSrc(sel)
		if url == "" || IsPlaceholder(url) {
			return true
		}
		if first == "" {
			first = url
		}
		lower := strings.ToLower(url)
		for _, fragment := range assetPathFragments {
			if strings.Contains(lower, fragment) {
				preferred = url
				return false
			}
		}
		return true
	})
	if preferred != "" {
		return preferred
	}
	return first
}

// imageSrc reads src, falling back to data-src for lazy-loaded images.
func imageSrc(sel *goquery.Selection) string {
	if src, ok := sel.Attr("src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	if src, ok := sel.Attr("data-src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	return ""
}
