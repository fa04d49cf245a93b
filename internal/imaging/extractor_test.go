package imaging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartx/imagesync/internal/imaging"
)

func TestExtractImageURL(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
		ok   bool
	}{
		{
			name: "og image wins over vendor slide",
			html: `<html><head>
				<meta property="og:image" content="https://cdn.example.com/produto/123.jpg">
				</head><body>
				<div class="vip-slide-wrapper"><img src="https://cdn.example.com/img/default_image.png"></div>
				</body></html>`,
			want: "https://cdn.example.com/produto/123.jpg",
			ok:   true,
		},
		{
			name: "vendor slide src",
			html: `<div class="vip-slide-wrapper"><img src="https://cdn.example.com/uploads/9.jpg"></div>`,
			want: "https://cdn.example.com/uploads/9.jpg",
			ok:   true,
		},
		{
			name: "vendor slide data-src fallback",
			html: `<div class="vip-slide-wrapper"><img data-src="https://cdn.example.com/uploads/9.jpg"></div>`,
			want: "https://cdn.example.com/uploads/9.jpg",
			ok:   true,
		},
		{
			name: "known fallback selector",
			html: `<div class="produto-detalhe"><img src="https://cdn.example.com/x/1.jpg"></div>`,
			want: "https://cdn.example.com/x/1.jpg",
			ok:   true,
		},
		{
			name: "scan prefers product asset path over earlier image",
			html: `<body>
				<img src="https://cdn.example.com/banner.png">
				<img src="https://cdn.example.com/produto/77.jpg">
				</body>`,
			want: "https://cdn.example.com/produto/77.jpg",
			ok:   true,
		},
		{
			name: "scan keeps first non-placeholder as last resort",
			html: `<body>
				<img src="https://cdn.example.com/img/placeholder.png">
				<img src="https://cdn.example.com/banner.png">
				</body>`,
			want: "https://cdn.example.com/banner.png",
			ok:   true,
		},
		{
			name: "placeholder only yields nothing",
			html: `<img src="https://cdn.example.com/img/default_image.png">`,
			ok:   false,
		},
		{
			name: "no images",
			html: `<html><body><p>sem estoque</p></body></html>`,
			ok:   false,
		},
		{
			name: "empty document",
			html: "",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := imaging.ExtractImageURL(tt.html)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractImageURLDeterministic(t *testing.T) {
	html := `<div class="vip-slide-wrapper"><img src="https://cdn.example.com/uploads/9.jpg"></div>`
	first, ok := imaging.ExtractImageURL(html)
	require.True(t, ok)
	for range 5 {
		got, ok := imaging.ExtractImageURL(html)
		require.True(t, ok)
		assert.Equal(t, first, got)
	}
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, imaging.IsPlaceholder("https://cdn.example.com/default_image.png"))
	assert.True(t, imaging.IsPlaceholder("https://cdn.example.com/Placeholder.jpg"))
	assert.False(t, imaging.IsPlaceholder("https://cdn.example.com/produto/1.jpg"))
}

func TestExtractReportsStrategy(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		strategy string
	}{
		{
			name:     "og image",
			html:     `<head><meta property="og:image" content="https://cdn.example.com/uploads/1.jpg"></head>`,
			strategy: "og_image",
		},
		{
			name:     "vendor slide",
			html:     `<div class="vip-slide-wrapper"><img src="https://cdn.example.com/uploads/2.jpg"></div>`,
			strategy: "vendor_slide",
		},
		{
			name:     "fallback selector",
			html:     `<div class="product-image"><img src="https://cdn.example.com/uploads/3.jpg"></div>`,
			strategy: "fallback_selector",
		},
		{
			name:     "image scan",
			html:     `<img src="https://cdn.example.com/uploads/4.jpg">`,
			strategy: "image_scan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, strategy, ok := imaging.Extract(tt.html)
			require.True(t, ok)
			assert.Equal(t, tt.strategy, strategy)
		})
	}
}
