package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ImagesSaved counts images written to disk, labeled by stage.
	ImagesSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagesync_images_saved_total",
		Help: "Images downloaded and written to disk.",
	}, []string{"stage"})
	// ImagesSkipped counts tasks skipped because the file already existed.
	ImagesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagesync_images_skipped_total",
		Help: "Tasks skipped because the output file already existed.",
	}, []string{"stage"})
	// TaskFailures counts terminal task failures per stage.
	TaskFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagesync_task_failures_total",
		Help: "Tasks that exhausted every candidate URL without an image.",
	}, []string{"stage"})
	// ExtractionHits counts successful URL extractions by strategy tier.
	ExtractionHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagesync_extraction_hits_total",
		Help: "Image URL extractions that succeeded, by strategy.",
	}, []string{"strategy"})
	// PageFetches counts fast-path candidate page fetches.
	PageFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagesync_page_fetches_total",
		Help: "Candidate product pages fetched over plain HTTP.",
	})
	// BrowserRenders counts slow-path page navigations.
	BrowserRenders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagesync_browser_renders_total",
		Help: "Candidate product pages rendered in headless Chrome.",
	})
	// BrowserWorkerFailures counts workers that exited because their browser
	// failed to initialize.
	BrowserWorkerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagesync_browser_worker_failures_total",
		Help: "Slow-path workers that exited on browser initialization failure.",
	})
)
