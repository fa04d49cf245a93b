package pipeline

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/cartx/imagesync/internal/fetch"
	"github.com/cartx/imagesync/internal/imaging"
	"github.com/cartx/imagesync/internal/tasks"
)

const maxFastWorkers = 32

// PageFetcher is the fast path's HTML source.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (fetch.PageResult, error)
}

// ByteFetcher downloads image bytes.
type ByteFetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// FastStage resolves tasks over plain HTTP: fetch each candidate page,
// extract an image URL from the HTML, download the bytes. Tasks it cannot
// resolve become the residual input of the browser stage.
type FastStage struct {
	pages      PageFetcher
	downloader ByteFetcher
	gate       *imaging.Gate
	baseURL    string
	workers    int
	logger     *zap.Logger
}

// NewFastStage builds the stage. workers <= 0 scales with available CPUs,
// capped to keep concurrent connections to the vendor reasonable.
func NewFastStage(
	pages PageFetcher,
	downloader ByteFetcher,
	gate *imaging.Gate,
	baseURL string,
	workers int,
	logger *zap.Logger,
) *FastStage {
	if workers <= 0 {
		workers = min(runtime.NumCPU()*4, maxFastWorkers)
	}
	return &FastStage{
		pages:      pages,
		downloader: downloader,
		gate:       gate,
		baseURL:    baseURL,
		workers:    workers,
		logger:     logger,
	}
}

// Run resolves every task and returns one result per task. Completion order
// is unconstrained; the slice is complete when Run returns.
func (s *FastStage) Run(ctx context.Context, list []tasks.Task) []TaskResult {
	if len(list) == 0 {
		return nil
	}

	workers := min(s.workers, len(list))
	taskCh := make(chan tasks.Task, len(list))
	for _, t := range list {
		taskCh <- t
	}
	close(taskCh)

	resultCh := make(chan TaskResult, len(list))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				resultCh <- s.resolve(ctx, t)
			}
		}()
	}
	wg.Wait()
	close(resultCh)

	results := make([]TaskResult, 0, len(list))
	for res := range resultCh {
		results = append(results, res)
	}
	return results
}

func (s *FastStage) resolve(ctx context.Context, t tasks.Task) TaskResult {
	res := TaskResult{Task: t, Stage: "fast"}

	if s.gate.Exists(t.StorageKey) {
		res.Status = StatusAlreadyPresent
		ImagesSkipped.WithLabelValues("fast").Inc()
		return res
	}

	reason := ReasonNoImage
	for _, pageURL := range CandidateURLs(s.baseURL, t) {
		PageFetches.Inc()
		page, err := s.pages.Fetch(ctx, pageURL)
		if err != nil {
			s.logger.Debug("candidate fetch failed",
				zap.String("storage_key", t.StorageKey),
				zap.String("url", pageURL),
				zap.Error(err),
			)
			reason = ReasonNetwork
			continue
		}
		if page.StatusCode != http.StatusOK {
			reason = ReasonHTTPStatus
			continue
		}

		imageURL, strategy, ok := imaging.Extract(string(page.Body))
		if !ok {
			continue
		}
		ExtractionHits.WithLabelValues(strategy).Inc()

		status, failReason := s.download(ctx, t, imageURL)
		if status == StatusFailed && failReason == ReasonFilesystem {
			// Disk problems will not improve with another candidate.
			res.Status = StatusFailed
			res.Reason = ReasonFilesystem
			TaskFailures.WithLabelValues("fast").Inc()
			return res
		}
		if status == StatusSaved {
			res.Status = StatusSaved
			res.ImageURL = imageURL
			ImagesSaved.WithLabelValues("fast").Inc()
			return res
		}
		reason = failReason
	}

	res.Status = StatusFailed
	res.Reason = reason
	TaskFailures.WithLabelValues("fast").Inc()
	return res
}

func (s *FastStage) download(ctx context.Context, t tasks.Task, imageURL string) (Status, Reason) {
	data, err := s.downloader.Download(ctx, imageURL)
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) {
			return StatusFailed, ReasonHTTPStatus
		}
		return StatusFailed, ReasonNetwork
	}
	if err := s.gate.Write(t.StorageKey, data); err != nil {
		s.logger.Error("image write failed",
			zap.String("storage_key", t.StorageKey),
			zap.Error(err),
		)
		return StatusFailed, ReasonFilesystem
	}
	return StatusSaved, ""
}
