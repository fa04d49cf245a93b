package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/cartx/imagesync/internal/imaging"
	"github.com/cartx/imagesync/internal/tasks"
)

// ErrNoImage indicates a rendered page exposed no usable product image.
var ErrNoImage = errors.New("no product image in rendered page")

// ImageResolver renders one page and returns the product image URL. A
// resolver is owned exclusively by one worker and reused across its tasks.
type ImageResolver interface {
	Resolve(ctx context.Context, pageURL string) (string, error)
}

// ResolverFactory creates a worker's resolver plus its teardown. Called once
// per worker at startup; an error means the worker exits without consuming
// tasks (fail-fast instead of running degraded).
type ResolverFactory func(ctx context.Context) (ImageResolver, func(), error)

// SessionFactory creates a worker's private HTTP session for image bytes.
type SessionFactory func() ByteFetcher

// BrowserStage resolves residual tasks with a real rendering engine. Each
// worker owns one browser instance and one HTTP session for its lifetime;
// worker state is never shared.
type BrowserStage struct {
	newResolver ResolverFactory
	newSession  SessionFactory
	gate        *imaging.Gate
	baseURL     string
	workers     int
	logger      *zap.Logger
}

// NewBrowserStage builds the stage.
func NewBrowserStage(
	newResolver ResolverFactory,
	newSession SessionFactory,
	gate *imaging.Gate,
	baseURL string,
	workers int,
	logger *zap.Logger,
) *BrowserStage {
	if workers <= 0 {
		workers = 1
	}
	return &BrowserStage{
		newResolver: newResolver,
		newSession:  newSession,
		gate:        gate,
		baseURL:     baseURL,
		workers:     workers,
		logger:      logger,
	}
}

// Run resolves the residual task set. Tasks left unconsumed because every
// worker failed to initialize are reported failed with a stage-unavailable
// reason rather than dropped.
func (s *BrowserStage) Run(ctx context.Context, list []tasks.Task) []TaskResult {
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
	for i := range workers {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.runWorker(ctx, worker, taskCh, resultCh)
		}(i)
	}
	wg.Wait()
	close(resultCh)

	byKey := make(map[string]TaskResult, len(list))
	for res := range resultCh {
		byKey[res.Task.StorageKey] = res
	}

	results := make([]TaskResult, 0, len(list))
	for _, t := range list {
		if res, ok := byKey[t.StorageKey]; ok {
			results = append(results, res)
			continue
		}
		TaskFailures.WithLabelValues("browser").Inc()
		results = append(results, TaskResult{
			Task:   t,
			Stage:  "browser",
			Status: StatusFailed,
			Reason: ReasonUnavailable,
		})
	}
	return results
}

// runWorker initializes this worker's browser and HTTP session, then
// consumes tasks until the channel drains. Both resources are released on
// return, including when the last task failed.
func (s *BrowserStage) runWorker(ctx context.Context, worker int, taskCh <-chan tasks.Task, resultCh chan<- TaskResult) {
	resolver, teardown, err := s.newResolver(ctx)
	if err != nil {
		BrowserWorkerFailures.Inc()
		s.logger.Warn("browser worker failed to initialize, exiting",
			zap.Int("worker", worker),
			zap.Error(err),
		)
		return
	}
	defer teardown()

	session := s.newSession()

	for t := range taskCh {
		if ctx.Err() != nil {
			return
		}
		resultCh <- s.resolve(ctx, resolver, session, t)
	}
}

func (s *BrowserStage) resolve(ctx context.Context, resolver ImageResolver, session ByteFetcher, t tasks.Task) TaskResult {
	res := TaskResult{Task: t, Stage: "browser"}

	if s.gate.Exists(t.StorageKey) {
		res.Status = StatusAlreadyPresent
		ImagesSkipped.WithLabelValues("browser").Inc()
		return res
	}

	reason := ReasonNoImage
	for _, pageURL := range CandidateURLs(s.baseURL, t) {
		BrowserRenders.Inc()
		imageURL, err := resolver.Resolve(ctx, pageURL)
		if err != nil {
			// Navigation errors, render timeouts, and missing images all mean
			// the same thing here: try the next candidate.
			if !errors.Is(err, ErrNoImage) {
				s.logger.Debug("render failed",
					zap.String("storage_key", t.StorageKey),
					zap.String("url", pageURL),
					zap.Error(err),
				)
				reason = ReasonNetwork
			}
			continue
		}
		if imageURL == "" || imaging.IsPlaceholder(imageURL) {
			continue
		}

		data, err := session.Download(ctx, imageURL)
		if err != nil {
			reason = ReasonNetwork
			continue
		}
		if err := s.gate.Write(t.StorageKey, data); err != nil {
			s.logger.Error("image write failed",
				zap.String("storage_key", t.StorageKey),
				zap.Error(err),
			)
			res.Status = StatusFailed
			res.Reason = ReasonFilesystem
			TaskFailures.WithLabelValues("browser").Inc()
			return res
		}

		res.Status = StatusSaved
		res.ImageURL = imageURL
		ImagesSaved.WithLabelValues("browser").Inc()
		return res
	}

	res.Status = StatusFailed
	res.Reason = reason
	TaskFailures.WithLabelValues("browser").Inc()
	return res
}
