package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cartx/imagesync/internal/report"
	"github.com/cartx/imagesync/internal/tasks"
)

// Orchestrator drives the pipeline through Init, FastPass, SlowPass and
// Done. SlowPass strictly follows FastPass completion: its input is defined
// as FastPass's residual failures, so the stages never overlap.
type Orchestrator struct {
	fast      *FastStage
	browser   *BrowserStage // nil when no browser binary is available
	store     RunStore      // nil disables run persistence
	publisher report.Publisher
	logger    *zap.Logger
}

// NewOrchestrator wires the stages together. browser may be nil when the
// slow pass cannot run; store and publisher may be nil.
func NewOrchestrator(
	fast *FastStage,
	browser *BrowserStage,
	store RunStore,
	publisher report.Publisher,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		fast:      fast,
		browser:   browser,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Run executes the pipeline over the task list and returns the aggregated
// report. Individual task failures never fail the run; only Init-phase
// problems (an invalid task list) return an error.
func (o *Orchestrator) Run(ctx context.Context, list []tasks.Task) (report.Report, error) {
	r := report.Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Total:     len(list),
	}

	if err := tasks.Validate(list); err != nil {
		return report.Report{}, fmt.Errorf("validate task list: %w", err)
	}

	// The run row must exist before any outcome row references it.
	if o.store != nil {
		if err := o.store.RecordRun(ctx, r); err != nil {
			o.logger.Warn("failed to record run start", zap.String("run_id", r.RunID), zap.Error(err))
		}
	}

	if len(list) == 0 {
		o.logger.Info("task list is empty, nothing to do", zap.String("run_id", r.RunID))
		o.finish(ctx, &r)
		return r, nil
	}

	o.logger.Info("fast pass starting",
		zap.String("run_id", r.RunID),
		zap.Int("tasks", len(list)),
	)
	fastResults := o.fast.Run(ctx, list)
	r.Fast = stageStats(fastResults)
	o.recordOutcomes(ctx, r.RunID, fastResults)

	residual := make([]tasks.Task, 0)
	for _, res := range fastResults {
		if res.Status == StatusFailed {
			residual = append(residual, res.Task)
		}
	}
	o.logger.Info("fast pass complete",
		zap.String("run_id", r.RunID),
		zap.Int("saved", r.Fast.Saved),
		zap.Int("already_present", r.Fast.AlreadyPresent),
		zap.Int("residual", len(residual)),
	)

	switch {
	case len(residual) == 0:
		// Nothing left for the slow pass.
	case o.browser == nil:
		r.BrowserSkipped = true
		o.logger.Warn("browser stage unavailable, counting residual tasks as failed",
			zap.String("run_id", r.RunID),
			zap.Int("residual", len(residual)),
		)
		for _, t := range residual {
			r.FailedKeys = append(r.FailedKeys, t.StorageKey)
		}
	default:
		o.logger.Info("slow pass starting",
			zap.String("run_id", r.RunID),
			zap.Int("tasks", len(residual)),
		)
		browserResults := o.browser.Run(ctx, residual)
		r.Browser = stageStats(browserResults)
		o.recordOutcomes(ctx, r.RunID, browserResults)
		for _, res := range browserResults {
			if res.Status == StatusFailed {
				r.FailedKeys = append(r.FailedKeys, res.Task.StorageKey)
			}
		}
	}

	o.finish(ctx, &r)
	return r, nil
}

func (o *Orchestrator) finish(ctx context.Context, r *report.Report) {
	r.Duration = time.Since(r.StartedAt)

	if o.store != nil {
		if err := o.store.RecordRun(ctx, *r); err != nil {
			o.logger.Warn("failed to record run", zap.String("run_id", r.RunID), zap.Error(err))
		}
	}
	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, *r); err != nil {
			o.logger.Warn("failed to publish report", zap.String("run_id", r.RunID), zap.Error(err))
		}
	}

	o.logger.Info("pipeline finished",
		zap.String("run_id", r.RunID),
		zap.Int("total", r.Total),
		zap.Int("succeeded", r.Succeeded()),
		zap.Int("failed", r.Failed()),
		zap.Duration("duration", r.Duration),
	)
}

func (o *Orchestrator) recordOutcomes(ctx context.Context, runID string, results []TaskResult) {
	if o.store == nil {
		return
	}
	for _, res := range results {
		if err := o.store.RecordOutcome(ctx, runID, res); err != nil {
			o.logger.Warn("failed to record outcome",
				zap.String("run_id", runID),
				zap.String("storage_key", res.Task.StorageKey),
				zap.Error(err),
			)
		}
	}
}
