// Package pipeline implements the two-tier image resolution pipeline: a
// concurrent HTTP fast pass over every task, then a headless-browser slow
// pass over the residual failures.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/cartx/imagesync/internal/report"
	"github.com/cartx/imagesync/internal/tasks"
)

// Status is the terminal state of one task within a stage.
type Status string

// Terminal task states. Within one run a task reaches exactly one of these
// per stage and is never revisited.
const (
	StatusAlreadyPresent Status = "already_present"
	StatusSaved          Status = "saved"
	StatusFailed         Status = "failed"
)

// Reason classifies why a task failed.
type Reason string

// Failure reasons surfaced in results and the run store.
const (
	ReasonNetwork     Reason = "network"
	ReasonHTTPStatus  Reason = "http-status"
	ReasonDecode      Reason = "decode"
	ReasonFilesystem  Reason = "filesystem"
	ReasonNoImage     Reason = "no-image"
	ReasonUnavailable Reason = "stage-unavailable"
)

// TaskResult records the terminal state of one task in one stage.
type TaskResult struct {
	Task     tasks.Task
	Stage    string
	Status   Status
	Reason   Reason
	ImageURL string
}

// RunStore persists run summaries and per-task outcomes. Implementations
// live elsewhere; a nil store disables persistence. RecordRun is called at
// run start and again with final counts, so it must upsert by run ID.
type RunStore interface {
	RecordRun(ctx context.Context, r report.Report) error
	RecordOutcome(ctx context.Context, runID string, res TaskResult) error
}

// CandidateURLs builds the ordered page URLs to try for a task: the product
// page addressed by product ID, then by storage key when it differs. First
// successful extraction wins.
func CandidateURLs(baseURL string, t tasks.Task) []string {
	base := strings.TrimRight(baseURL, "/")
	urls := []string{fmt.Sprintf("%s/produto/%s", base, t.ProductID)}
	if t.StorageKey != t.ProductID {
		urls = append(urls, fmt.Sprintf("%s/produto/%s", base, t.StorageKey))
	}
	return urls
}

func stageStats(results []TaskResult) report.StageStats {
	stats := report.StageStats{Attempted: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusSaved:
			stats.Saved++
		case StatusAlreadyPresent:
			stats.AlreadyPresent++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}
