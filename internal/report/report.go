// Package report defines the structured result of a pipeline run and the
// optional publisher that pushes it to Pub/Sub.
package report

import (
	"fmt"
	"time"
)

// StageStats summarizes one resolution stage.
type StageStats struct {
	Attempted      int `json:"attempted"`
	Saved          int `json:"saved"`
	AlreadyPresent int `json:"already_present"`
	Failed         int `json:"failed"`
}

// Report is the machine-readable outcome of one pipeline run.
type Report struct {
	RunID          string     `json:"run_id"`
	StartedAt      time.Time  `json:"started_at"`
	Duration       time.Duration `json:"duration_ns"`
	Total          int        `json:"total"`
	Fast           StageStats `json:"fast"`
	Browser        StageStats `json:"browser"`
	BrowserSkipped bool       `json:"browser_skipped"`
	FailedKeys     []string   `json:"failed_keys,omitempty"`
}

// Succeeded counts tasks that ended with an image on disk, including
// previously-present ones.
func (r Report) Succeeded() int {
	return r.Fast.Saved + r.Fast.AlreadyPresent + r.Browser.Saved + r.Browser.AlreadyPresent
}

// Failed counts tasks with no image after both stages.
func (r Report) Failed() int {
	return r.Total - r.Succeeded()
}

// Summary renders the human-readable tally printed at the end of a run.
func (r Report) Summary() string {
	return fmt.Sprintf(
		"run %s: %d/%d images resolved in %s (fast: %d saved, %d present, %d failed; browser: %d saved, %d failed; %d unresolved)",
		r.RunID,
		r.Succeeded(), r.Total,
		r.Duration.Round(time.Millisecond),
		r.Fast.Saved, r.Fast.AlreadyPresent, r.Fast.Failed,
		r.Browser.Saved, r.Browser.Failed,
		r.Failed(),
	)
}
