package report_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cartx/imagesync/internal/report"
)

func TestReportCounts(t *testing.T) {
	r := report.Report{
		Total:   10,
		Fast:    report.StageStats{Attempted: 10, Saved: 4, AlreadyPresent: 2, Failed: 4},
		Browser: report.StageStats{Attempted: 4, Saved: 3, Failed: 1},
	}

	assert.Equal(t, 9, r.Succeeded())
	assert.Equal(t, 1, r.Failed())
}

func TestReportSummary(t *testing.T) {
	r := report.Report{
		RunID:    "run-1",
		Duration: 1500 * time.Millisecond,
		Total:    2,
		Fast:     report.StageStats{Attempted: 2, Saved: 1, Failed: 1},
		Browser:  report.StageStats{Attempted: 1, Saved: 1},
	}

	s := r.Summary()
	assert.Contains(t, s, "run-1")
	assert.Contains(t, s, "2/2 images resolved")
	assert.Contains(t, s, "0 unresolved")
}

func TestEmptyRunReport(t *testing.T) {
	r := report.Report{RunID: "run-0"}
	assert.Equal(t, 0, r.Succeeded())
	assert.Equal(t, 0, r.Failed())
	assert.Contains(t, r.Summary(), "0/0 images resolved")
}
