package scheduler

import (
	"fmt"
	"strings"
)

type ItemError struct {
	EntityID string
	Err      error
}

// JobReport accumulates per-entity outcomes for one batch job run. Jobs exit
// non-zero when Errors is non-empty, in dry-run mode too.
type JobReport struct {
	Job     string
	DryRun  bool
	Created int
	Skipped int
	Errors  []ItemError
}

func (r *JobReport) AddError(entityID string, err error) {
	r.Errors = append(r.Errors, ItemError{EntityID: entityID, Err: err})
}

func (r *JobReport) Failed() bool { return len(r.Errors) > 0 }

// Summary is the operator-facing one-liner; the dry-run and live paths render
// identically apart from the mode marker.
func (r *JobReport) Summary() string {
	var b strings.Builder
	mode := "live"
	if r.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(&b, "%s (%s): created=%d skipped=%d errors=%d", r.Job, mode, r.Created, r.Skipped, len(r.Errors))
	for _, item := range r.Errors {
		fmt.Fprintf(&b, "\n  %s: %v", item.EntityID, item.Err)
	}
	return b.String()
}
