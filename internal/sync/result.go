package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/klauern/mirrorsync/internal/plan"
	"github.com/klauern/mirrorsync/internal/variant"
)

// Status is the outcome of one action.
type Status string

const (
	// StatusPlanned marks an action reported by a dry run.
	StatusPlanned Status = "planned"

	// StatusDone marks an action that was applied.
	StatusDone Status = "done"

	// StatusFailed marks an action that could not be applied.
	StatusFailed Status = "failed"

	// StatusSkipped marks an action that was never started because the
	// run was cancelled.
	StatusSkipped Status = "skipped"
)

// FileResult represents the outcome of a single action.
type FileResult struct {
	// Action is the planned step.
	Action plan.Action

	// Status is what happened to it.
	Status Status

	// Error contains any error that occurred during processing.
	Error error

	// Duration is the wall time spent applying the action.
	Duration time.Duration
}

// Success returns true if the action did not fail.
func (fr *FileResult) Success() bool {
	return fr.Status != StatusFailed
}

// Result contains the complete outcome of a run.
type Result struct {
	// SourceRoot and DestRoot are the validated roots.
	SourceRoot string
	DestRoot   string

	// DryRun indicates if this was a dry run (no changes made).
	DryRun bool

	// Actions holds one entry per planned change, in plan order.
	Actions []FileResult

	// Retained is the number of up-to-date destination files.
	Retained int

	// Warnings collects traversal errors of skipped subtrees.
	Warnings []error

	// Ties lists equally ranked variants resolved by path order.
	Ties []variant.Tie

	// Collisions lists sources whose destination was already taken.
	Collisions []plan.Collision

	// Aborted is set when the run was cancelled or declined before every
	// action was attempted.
	Aborted bool
}

// Count returns the number of actions of kind, regardless of status.
func (r *Result) Count(kind plan.Kind) int {
	n := 0
	for _, fr := range r.Actions {
		if fr.Action.Kind == kind {
			n++
		}
	}
	return n
}

// Failed returns actions that could not be applied.
func (r *Result) Failed() []FileResult {
	return r.filterByStatus(StatusFailed)
}

// Skipped returns actions that were never attempted.
func (r *Result) Skipped() []FileResult {
	return r.filterByStatus(StatusSkipped)
}

func (r *Result) filterByStatus(status Status) []FileResult {
	var filtered []FileResult
	for _, fr := range r.Actions {
		if fr.Status == status {
			filtered = append(filtered, fr)
		}
	}
	return filtered
}

// Success returns true if no action failed.
func (r *Result) Success() bool {
	return len(r.Failed()) == 0
}

// TotalChanged returns the number of actions that were applied, or would be
// in a dry run.
func (r *Result) TotalChanged() int {
	n := 0
	for _, fr := range r.Actions {
		if fr.Status == StatusDone || fr.Status == StatusPlanned {
			n++
		}
	}
	return n
}

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	var sb strings.Builder

	if r.DryRun {
		sb.WriteString("Dry run - no changes made (use --commit to apply)\n")
	}

	sb.WriteString(fmt.Sprintf("Synced %s -> %s\n", r.SourceRoot, r.DestRoot))

	sb.WriteString(fmt.Sprintf("  Added:     %d\n", r.Count(plan.KindAdd)))
	sb.WriteString(fmt.Sprintf("  Updated:   %d\n", r.Count(plan.KindUpdate)))
	sb.WriteString(fmt.Sprintf("  Deleted:   %d\n", r.Count(plan.KindDelete)))
	sb.WriteString(fmt.Sprintf("  Dirs:      +%d -%d\n", r.Count(plan.KindMkDir), r.Count(plan.KindRmDir)))
	sb.WriteString(fmt.Sprintf("  Unchanged: %d\n", r.Retained))
	sb.WriteString(fmt.Sprintf("  Failed:    %d\n", len(r.Failed())))

	if len(r.Warnings) > 0 {
		sb.WriteString(fmt.Sprintf("  Warnings:  %d\n", len(r.Warnings)))
	}
	if r.Aborted {
		sb.WriteString(fmt.Sprintf("\nAborted with %d action(s) not attempted\n", len(r.Skipped())))
	}

	if !r.Success() {
		sb.WriteString("\nErrors:\n")
		for _, f := range r.Failed() {
			sb.WriteString(fmt.Sprintf("  - %s %s: %v\n", f.Action.Kind, f.Action.Dest, f.Error))
		}
	}

	return sb.String()
}
