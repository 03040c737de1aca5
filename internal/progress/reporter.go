package progress

import (
	"io"

	"github.com/klauern/mirrorsync/internal/plan"
	"github.com/klauern/mirrorsync/internal/sync"
)

// Reporter shows a bar over the planned changes of a run. It implements
// sync.Reporter; outside a terminal it only logs at debug level.
type Reporter struct {
	w    io.Writer
	bar  *Bar
	done int
}

var _ sync.Reporter = (*Reporter)(nil)

// NewReporter returns a Reporter drawing on w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Start implements sync.Reporter.
func (r *Reporter) Start(sync.RunInfo) {}

// Planned implements sync.Reporter.
func (r *Reporter) Planned(p *plan.Plan) {
	if p.Empty() {
		return
	}
	opts := DefaultOptions()
	opts.Max = int64(len(p.Changes()))
	opts.Description = "Syncing"
	opts.Writer = r.w
	r.bar = New(opts)
}

// Report implements sync.Reporter.
func (r *Reporter) Report(fr sync.FileResult) {
	r.done++
	if r.bar == nil {
		return
	}
	r.bar.Describe(fr.Action.Dest)
	_ = r.bar.Set(r.done)
}

// Finish implements sync.Reporter. A bar left short by an error or an
// interrupted run is cleared rather than filled.
func (r *Reporter) Finish(res *sync.Result, err error) {
	if r.bar == nil {
		return
	}
	if err != nil || (res != nil && res.Aborted) {
		_ = r.bar.Clear()
		return
	}
	r.bar.Describe("Done")
	if !r.bar.IsFinished() {
		_ = r.bar.Finish()
	}
}

// Done returns the number of reported actions.
func (r *Reporter) Done() int {
	return r.done
}
