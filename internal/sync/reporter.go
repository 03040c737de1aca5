package sync

import (
	"time"

	"github.com/klauern/mirrorsync/internal/plan"
)

// RunInfo describes a run as it starts.
type RunInfo struct {
	SourceRoot string
	DestRoot   string
	DryRun     bool
	Started    time.Time
}

// Reporter observes a run. The engine serializes calls, so implementations
// need no locking of their own.
type Reporter interface {
	// Start is called before validation.
	Start(info RunInfo)
	// Planned is called once the plan is built.
	Planned(p *plan.Plan)
	// Report is called once per action outcome.
	Report(fr FileResult)
	// Finish is called last. res is nil when the run failed before
	// planning; err is the error Run returns.
	Finish(res *Result, err error)
}

// ReporterFuncs adapts plain functions to Reporter. Nil fields are no-ops.
type ReporterFuncs struct {
	OnStart   func(RunInfo)
	OnPlanned func(*plan.Plan)
	OnReport  func(FileResult)
	OnFinish  func(*Result, error)
}

// Start implements Reporter.
func (f ReporterFuncs) Start(info RunInfo) {
	if f.OnStart != nil {
		f.OnStart(info)
	}
}

// Planned implements Reporter.
func (f ReporterFuncs) Planned(p *plan.Plan) {
	if f.OnPlanned != nil {
		f.OnPlanned(p)
	}
}

// Report implements Reporter.
func (f ReporterFuncs) Report(fr FileResult) {
	if f.OnReport != nil {
		f.OnReport(fr)
	}
}

// Finish implements Reporter.
func (f ReporterFuncs) Finish(res *Result, err error) {
	if f.OnFinish != nil {
		f.OnFinish(res, err)
	}
}
