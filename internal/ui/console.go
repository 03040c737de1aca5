package ui

import (
	"fmt"
	"io"

	"github.com/klauern/mirrorsync/internal/plan"
	"github.com/klauern/mirrorsync/internal/sync"
)

// Console prints one line per action and a summary when the run ends. It
// implements sync.Reporter.
type Console struct {
	w io.Writer
}

var _ sync.Reporter = (*Console)(nil)

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Start implements sync.Reporter.
func (c *Console) Start(sync.RunInfo) {}

// Planned implements sync.Reporter.
func (c *Console) Planned(p *plan.Plan) {
	for _, col := range p.Collisions {
		c.printf("%s\n", StatusWarning(fmt.Sprintf("%s also maps to %s (kept %s)", col.Ignored, col.Dest, col.Chosen)))
	}
	if p.Empty() {
		c.printf("%s\n", StatusSuccess("Already up to date"))
	}
}

// Report implements sync.Reporter.
func (c *Console) Report(fr sync.FileResult) {
	line := ActionLine(fr.Action)
	switch fr.Status {
	case sync.StatusDone:
		c.printf("%s\n", StatusSuccess(line))
	case sync.StatusPlanned:
		c.printf("%s %s\n", Info(SymbolPending), line)
	case sync.StatusFailed:
		c.printf("%s\n", StatusError(fmt.Sprintf("%s: %v", line, fr.Error)))
	case sync.StatusSkipped:
		c.printf("%s\n", StatusSkipped(Dim(line)))
	}
}

// Finish implements sync.Reporter. Run errors are left to the caller.
func (c *Console) Finish(res *sync.Result, err error) {
	if res == nil {
		return
	}
	for _, w := range res.Warnings {
		c.printf("%s\n", StatusWarning(w.Error()))
	}
	for _, tie := range res.Ties {
		c.printf("%s\n", StatusWarning(fmt.Sprintf("%s and %s rank equally, using %s", tie.Chosen, tie.Ignored, tie.Chosen)))
	}
	c.printf("\n%s", res.Summary())
}

// ActionLine renders an action as "kind path" or "kind source -> dest".
func ActionLine(a plan.Action) string {
	verb := a.Kind.String()
	if a.Transform {
		verb += "*"
	}
	if a.Source == "" || a.Source == a.Dest {
		return fmt.Sprintf("%-7s %s", verb, a.Dest)
	}
	return fmt.Sprintf("%-7s %s -> %s", verb, a.Source, a.Dest)
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.w, format, args...)
}
