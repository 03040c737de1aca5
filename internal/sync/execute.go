package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/plan"
	"github.com/klauern/mirrorsync/internal/validation"
)

// Execute applies a prepared plan. Per-action failures are recorded in the
// Result and never stop the run; cancelling ctx stops scheduling new actions
// and marks them StatusSkipped.
func (e *Engine) Execute(ctx context.Context, prep *Prepared) *Result {
	res := e.newResult(prep)
	p := prep.Plan

	// Phase one: file deletions in parallel, then directory removals in
	// plan order (deepest first).
	logging.Debug("phase started", logging.Phase("delete"), logging.Count(len(p.Delete)))
	stop := logging.Timer("phase delete")
	files, dirs := partition(p.Delete, 0, plan.KindRmDir)
	e.parallel(ctx, res, prep.Roots, files)
	e.sequential(ctx, res, prep.Roots, dirs)
	stop()

	// Phase two starts only after every phase-one action has returned.
	logging.Debug("phase started", logging.Phase("apply"), logging.Count(len(p.Apply)))
	stop = logging.Timer("phase apply")
	files, dirs = partition(p.Apply, len(p.Delete), plan.KindMkDir)
	e.sequential(ctx, res, prep.Roots, dirs)
	e.parallel(ctx, res, prep.Roots, files)
	stop()

	if e.opts.DirTimes && !e.opts.DryRun && ctx.Err() == nil {
		e.copyDirTimes(prep)
	}

	res.Aborted = ctx.Err() != nil
	return res
}

// partition splits actions into indexes of res.Actions: those of dirKind
// and all others, each in plan order.
func partition(actions []plan.Action, base int, dirKind plan.Kind) (others, dirs []int) {
	for i, a := range actions {
		if a.Kind == dirKind {
			dirs = append(dirs, base+i)
		} else {
			others = append(others, base+i)
		}
	}
	return others, dirs
}

func (e *Engine) sequential(ctx context.Context, res *Result, roots *validation.Roots, idx []int) {
	for _, i := range idx {
		e.apply(ctx, res, roots, i)
	}
}

// parallel runs independent actions in a bounded pool. The group carries no
// context: one failed file must not cancel its siblings.
func (e *Engine) parallel(ctx context.Context, res *Result, roots *validation.Roots, idx []int) {
	var g errgroup.Group
	g.SetLimit(e.opts.workers())
	for _, i := range idx {
		g.Go(func() error {
			e.apply(ctx, res, roots, i)
			return nil
		})
	}
	_ = g.Wait()
}

// apply runs res.Actions[i] and records its outcome. Each index is written
// by exactly one goroutine.
func (e *Engine) apply(ctx context.Context, res *Result, roots *validation.Roots, i int) {
	fr := &res.Actions[i]
	a := fr.Action

	switch {
	case ctx.Err() != nil:
		fr.Status, fr.Error = StatusSkipped, ctx.Err()
	case e.opts.DryRun:
		fr.Status = StatusPlanned
	default:
		start := time.Now()
		err := e.do(ctx, a, roots)
		fr.Duration = time.Since(start)
		if err != nil {
			fr.Status, fr.Error = StatusFailed, err
			logging.Error("action failed",
				logging.Action(a.Kind),
				logging.Path(a.Dest),
				logging.Err(err),
			)
		} else {
			fr.Status = StatusDone
			logging.Debug("action applied",
				logging.Action(a.Kind),
				logging.Path(a.Dest),
			)
		}
	}

	done := *fr
	e.emit(func(r Reporter) { r.Report(done) })
}

func (e *Engine) do(ctx context.Context, a plan.Action, roots *validation.Roots) error {
	dst := filepath.Join(roots.Dest, filepath.FromSlash(a.Dest))

	switch a.Kind {
	case plan.KindDelete:
		return e.removeFile(dst)
	case plan.KindRmDir:
		return e.removeDir(dst)
	case plan.KindMkDir:
		return e.makeDir(dst)
	case plan.KindAdd, plan.KindUpdate:
		src := filepath.Join(roots.Source, filepath.FromSlash(a.Source))
		if a.Transform {
			return e.transformFile(ctx, src, dst)
		}
		return e.copyFile(src, dst)
	default:
		return fmt.Errorf("unexpected %s action for %q", a.Kind, a.Dest)
	}
}

// copyDirTimes gives destination directories their source modification
// times. Directory times are cosmetic, so failures are only logged.
func (e *Engine) copyDirTimes(prep *Prepared) {
	for _, d := range prep.sourceDirs {
		dst := filepath.Join(prep.Roots.Dest, filepath.FromSlash(prep.mapper.MapDir(d.Path)))
		if err := e.fs.Chtimes(dst, d.ModTime, d.ModTime); err != nil {
			logging.Debug("could not copy directory time",
				logging.Path(d.Path),
				logging.Err(err),
			)
		}
	}
}
