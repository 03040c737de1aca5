package sync

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	stdsync "sync"
	"time"

	"github.com/spf13/afero"

	"github.com/klauern/mirrorsync/internal/catalog"
	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/plan"
	"github.com/klauern/mirrorsync/internal/validation"
	"github.com/klauern/mirrorsync/internal/variant"
)

// ErrDeclined is returned by Run when the confirmation hook rejects the plan.
var ErrDeclined = errors.New("plan declined")

// ConfirmFunc inspects a plan before it is executed and reports whether to
// go ahead.
type ConfirmFunc func(ctx context.Context, p *plan.Plan) (bool, error)

// Engine runs one reconciliation.
type Engine struct {
	fs        afero.Fs
	opts      Options
	reporters []Reporter
	confirm   ConfirmFunc
	now       func() time.Time

	mu stdsync.Mutex
}

// Option customizes an Engine.
type Option func(*Engine)

// WithReporter adds an observer of the run.
func WithReporter(r Reporter) Option {
	return func(e *Engine) {
		if r != nil {
			e.reporters = append(e.reporters, r)
		}
	}
}

// WithConfirm installs a hook consulted before a non-empty plan is executed.
func WithConfirm(fn ConfirmFunc) Option {
	return func(e *Engine) {
		e.confirm = fn
	}
}

// WithClock replaces the clock used for transcoded output times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine over fsys.
func New(fsys afero.Fs, opts Options, options ...Option) *Engine {
	e := &Engine{fs: fsys, opts: opts, now: time.Now}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Prepared is a validated, catalogued and planned run.
type Prepared struct {
	Roots    *validation.Roots
	Plan     *plan.Plan
	Warnings []error
	Ties     []variant.Tie

	sourceDirs []catalog.Entry
	mapper     plan.Mapper
}

// Prepare validates the configuration and roots, catalogs both trees and
// builds the plan. A committing run also requires a writable destination. Every error it returns is structural.
func (e *Engine) Prepare(ctx context.Context) (*Prepared, error) {
	defer logging.Timer("prepare")()

	if err := e.opts.Validate(); err != nil {
		return nil, err
	}
	roots, err := validation.ValidateRoots(e.fs, e.opts.SourceRoot, e.opts.DestRoot)
	if err != nil {
		return nil, err
	}
	if !e.opts.DryRun {
		dir := roots.Dest
		if roots.DestMissing {
			dir = filepath.Dir(roots.Dest)
		}
		if err := validation.CheckWritable(e.fs, dir); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := catalog.Collect(e.fs, roots.Source, e.opts.Catalog)
	if err != nil {
		return nil, &validation.Error{Field: "source", Message: "cannot read root", Err: err}
	}
	logging.Debug("catalogued source",
		logging.Root(roots.Source),
		logging.Count(len(src.Entries)),
	)

	// Leftovers of interrupted writes are catalogued so they get deleted.
	dstOpts := e.opts.Catalog
	dstOpts.Reclaim = append(slices.Clone(dstOpts.Reclaim), TempPattern, validation.WriteTestPattern)

	dst := &catalog.Listing{}
	if !roots.DestMissing {
		dst, err = catalog.Collect(e.fs, roots.Dest, dstOpts)
		if err != nil {
			return nil, &validation.Error{Field: "destination", Message: "cannot read root", Err: err}
		}
	}
	logging.Debug("catalogued destination",
		logging.Root(roots.Dest),
		logging.Count(len(dst.Entries)),
		slog.Bool("missing", roots.DestMissing),
	)

	prep := &Prepared{Roots: roots}
	prep.Warnings = append(prep.Warnings, src.Warnings...)
	prep.Warnings = append(prep.Warnings, dst.Warnings...)
	for _, w := range prep.Warnings {
		logging.Warn("skipped unreadable subtree", logging.Err(w))
	}

	selected, ties := e.selectSources(src)
	prep.Ties = ties
	prep.sourceDirs = src.Dirs()

	prep.mapper = plan.Mapper{Normalizer: e.opts.Normalizer}
	if e.opts.Transcoder != nil {
		prep.mapper.Transformable = e.opts.Transformable
		prep.mapper.TargetExt = e.opts.Transcoder.Extension()
	}

	prep.Plan = plan.Build(plan.Input{
		Source:           selected,
		Dest:             dst.Entries,
		Mapper:           prep.mapper,
		Detector:         e.opts.Detector,
		PruneDirs:        e.opts.PruneDirs,
		MirrorDirs:       e.opts.MirrorDirs,
		DestRootMissing:  roots.DestMissing,
		UnreadableSource: src.Unreadable(),
		UnreadableDest:   dst.Unreadable(),
	})
	for _, c := range prep.Plan.Collisions {
		logging.Warn("destination name collision, source not synced",
			logging.Path(c.Ignored),
			slog.String("dest", c.Dest),
			slog.String("kept", c.Chosen),
		)
	}

	counts := prep.Plan.Counts()
	logging.Debug("plan built",
		slog.Int("add", counts[plan.KindAdd]),
		slog.Int("update", counts[plan.KindUpdate]),
		slog.Int("delete", counts[plan.KindDelete]),
		slog.Int("retain", counts[plan.KindRetain]),
		slog.Int("mkdir", counts[plan.KindMkDir]),
		slog.Int("rmdir", counts[plan.KindRmDir]),
	)
	return prep, nil
}

// selectSources applies the include filter and variant selection to the
// source files. Directories pass through untouched.
func (e *Engine) selectSources(src *catalog.Listing) ([]catalog.Entry, []variant.Tie) {
	index := src.Index()
	files := src.Files()
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	paths = variant.Filter(paths, e.opts.Include)

	sel := variant.Selection{Paths: paths}
	if len(e.opts.Priority) > 0 {
		sel = variant.Select(paths, e.opts.Priority)
	}
	for _, tie := range sel.Ties {
		logging.Warn("equally ranked variants, keeping the first",
			logging.Path(tie.Chosen),
			slog.String("ignored", tie.Ignored),
		)
	}
	for _, p := range sel.Dropped {
		logging.Debug("superseded by preferred variant", logging.Path(p))
	}

	selected := src.Dirs()
	for _, p := range sel.Paths {
		selected = append(selected, index[p])
	}
	return selected, sel.Ties
}

// Run prepares, optionally confirms and executes a run. A non-nil error
// means nothing was mutated: either a structural failure, cancellation
// before execution, or ErrDeclined.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	defer logging.Timer("sync")()
	log := logging.WithContext(ctx)

	log.Debug("starting sync",
		logging.Operation("sync"),
		slog.String("source", e.opts.SourceRoot),
		slog.String("dest", e.opts.DestRoot),
		slog.Bool("dry_run", e.opts.DryRun),
	)
	e.emit(func(r Reporter) {
		r.Start(RunInfo{
			SourceRoot: e.opts.SourceRoot,
			DestRoot:   e.opts.DestRoot,
			DryRun:     e.opts.DryRun,
			Started:    e.now(),
		})
	})

	prep, err := e.Prepare(ctx)
	if err != nil {
		log.Error("sync aborted before planning", logging.Err(err))
		e.emit(func(r Reporter) { r.Finish(nil, err) })
		return nil, err
	}
	e.emit(func(r Reporter) { r.Planned(prep.Plan) })

	if e.confirm != nil && !prep.Plan.Empty() {
		ok, err := e.confirm(ctx, prep.Plan)
		if err == nil && !ok {
			err = ErrDeclined
		}
		if err != nil {
			res := e.newResult(prep)
			res.Aborted = true
			for i := range res.Actions {
				res.Actions[i].Status = StatusSkipped
			}
			e.emit(func(r Reporter) { r.Finish(res, err) })
			return res, err
		}
	}

	res := e.Execute(ctx, prep)
	e.emit(func(r Reporter) { r.Finish(res, nil) })

	log.Debug("sync completed",
		logging.Count(res.TotalChanged()),
		slog.Int("failed", len(res.Failed())),
		slog.Bool("aborted", res.Aborted),
	)
	return res, nil
}

func (e *Engine) newResult(prep *Prepared) *Result {
	changes := prep.Plan.Changes()
	res := &Result{
		SourceRoot: prep.Roots.Source,
		DestRoot:   prep.Roots.Dest,
		DryRun:     e.opts.DryRun,
		Actions:    make([]FileResult, len(changes)),
		Retained:   len(prep.Plan.Retain),
		Warnings:   prep.Warnings,
		Ties:       prep.Ties,
		Collisions: prep.Plan.Collisions,
	}
	for i, a := range changes {
		res.Actions[i].Action = a
	}
	return res
}

// emit delivers one event to every reporter under the engine lock.
func (e *Engine) emit(fn func(Reporter)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.reporters {
		fn(r)
	}
}
