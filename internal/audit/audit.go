// Package audit appends a plain-text record of every run to a log file.
//
// Each run is bracketed by marker lines:
//
//	==== [2024-03-01 12:00:00] START src=/music dst=/media/player dryrun
//	[2024-03-01 12:00:01] MKDIR Album
//	[2024-03-01 12:00:03] ENCODE Album/track.flac -> Album/track.opus
//	==== [2024-03-01 12:00:04] FINISH
//
// A run that fails before planning, is declined or is cancelled ends with
// an ABORT marker instead of FINISH.
package audit

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/plan"
	"github.com/klauern/mirrorsync/internal/sync"
)

// TimeLayout is the timestamp format of every line.
const TimeLayout = "2006-01-02 15:04:05"

// Verbs written for each action.
const (
	VerbCopy   = "COPY"
	VerbEncode = "ENCODE"
	VerbRemove = "REMOVE"
	VerbMkdir  = "MKDIR"
	VerbRmdir  = "RMDIR"
)

// Log is an append-only audit file. It implements sync.Reporter.
type Log struct {
	f   afero.File
	now func() time.Time
	err error
}

var _ sync.Reporter = (*Log)(nil)

// Option customizes a Log.
type Option func(*Log)

// WithClock replaces the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// Open opens path for appending, creating it if needed.
func Open(fsys afero.Fs, path string, opts ...Option) (*Log, error) {
	// #nosec G302 G304 - the log path is chosen by the user
	f, err := fsys.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log %q: %w", path, err)
	}
	l := &Log{f: f, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Close closes the file and returns the first write error, if any.
func (l *Log) Close() error {
	closeErr := l.f.Close()
	if l.err != nil {
		return l.err
	}
	return closeErr
}

// Err returns the first write error.
func (l *Log) Err() error {
	return l.err
}

// Start implements sync.Reporter.
func (l *Log) Start(info sync.RunInfo) {
	line := fmt.Sprintf("src=%s dst=%s", info.SourceRoot, info.DestRoot)
	if info.DryRun {
		line += " dryrun"
	}
	l.marker("START " + line)
}

// Planned implements sync.Reporter.
func (l *Log) Planned(*plan.Plan) {}

// Report implements sync.Reporter.
func (l *Log) Report(fr sync.FileResult) {
	line := Describe(fr.Action)
	switch fr.Status {
	case sync.StatusFailed:
		line = fmt.Sprintf("FAILED %s: %v", line, fr.Error)
	case sync.StatusSkipped:
		line = "SKIPPED " + line
	}
	l.writef("[%s] %s\n", l.stamp(), line)
}

// Finish implements sync.Reporter.
func (l *Log) Finish(res *sync.Result, err error) {
	switch {
	case err != nil:
		l.marker("ABORT " + oneLine(err.Error()))
	case res != nil && res.Aborted:
		l.marker(fmt.Sprintf("ABORT %d action(s) not attempted", len(res.Skipped())))
	default:
		l.marker("FINISH")
	}
}

// Describe renders an action as verb and paths.
func Describe(a plan.Action) string {
	switch a.Kind {
	case plan.KindDelete:
		return VerbRemove + " " + a.Dest
	case plan.KindRmDir:
		return VerbRmdir + " " + a.Dest
	case plan.KindMkDir:
		return VerbMkdir + " " + a.Dest
	}
	verb := VerbCopy
	if a.Transform {
		verb = VerbEncode
	}
	if a.Source == a.Dest {
		return verb + " " + a.Dest
	}
	return fmt.Sprintf("%s %s -> %s", verb, a.Source, a.Dest)
}

func (l *Log) marker(text string) {
	l.writef("==== [%s] %s\n", l.stamp(), text)
}

func (l *Log) stamp() string {
	return l.now().Format(TimeLayout)
}

func (l *Log) writef(format string, args ...any) {
	if l.err != nil {
		return
	}
	if _, err := fmt.Fprintf(l.f, format, args...); err != nil {
		l.err = fmt.Errorf("failed to write audit log: %w", err)
		logging.Warn("audit log write failed", logging.Err(err))
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
