package sync

import (
	"fmt"
	"runtime"

	"github.com/klauern/mirrorsync/internal/catalog"
	"github.com/klauern/mirrorsync/internal/naming"
	"github.com/klauern/mirrorsync/internal/staleness"
	"github.com/klauern/mirrorsync/internal/transcode"
	"github.com/klauern/mirrorsync/internal/validation"
)

// DefaultMusicExtensions is the music profile's extension priority, most
// preferred first. Lossless masters win over lossy copies.
var DefaultMusicExtensions = []string{"flac", "m4a", "aac", "opus", "ogg", "mp3"}

// DefaultTransformable lists the source extensions transcoded in the music
// profile.
var DefaultTransformable = []string{"flac"}

// Options configures one run. It is treated as immutable once handed to New.
type Options struct {
	// SourceRoot and DestRoot are the trees to reconcile.
	SourceRoot string
	DestRoot   string

	// DryRun reports the plan without touching the destination.
	DryRun bool

	// Transcoder converts Transformable sources. Nil disables transcoding.
	Transcoder transcode.Transcoder

	// Transformable lists source extensions handed to Transcoder.
	Transformable []string

	// Include limits source files to these extensions. Empty keeps all.
	Include []string

	// Priority orders extensions for variant selection, most preferred
	// first. Empty disables selection.
	Priority []string

	// Normalizer maps source paths to destination names.
	Normalizer naming.Normalizer

	// Detector decides whether an existing destination file is stale.
	Detector staleness.Detector

	// Catalog controls hidden-entry and exclude filtering of both walks.
	Catalog catalog.Options

	// PruneDirs removes destination directories missing from the source.
	PruneDirs bool

	// MirrorDirs recreates every source directory, including empty ones.
	MirrorDirs bool

	// DirTimes copies directory modification times after phase two.
	DirTimes bool

	// Workers bounds concurrent file operations. Zero means one per CPU.
	Workers int
}

// DefaultOptions returns the generic mirror profile: byte copies, mirror
// staleness rule, full directory mirroring and pruning.
func DefaultOptions() Options {
	return Options{
		Normalizer: naming.Identity(),
		Detector:   staleness.DefaultMirrorPolicy(),
		Catalog:    catalog.DefaultOptions(),
		PruneDirs:  true,
		MirrorDirs: true,
		DirTimes:   true,
	}
}

// MusicOptions returns the music profile: only music files, one variant per
// track, sanitized names and the newer-than staleness rule. t may be nil for
// a copy-only music sync.
func MusicOptions(t transcode.Transcoder) Options {
	return Options{
		Transcoder:    t,
		Transformable: DefaultTransformable,
		Include:       DefaultMusicExtensions,
		Priority:      DefaultMusicExtensions,
		Normalizer:    naming.Default(),
		Detector:      staleness.DefaultNewerPolicy(),
		Catalog:       catalog.DefaultOptions(),
	}
}

// Validate reports configuration that must stop a run before it starts.
func (o Options) Validate() error {
	result := &validation.Result{Valid: true}

	if o.Detector == nil {
		result.AddError(&validation.Error{Field: "staleness", Message: "no staleness policy configured"})
	}
	if o.Workers < 0 {
		result.AddError(&validation.Error{
			Field:   "workers",
			Message: fmt.Sprintf("must not be negative (got %d)", o.Workers),
		})
	}
	if err := o.Normalizer.Validate(); err != nil {
		result.AddError(&validation.Error{Field: "naming", Message: "invalid normalizer", Err: err})
	}
	if err := catalog.ValidatePatterns(o.Catalog.Exclude); err != nil {
		result.AddError(&validation.Error{Field: "exclude", Message: "invalid pattern", Err: err})
	}
	if o.Transcoder != nil && o.Transcoder.Extension() == "" {
		result.AddError(&validation.Error{Field: "transcoder", Message: "target extension is empty"})
	}

	return result.Error()
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}
