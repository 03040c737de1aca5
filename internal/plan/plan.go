// Package plan diffs a mapped source tree against a destination tree and
// produces the ordered actions that reconcile them.
package plan

import (
	"cmp"
	"path"
	"slices"
	"strings"

	"github.com/klauern/mirrorsync/internal/catalog"
	"github.com/klauern/mirrorsync/internal/naming"
	"github.com/klauern/mirrorsync/internal/staleness"
	"github.com/klauern/mirrorsync/internal/variant"
)

// Kind classifies an Action.
type Kind int

const (
	// KindAdd writes a destination file that does not exist yet.
	KindAdd Kind = iota
	// KindUpdate rewrites a stale destination file.
	KindUpdate
	// KindDelete removes an orphaned destination file.
	KindDelete
	// KindRetain leaves an up-to-date destination file alone.
	KindRetain
	// KindMkDir creates a destination directory.
	KindMkDir
	// KindRmDir removes an orphaned destination directory.
	KindRmDir
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindAdd, KindUpdate, KindDelete, KindRetain, KindMkDir, KindRmDir}

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindRetain:
		return "retain"
	case KindMkDir:
		return "mkdir"
	case KindRmDir:
		return "rmdir"
	default:
		return "unknown"
	}
}

// Action is one step of a plan. Paths are slash-separated and relative to
// their root; Source is empty for Delete and RmDir.
type Action struct {
	Kind      Kind
	Source    string
	Dest      string
	Transform bool
}

// Writes reports whether the action produces a destination file.
func (a Action) Writes() bool {
	return a.Kind == KindAdd || a.Kind == KindUpdate
}

// Mapped pairs a source file with its destination path.
type Mapped struct {
	Source    string
	Dest      string
	Transform bool
}

// Mapper computes destination paths from source paths.
type Mapper struct {
	Normalizer naming.Normalizer
	// Transformable lists source extensions that are transcoded.
	Transformable []string
	// TargetExt replaces the extension of transformable files.
	TargetExt string
}

// Map returns the destination of a source file.
func (m Mapper) Map(src string) Mapped {
	dest := m.Normalizer.Normalize(src)
	transform := false
	if m.TargetExt != "" {
		if _, ext := variant.SplitExt(src); m.transformable(ext) {
			dest = naming.ReplaceExt(dest, m.TargetExt)
			transform = true
		}
	}
	return Mapped{Source: src, Dest: dest, Transform: transform}
}

// MapDir returns the destination of a source directory.
func (m Mapper) MapDir(src string) string {
	return m.Normalizer.Normalize(src)
}

func (m Mapper) transformable(ext string) bool {
	for _, t := range m.Transformable {
		if strings.EqualFold(strings.TrimPrefix(t, "."), ext) {
			return true
		}
	}
	return false
}

// Collision records a source that mapped onto a destination already taken.
type Collision struct {
	Dest    string
	Chosen  string
	Ignored string
}

// Input is everything Build needs. Source and Dest hold files and
// directories as produced by catalog.Collect; Source files must already be
// variant-selected.
type Input struct {
	Source   []catalog.Entry
	Dest     []catalog.Entry
	Mapper   Mapper
	Detector staleness.Detector
	// PruneDirs removes destination directories with no source counterpart.
	PruneDirs bool
	// MirrorDirs creates every source directory, including empty ones.
	// Otherwise only parents of destination files are created.
	MirrorDirs bool
	// DestRootMissing schedules creation of the destination root itself.
	DestRootMissing bool
	// UnreadableSource lists source subtrees the walk could not read.
	// Destination entries at or under their mapped paths are left alone.
	UnreadableSource []string
	// UnreadableDest lists destination subtrees the walk could not read.
	// They and their parents are never removed.
	UnreadableDest []string
}

// Plan is the ordered result of Build.
type Plan struct {
	// Delete is phase one: file deletions, then directory removals deepest
	// first.
	Delete []Action
	// Apply is phase two: directory creations top-down, then file writes.
	Apply []Action
	// Retain lists up-to-date destination files.
	Retain []Action
	// Collisions lists sources that were not planned because another source
	// owns their destination path.
	Collisions []Collision
}

// Changes returns every mutating action in execution order.
func (p *Plan) Changes() []Action {
	out := make([]Action, 0, len(p.Delete)+len(p.Apply))
	out = append(out, p.Delete...)
	return append(out, p.Apply...)
}

// Counts returns the number of actions of each kind, Retain included.
func (p *Plan) Counts() map[Kind]int {
	counts := make(map[Kind]int, len(Kinds))
	for _, a := range p.Changes() {
		counts[a.Kind]++
	}
	counts[KindRetain] = len(p.Retain)
	return counts
}

// Writes returns the number of Add and Update actions.
func (p *Plan) Writes() int {
	n := 0
	for _, a := range p.Apply {
		if a.Writes() {
			n++
		}
	}
	return n
}

// Empty reports whether the plan would change nothing.
func (p *Plan) Empty() bool {
	return len(p.Delete) == 0 && len(p.Apply) == 0
}

// Build classifies every source and destination entry.
func Build(in Input) *Plan {
	p := &Plan{}
	files, wantDirs := mapSources(in, p)

	have := make(map[string]catalog.Entry, len(in.Dest))
	for _, e := range in.Dest {
		have[e.Path] = e
	}

	shielded := make([]string, 0, len(in.UnreadableSource))
	for _, p := range in.UnreadableSource {
		shielded = append(shielded, in.Mapper.MapDir(p))
	}
	pinned := pinnedDirs(in, shielded)

	var deletes, rmdirs, mkdirs, writes []Action

	// Phase one: everything on the destination that cannot stay.
	for _, e := range in.Dest {
		if underAny(e.Path, shielded) {
			continue
		}
		if e.IsDir {
			if wantDirs[e.Path] {
				continue
			}
			_, fileWanted := files[e.Path]
			switch {
			case fileWanted || coveredByFile(e.Path, files):
				rmdirs = append(rmdirs, Action{Kind: KindRmDir, Dest: e.Path})
			case in.PruneDirs && !pinned[e.Path]:
				rmdirs = append(rmdirs, Action{Kind: KindRmDir, Dest: e.Path})
			}
			continue
		}
		if _, ok := files[e.Path]; ok {
			continue
		}
		deletes = append(deletes, Action{Kind: KindDelete, Dest: e.Path})
	}

	// Phase two: directories, then files.
	if in.DestRootMissing {
		mkdirs = append(mkdirs, Action{Kind: KindMkDir, Dest: "."})
	}
	for dir := range wantDirs {
		if e, ok := have[dir]; ok && e.IsDir {
			continue
		}
		mkdirs = append(mkdirs, Action{Kind: KindMkDir, Dest: dir})
	}

	for dest, m := range files {
		a := Action{Source: m.mapped.Source, Dest: dest, Transform: m.mapped.Transform}
		e, ok := have[dest]
		switch {
		case !ok || e.IsDir:
			a.Kind = KindAdd
		case in.Detector.IsStale(meta(m.entry), meta(e)):
			a.Kind = KindUpdate
		default:
			a.Kind = KindRetain
			p.Retain = append(p.Retain, a)
			continue
		}
		writes = append(writes, a)
	}

	slices.SortFunc(deletes, byDest)
	slices.SortFunc(rmdirs, func(a, b Action) int {
		if c := cmp.Compare(depth(b.Dest), depth(a.Dest)); c != 0 {
			return c
		}
		return strings.Compare(a.Dest, b.Dest)
	})
	slices.SortFunc(mkdirs, byDirOrder)
	slices.SortFunc(writes, byDest)
	slices.SortFunc(p.Retain, byDest)

	p.Delete = append(deletes, rmdirs...)
	p.Apply = append(mkdirs, writes...)
	return p
}

type mappedFile struct {
	mapped Mapped
	entry  catalog.Entry
}

// mapSources maps source files and the directories they need. Sources are
// visited in path order so the first one keeps a contested destination.
func mapSources(in Input, p *Plan) (map[string]mappedFile, map[string]bool) {
	src := slices.Clone(in.Source)
	slices.SortFunc(src, func(a, b catalog.Entry) int { return strings.Compare(a.Path, b.Path) })

	wantDirs := make(map[string]bool)
	if in.MirrorDirs {
		for _, e := range src {
			if e.IsDir {
				wantDirs[in.Mapper.MapDir(e.Path)] = true
			}
		}
	}

	files := make(map[string]mappedFile)
	for _, e := range src {
		if e.IsDir {
			continue
		}
		m := in.Mapper.Map(e.Path)
		if prev, taken := files[m.Dest]; taken {
			p.Collisions = append(p.Collisions, Collision{Dest: m.Dest, Chosen: prev.mapped.Source, Ignored: e.Path})
			continue
		}
		if wantDirs[m.Dest] {
			p.Collisions = append(p.Collisions, Collision{Dest: m.Dest, Chosen: m.Dest + "/", Ignored: e.Path})
			continue
		}
		files[m.Dest] = mappedFile{mapped: m, entry: e}
	}

	// Parents of every planned file.
	for dest := range files {
		for dir := path.Dir(dest); dir != "."; dir = path.Dir(dir) {
			if wantDirs[dir] {
				break
			}
			wantDirs[dir] = true
		}
	}
	// A parent directory cannot share its path with a file.
	for dest, m := range files {
		if wantDirs[dest] {
			p.Collisions = append(p.Collisions, Collision{Dest: dest, Chosen: dest + "/", Ignored: m.mapped.Source})
			delete(files, dest)
		}
	}
	slices.SortFunc(p.Collisions, func(a, b Collision) int {
		if c := strings.Compare(a.Dest, b.Dest); c != 0 {
			return c
		}
		return strings.Compare(a.Ignored, b.Ignored)
	})
	return files, wantDirs
}

// pinnedDirs returns destination directories that cannot become empty:
// those holding entries the walk skipped or could not read, and all their
// parents.
func pinnedDirs(in Input, shielded []string) map[string]bool {
	pinned := make(map[string]bool)
	pin := func(dir string) {
		for d := dir; d != "." && d != "/" && !pinned[d]; d = path.Dir(d) {
			pinned[d] = true
		}
	}
	for _, e := range in.Dest {
		if e.IsDir && e.Partial {
			pin(e.Path)
		}
	}
	for _, p := range in.UnreadableDest {
		pin(p)
	}
	for _, p := range shielded {
		pin(p)
	}
	return pinned
}

// underAny reports whether p is one of prefixes or lies below one.
func underAny(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// coveredByFile reports whether dir sits at or under a planned file path,
// so it must go even when directories are not pruned.
func coveredByFile(dir string, files map[string]mappedFile) bool {
	for d := dir; d != "."; d = path.Dir(d) {
		if _, ok := files[d]; ok {
			return true
		}
	}
	return false
}

func meta(e catalog.Entry) staleness.Meta {
	return staleness.Meta{Exists: true, Size: e.Size, ModTime: e.ModTime}
}

func depth(p string) int {
	if p == "." {
		return 0
	}
	return strings.Count(p, "/") + 1
}

func byDest(a, b Action) int {
	return strings.Compare(a.Dest, b.Dest)
}

// byDirOrder sorts parents before children.
func byDirOrder(a, b Action) int {
	if c := cmp.Compare(depth(a.Dest), depth(b.Dest)); c != 0 {
		return c
	}
	return strings.Compare(a.Dest, b.Dest)
}
