// Package catalog walks a directory tree and yields a deterministic, sorted
// sequence of entries relative to the tree root.
//
// Hidden entries (names starting with the configured prefix) and entries
// matching an exclude glob are skipped together with their subtree.
// Unreadable subdirectories are reported as *AccessError values through the
// iterator's error slot and the walk carries on with the next sibling.
package catalog

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// DefaultHiddenPrefix marks entries that are never catalogued.
const DefaultHiddenPrefix = "."

// Order controls when a directory is yielded relative to its contents.
type Order int

const (
	// TopDown yields a directory before its contents.
	TopDown Order = iota
	// BottomUp yields a directory after its contents.
	BottomUp
)

// String returns a human-readable name for the order.
func (o Order) String() string {
	switch o {
	case TopDown:
		return "top-down"
	case BottomUp:
		return "bottom-up"
	default:
		return "unknown"
	}
}

// Entry is one file or directory found under a root.
type Entry struct {
	// Path is slash-separated and relative to the root.
	Path    string
	IsDir   bool
	Size    int64
	ModTime time.Time
	// Partial marks a directory holding children the walk did not yield
	// (hidden, excluded or unsupported entries). It is never empty, even
	// once every yielded child is gone.
	Partial bool
}

// Options configures a walk.
type Options struct {
	// HiddenPrefix excludes any entry whose name starts with it.
	// An empty value disables hidden-entry filtering.
	HiddenPrefix string
	// Exclude holds doublestar patterns matched against the relative path.
	Exclude []string
	// Order selects top-down or bottom-up yielding of directories.
	Order Order
	// Reclaim holds name patterns yielded even when hidden or excluded,
	// such as leftovers of interrupted writes.
	Reclaim []string
}

// DefaultOptions returns the options used by both mirror profiles.
func DefaultOptions() Options {
	return Options{HiddenPrefix: DefaultHiddenPrefix, Order: TopDown}
}

// AccessError reports a directory that could not be read.
type AccessError struct {
	Path string
	Err  error
}

// Error implements error.
func (e *AccessError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("cannot read root directory: %v", e.Err)
	}
	return fmt.Sprintf("cannot read directory %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *AccessError) Unwrap() error {
	return e.Err
}

// ValidatePatterns reports the first malformed exclude pattern.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return nil
}

// Walk lazily yields every entry under root, depth-first and sorted by name
// at each level. The root itself is not yielded.
func Walk(fsys afero.Fs, root string, opts Options) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		w := walker{fsys: fsys, root: root, opts: opts, yield: yield}
		infos, err := w.read("")
		if err != nil {
			yield(Entry{}, &AccessError{Err: err})
			return
		}
		w.dir("", infos)
	}
}

type walker struct {
	fsys  afero.Fs
	root  string
	opts  Options
	yield func(Entry, error) bool
}

// read lists one directory; afero.ReadDir sorts by name.
func (w *walker) read(rel string) ([]os.FileInfo, error) {
	return afero.ReadDir(w.fsys, filepath.Join(w.root, filepath.FromSlash(rel)))
}

// dir walks the listed contents of rel; it returns false once the consumer
// stops.
func (w *walker) dir(rel string, infos []os.FileInfo) bool {
	for _, info := range infos {
		child := path.Join(rel, info.Name())
		entry, keep, err := w.entry(child, info)
		if err != nil {
			if !w.yield(Entry{}, err) {
				return false
			}
			continue
		}
		if !keep {
			continue
		}
		if !entry.IsDir {
			if !w.yield(entry, nil) {
				return false
			}
			continue
		}

		// Contents are read before the directory is yielded so Partial is
		// known in both orders.
		children, readErr := w.read(child)
		if readErr == nil {
			entry.Partial = w.partial(child, children)
		}
		if w.opts.Order == TopDown && !w.yield(entry, nil) {
			return false
		}
		if readErr != nil {
			if !w.yield(Entry{}, &AccessError{Path: child, Err: readErr}) {
				return false
			}
		} else if !w.dir(child, children) {
			return false
		}
		if w.opts.Order == BottomUp && !w.yield(entry, nil) {
			return false
		}
	}
	return true
}

// entry converts info into an Entry. keep is false for entries that are
// skipped by the filters or cannot be mirrored.
func (w *walker) entry(rel string, info os.FileInfo) (Entry, bool, error) {
	if w.skip(info.Name(), rel) {
		return Entry{}, false, nil
	}
	if info.Mode()&os.ModeSymlink != 0 {
		// Links to files are mirrored as their target; links to
		// directories are not followed.
		target, err := w.fsys.Stat(filepath.Join(w.root, filepath.FromSlash(rel)))
		if err != nil {
			return Entry{}, false, &AccessError{Path: rel, Err: err}
		}
		if !target.Mode().IsRegular() {
			return Entry{}, false, nil
		}
		info = target
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		// Sockets, devices and pipes are not mirrored.
		return Entry{}, false, nil
	}
	return Entry{
		Path:    rel,
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, true, nil
}

// partial reports whether any child of rel will not be yielded.
func (w *walker) partial(rel string, infos []os.FileInfo) bool {
	for _, info := range infos {
		if _, keep, err := w.entry(path.Join(rel, info.Name()), info); err != nil || !keep {
			return true
		}
	}
	return false
}

func (w *walker) skip(name, rel string) bool {
	for _, pattern := range w.opts.Reclaim {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return false
		}
	}
	if w.opts.HiddenPrefix != "" && strings.HasPrefix(name, w.opts.HiddenPrefix) {
		return true
	}
	for _, pattern := range w.opts.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Listing is a fully materialized walk.
type Listing struct {
	Entries  []Entry
	Warnings []error
}

// Files returns the non-directory entries in walk order.
func (l *Listing) Files() []Entry {
	files := make([]Entry, 0, len(l.Entries))
	for _, e := range l.Entries {
		if !e.IsDir {
			files = append(files, e)
		}
	}
	return files
}

// Dirs returns the directory entries in walk order.
func (l *Listing) Dirs() []Entry {
	var dirs []Entry
	for _, e := range l.Entries {
		if e.IsDir {
			dirs = append(dirs, e)
		}
	}
	return dirs
}

// Unreadable returns the paths of subtrees the walk had to skip, in walk
// order.
func (l *Listing) Unreadable() []string {
	var out []string
	for _, w := range l.Warnings {
		var accessErr *AccessError
		if errors.As(w, &accessErr) && accessErr.Path != "" {
			out = append(out, accessErr.Path)
		}
	}
	return out
}

// Index returns the entries keyed by relative path.
func (l *Listing) Index() map[string]Entry {
	idx := make(map[string]Entry, len(l.Entries))
	for _, e := range l.Entries {
		idx[e.Path] = e
	}
	return idx
}

// Collect materializes a walk. A root that cannot be read is returned as an
// error; every other AccessError lands in Warnings.
func Collect(fsys afero.Fs, root string, opts Options) (*Listing, error) {
	listing := &Listing{}
	for entry, err := range Walk(fsys, root, opts) {
		if err != nil {
			var accessErr *AccessError
			if errors.As(err, &accessErr) && accessErr.Path == "" {
				return nil, err
			}
			listing.Warnings = append(listing.Warnings, err)
			continue
		}
		listing.Entries = append(listing.Entries, entry)
	}
	return listing, nil
}
