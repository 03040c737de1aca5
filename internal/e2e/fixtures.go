package e2e

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauern/mirrorsync/internal/util"
)

// FixtureTime is the modification time given to fixture files unless a
// test sets another one.
var FixtureTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Fixture provides helpers for creating test fixtures in E2E tests.
type Fixture struct {
	t       *testing.T
	baseDir string
}

// NewFixture creates a new fixture helper rooted at the given directory.
func NewFixture(t *testing.T, baseDir string) *Fixture {
	t.Helper()
	return &Fixture{
		t:       t,
		baseDir: baseDir,
	}
}

// Root returns the fixture base directory.
func (f *Fixture) Root() string {
	return f.baseDir
}

// WriteFile writes content to a file relative to the fixture base directory
// and stamps it with FixtureTime. It creates parent directories as needed.
func (f *Fixture) WriteFile(relPath, content string) string {
	f.t.Helper()
	fullPath := f.Path(relPath)
	util.WriteTree(f.t, f.baseDir, map[string]string{relPath: content}, FixtureTime)
	return fullPath
}

// WriteFiles writes several files at once.
func (f *Fixture) WriteFiles(files map[string]string) {
	f.t.Helper()
	util.WriteTree(f.t, f.baseDir, files, FixtureTime)
}

// Touch sets the modification time of a file.
func (f *Fixture) Touch(relPath string, mod time.Time) {
	f.t.Helper()
	if err := os.Chtimes(f.Path(relPath), mod, mod); err != nil {
		f.t.Fatalf("failed to set times on %s: %v", relPath, err)
	}
}

// MkdirAll creates a directory and all parent directories relative to the base.
func (f *Fixture) MkdirAll(relPath string) string {
	f.t.Helper()
	fullPath := f.Path(relPath)

	if err := os.MkdirAll(fullPath, 0o750); err != nil {
		f.t.Fatalf("failed to create directory %s: %v", fullPath, err)
	}

	return fullPath
}

// Remove deletes a file or directory tree relative to the base.
func (f *Fixture) Remove(relPath string) {
	f.t.Helper()
	if err := os.RemoveAll(f.Path(relPath)); err != nil {
		f.t.Fatalf("failed to remove %s: %v", relPath, err)
	}
}

// Path returns the full path for a slash-separated relative path.
func (f *Fixture) Path(relPath string) string {
	return filepath.Join(f.baseDir, filepath.FromSlash(relPath))
}

// Exists returns true if the file or directory exists.
func (f *Fixture) Exists(relPath string) bool {
	f.t.Helper()
	_, err := os.Stat(f.Path(relPath))
	return err == nil
}

// ReadFile reads and returns the content of a file.
func (f *Fixture) ReadFile(relPath string) string {
	f.t.Helper()
	fullPath := f.Path(relPath)

	// #nosec G304 - fullPath is constructed from trusted test fixture base and test-provided path
	data, err := os.ReadFile(fullPath)
	if err != nil {
		f.t.Fatalf("failed to read file %s: %v", fullPath, err)
	}

	return string(data)
}

// ModTime returns the modification time of a file.
func (f *Fixture) ModTime(relPath string) time.Time {
	f.t.Helper()
	info, err := os.Stat(f.Path(relPath))
	if err != nil {
		f.t.Fatalf("failed to stat %s: %v", relPath, err)
	}
	return info.ModTime()
}

// Files lists every regular file under the fixture, sorted.
func (f *Fixture) Files() []string {
	f.t.Helper()
	return util.ListTree(f.t, f.baseDir)
}

// Snapshot maps every regular file under the fixture to its content.
func (f *Fixture) Snapshot() map[string]string {
	f.t.Helper()
	return util.SnapshotTree(f.t, f.baseDir)
}

// SourceFixture creates a fixture for a new source tree.
func (h *Harness) SourceFixture() *Fixture {
	h.t.Helper()
	return NewFixture(h.t, h.t.TempDir())
}

// DestFixture creates a fixture for a destination tree. The directory is
// not created, so the first run has to create it.
func (h *Harness) DestFixture() *Fixture {
	h.t.Helper()
	return NewFixture(h.t, filepath.Join(h.t.TempDir(), "dest"))
}

// TempFixture creates a fixture helper for a new temporary directory.
func (h *Harness) TempFixture() *Fixture {
	h.t.Helper()
	return NewFixture(h.t, h.t.TempDir())
}
