//nolint:revive // var-naming - package name is meaningful
package util

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

// CreateTempDir creates a temporary directory for testing
func CreateTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "mirrorsync-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})
	return dir
}

// WriteFile writes content to a file in the test directory
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

// WriteTree writes files keyed by slash-separated paths relative to root
// and stamps each with mod.
func WriteTree(t *testing.T, root string, files map[string]string, mod time.Time) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		WriteFile(t, p, content)
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatalf("failed to set times on %s: %v", p, err)
		}
	}
}

// ListTree returns the slash-separated relative paths of every regular
// file under root, sorted.
func ListTree(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	for name := range SnapshotTree(t, root) {
		files = append(files, name)
	}
	sort.Strings(files)
	return files
}

// SnapshotTree maps every regular file under root to its content. A
// missing root yields an empty map.
func SnapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()
	snap := make(map[string]string)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return snap
	}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		// #nosec G304 - p is under a test-owned directory
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		snap[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to snapshot %s: %v", root, err)
	}
	return snap
}
