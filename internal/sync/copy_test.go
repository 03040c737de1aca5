package sync

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noMetaFs rejects mode and time changes like FAT or MTP mounts do.
type noMetaFs struct {
	afero.Fs
}

func (noMetaFs) Chmod(name string, _ os.FileMode) error {
	return &os.PathError{Op: "chmod", Path: name, Err: errors.ErrUnsupported}
}

func (noMetaFs) Chtimes(name string, _, _ time.Time) error {
	return &os.PathError{Op: "chtimes", Path: name, Err: errors.ErrUnsupported}
}

// failRenameFs loses every rename, as a full or yanked device would.
type failRenameFs struct {
	afero.Fs
}

func (failRenameFs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: fmt.Errorf("device removed")}
}

func TestCopyFilePreservesMetadata(t *testing.T) {
	fs := newFs(t)
	writeFile(t, fs, "/src/a.txt", "content", t0)
	require.NoError(t, fs.Chmod("/src/a.txt", 0o600))
	e := New(fs, mirrorOpts())

	require.NoError(t, e.copyFile("/src/a.txt", "/dst/a.txt"))

	assert.Equal(t, "content", readFile(t, fs, "/dst/a.txt"))
	info, err := fs.Stat("/dst/a.txt")
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(t0))
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Equal(t, []string{"a.txt"}, names(t, fs, "/dst"))
}

func TestCopyFileOverwrites(t *testing.T) {
	fs := newFs(t)
	writeFile(t, fs, "/src/a.txt", "new", t0)
	writeFile(t, fs, "/dst/a.txt", "old and longer", t0.Add(-time.Hour))
	e := New(fs, mirrorOpts())

	require.NoError(t, e.copyFile("/src/a.txt", "/dst/a.txt"))
	assert.Equal(t, "new", readFile(t, fs, "/dst/a.txt"))
}

func TestCopyFileToleratesUnsupportedMetadata(t *testing.T) {
	fs := noMetaFs{newFs(t)}
	writeFile(t, fs.Fs, "/src/a.txt", "content", t0)
	e := New(fs, mirrorOpts())

	require.NoError(t, e.copyFile("/src/a.txt", "/dst/a.txt"))
	assert.Equal(t, "content", readFile(t, fs, "/dst/a.txt"))
}

func TestCopyFileFailureCleansUp(t *testing.T) {
	base := newFs(t)
	writeFile(t, base, "/src/a.txt", "new", t0)
	writeFile(t, base, "/dst/a.txt", "old", t0.Add(-time.Hour))
	e := New(failRenameFs{base}, mirrorOpts())

	err := e.copyFile("/src/a.txt", "/dst/a.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "move")

	assert.False(t, exists(t, base, "/dst/a.txt"), "a failed update must not leave the old file looking current")
	assert.Empty(t, names(t, base, "/dst"), "temporary file must be removed")
}

func TestCopyFileMissingSource(t *testing.T) {
	fs := newFs(t)
	e := New(fs, mirrorOpts())

	err := e.copyFile("/src/missing.txt", "/dst/missing.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, names(t, fs, "/dst"))
}

func TestTempFilesAreHidden(t *testing.T) {
	assert.True(t, strings.HasPrefix(TempPattern, "."), "in-flight files must be skipped by catalog walks")
}

func TestMakeDirIdempotent(t *testing.T) {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	e := New(fs, mirrorOpts())

	require.NoError(t, e.makeDir(dir+"/a/b"))
	require.NoError(t, e.makeDir(dir+"/a/b"), "an existing directory is success")

	writeFile(t, fs, dir+"/file", "x", t0)
	assert.Error(t, e.makeDir(dir+"/file/sub"), "a file in the way is a failure")
}

func TestRemoveMissingIsSuccess(t *testing.T) {
	fs := newFs(t)
	e := New(fs, mirrorOpts())

	assert.NoError(t, e.removeFile("/dst/gone.txt"))
	assert.NoError(t, e.removeDir("/dst/gone"))
}

func TestRemoveDirRequiresEmpty(t *testing.T) {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	writeFile(t, fs, dir+"/full/x.txt", "x", t0)
	e := New(fs, mirrorOpts())

	assert.Error(t, e.removeDir(dir+"/full"))
	require.NoError(t, e.removeFile(dir+"/full/x.txt"))
	assert.NoError(t, e.removeDir(dir+"/full"))
}
