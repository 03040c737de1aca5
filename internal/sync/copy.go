package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/transcode"
)

// TempPattern names in-flight outputs. The leading dot keeps them out of
// catalog walks using the default hidden prefix.
const TempPattern = ".mirrorsync-tmp-*"

// transcodedMode is the permission of encoder outputs.
const transcodedMode fs.FileMode = 0o644

// claim owns a temporary file next to its destination until the finished
// content is renamed into place. Releasing an uncommitted claim removes the
// temporary file and whatever sits at the destination path, so a failed
// write never leaves an artifact that a later run could take as current.
type claim struct {
	fs        afero.Fs
	tmp       string
	dst       string
	committed bool
}

// newClaim creates the temporary file. ext is appended to the random name
// for tools that pick a container from the file extension.
func newClaim(fsys afero.Fs, dst, ext string) (*claim, afero.File, error) {
	f, err := afero.TempFile(fsys, filepath.Dir(dst), TempPattern+ext)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temporary file for %q: %w", dst, err)
	}
	return &claim{fs: fsys, tmp: f.Name(), dst: dst}, f, nil
}

func (c *claim) commit() error {
	if err := c.fs.Rename(c.tmp, c.dst); err != nil {
		return fmt.Errorf("failed to move %q into place: %w", c.dst, err)
	}
	c.committed = true
	return nil
}

func (c *claim) release() {
	if c.committed {
		return
	}
	_ = c.fs.Remove(c.tmp)
	if err := c.fs.Remove(c.dst); err == nil {
		logging.Debug("removed destination after failed write", logging.Path(c.dst))
	}
}

// copyFile copies src to dst, preserving permissions and modification time.
func (e *Engine) copyFile(src, dst string) error {
	// #nosec G304 - src is joined from the validated source root
	in, err := e.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source %q: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source %q: %w", src, err)
	}

	c, out, err := newClaim(e.fs, dst, "")
	if err != nil {
		return err
	}
	defer c.release()

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy content to %q: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush %q: %w", dst, err)
	}
	if err := e.preserve(c.tmp, info.Mode().Perm(), info.ModTime()); err != nil {
		return err
	}
	return c.commit()
}

// transformFile transcodes src into dst. The output is stamped with the
// later of now and the source time so the newer-than rule sees it as
// current on the next run.
func (e *Engine) transformFile(ctx context.Context, src, dst string) error {
	info, err := e.fs.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source %q: %w", src, err)
	}

	c, out, err := newClaim(e.fs, dst, "."+e.opts.Transcoder.Extension())
	if err != nil {
		return err
	}
	defer c.release()
	// The encoder writes the file itself.
	_ = out.Close()

	if err := transcode.Transcode(ctx, e.opts.Transcoder, src, c.tmp); err != nil {
		var terr *transcode.Error
		if errors.As(err, &terr) && terr.Stderr != "" {
			logging.Debug("encoder output", logging.Path(src), "stderr", terr.Stderr)
		}
		return err
	}

	stamp := e.now()
	if info.ModTime().After(stamp) {
		stamp = info.ModTime()
	}
	if err := e.preserve(c.tmp, transcodedMode, stamp); err != nil {
		return err
	}
	return c.commit()
}

// preserve sets mode and times on path. Filesystems that cannot store them
// (FAT, MTP mounts) report ErrUnsupported, which is ignored.
func (e *Engine) preserve(path string, mode fs.FileMode, mtime time.Time) error {
	if err := e.fs.Chmod(path, mode); err != nil && !errors.Is(err, errors.ErrUnsupported) {
		return fmt.Errorf("failed to set mode on %q: %w", path, err)
	}
	if err := e.fs.Chtimes(path, mtime, mtime); err != nil && !errors.Is(err, errors.ErrUnsupported) {
		return fmt.Errorf("failed to set times on %q: %w", path, err)
	}
	return nil
}

// removeFile deletes a destination file. A file that is already gone counts
// as removed.
func (e *Engine) removeFile(path string) error {
	if err := e.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %q: %w", path, err)
	}
	return nil
}

// removeDir deletes an empty destination directory.
func (e *Engine) removeDir(path string) error {
	if err := e.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove directory %q: %w", path, err)
	}
	return nil
}

// makeDir creates path and its parents. A directory that already exists,
// possibly created concurrently, is success.
func (e *Engine) makeDir(path string) error {
	err := e.fs.MkdirAll(path, 0o755)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		if info, statErr := e.fs.Stat(path); statErr == nil && info.IsDir() {
			return nil
		}
	}
	return fmt.Errorf("failed to create directory %q: %w", path, err)
}
