package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/klauern/mirrorsync/internal/transcode"
)

const (
	srcRoot = "/src"
	dstRoot = "/dst"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(srcRoot, 0o755))
	require.NoError(t, fs.MkdirAll(dstRoot, 0o755))
	return fs
}

func writeFile(t *testing.T, fs afero.Fs, name, content string, mod time.Time) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	require.NoError(t, fs.Chtimes(name, mod, mod))
}

func readFile(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return string(data)
}

func exists(t *testing.T, fs afero.Fs, name string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, name)
	require.NoError(t, err)
	return ok
}

// snapshot records every entry under root, hidden ones included.
func snapshot(t *testing.T, fs afero.Fs, root string) map[string]string {
	t.Helper()
	snap := make(map[string]string)
	err := afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			snap[p] = fmt.Sprintf("dir %v", info.ModTime().UnixNano())
			return nil
		}
		data, err := afero.ReadFile(fs, p)
		if err != nil {
			return err
		}
		snap[p] = fmt.Sprintf("file %s %v %v", data, info.ModTime().UnixNano(), info.Mode())
		return nil
	})
	require.NoError(t, err)
	return snap
}

// names lists every entry directly under dir.
func names(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	infos, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Name())
	}
	return out
}

func run(t *testing.T, fs afero.Fs, opts Options, options ...Option) *Result {
	t.Helper()
	res, err := New(fs, opts, options...).Run(context.Background())
	require.NoError(t, err)
	return res
}

func mirrorOpts() Options {
	opts := DefaultOptions()
	opts.SourceRoot = srcRoot
	opts.DestRoot = dstRoot
	opts.Workers = 4
	return opts
}

// fakeTranscoder "encodes" by prefixing the source bytes and fails for
// sources whose base name is listed in fail. It works on any afero.Fs.
type fakeTranscoder struct {
	fs   afero.Fs
	ext  string
	fail map[string]bool

	mu      stdsync.Mutex
	encoded []string
}

func newFakeTranscoder(fs afero.Fs, fail ...string) *fakeTranscoder {
	f := &fakeTranscoder{fs: fs, ext: "opus", fail: make(map[string]bool)}
	for _, name := range fail {
		f.fail[name] = true
	}
	return f
}

func (f *fakeTranscoder) Extension() string { return f.ext }

func (f *fakeTranscoder) ExtractTags(_ context.Context, src string) ([]transcode.Tag, error) {
	return []transcode.Tag{{Key: "TITLE", Value: path.Base(filepath.ToSlash(src))}}, nil
}

func (f *fakeTranscoder) Decode(_ context.Context, src string) (*transcode.Stream, error) {
	file, err := f.fs.Open(src)
	if err != nil {
		return nil, &transcode.Error{Stage: transcode.StageDecode, Path: src, Err: err}
	}
	return transcode.NewStream(file, nil), nil
}

func (f *fakeTranscoder) Encode(_ context.Context, in io.Reader, tags []transcode.Tag, dst string) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	out, err := f.fs.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	// Partial output before the failure point.
	if _, err := out.Write([]byte("ENC:")); err != nil {
		return err
	}
	title := transcode.Lookup(tags, "TITLE")
	if f.fail[title] {
		return &transcode.Error{Stage: transcode.StageEncode, Path: dst, ExitCode: 1, Err: fmt.Errorf("exit status 1")}
	}
	if _, err := out.Write(data); err != nil {
		return err
	}

	f.mu.Lock()
	f.encoded = append(f.encoded, title)
	f.mu.Unlock()
	return nil
}
