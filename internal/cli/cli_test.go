package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klauern/mirrorsync/internal/logging"
	"github.com/klauern/mirrorsync/internal/util"
)

// runCLI runs the application with captured output.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"mirrorsync"}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

var stamp = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestVersionVariables(t *testing.T) {
	// Version should be set (even if to "dev")
	if Version == "" {
		t.Error("Version should not be empty")
	}

	// Commit and BuildDate should have defaults
	if Commit == "" {
		t.Error("Commit should not be empty")
	}
	if BuildDate == "" {
		t.Error("BuildDate should not be empty")
	}
}

func TestConfigureLogging(t *testing.T) {
	tests := map[string]struct {
		args      []string
		wantInfo  bool
		wantDebug bool
	}{
		"no flags uses warn level": {
			args: []string{"version"},
		},
		"verbose flag enables info level": {
			args:     []string{"--verbose", "version"},
			wantInfo: true,
		},
		"debug flag enables debug level": {
			args:      []string{"--debug", "version"},
			wantInfo:  true,
			wantDebug: true,
		},
		"json format is accepted": {
			args:     []string{"--log-format", "json", "--verbose", "version"},
			wantInfo: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			logging.SetDefault(logging.New(logging.DefaultOptions()))

			_, _, err := runCLI(t, tt.args...)
			require.NoError(t, err)

			logger := slog.Default()
			assert.Equal(t, tt.wantInfo, logger.Enabled(context.Background(), slog.LevelInfo))
			assert.Equal(t, tt.wantDebug, logger.Enabled(context.Background(), slog.LevelDebug))
		})
	}
}

func TestConfigureLoggingFromConfig(t *testing.T) {
	cfg := writeConfig(t, "output:\n  log_level: info\n  log_format: json\n")

	_, _, err := runCLI(t, "--config", cfg, "version")
	require.NoError(t, err)
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))
}

func TestGlobalFlagErrors(t *testing.T) {
	tests := map[string][]string{
		"unknown log format":  {"--log-format", "xml", "version"},
		"unknown color mode":  {"--config", writeConfig(t, "output:\n  color: sometimes\n"), "version"},
		"invalid music field": {"--config", writeConfig(t, "music:\n  format: mp3\n"), "version"},
		"unparsable config":   {"--config", writeConfig(t, "music: [\n"), "version"},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := runCLI(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestDirsCommandDryRun(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	util.WriteTree(t, src, map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": "beta",
		".hidden":   "secret",
	}, stamp)
	util.WriteTree(t, dst, map[string]string{"stale.txt": "old"}, stamp)

	stdout, _, err := runCLI(t, "dirs", src, dst)
	require.NoError(t, err)

	assert.Contains(t, stdout, "add     a.txt")
	assert.Contains(t, stdout, "add     sub/b.txt")
	assert.Contains(t, stdout, "delete  stale.txt")
	assert.Contains(t, stdout, "Dry run")
	assert.NotContains(t, stdout, ".hidden")
	assert.Equal(t, []string{"stale.txt"}, util.ListTree(t, dst), "dry run must not touch the destination")
}

func TestDirsCommandCommit(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	util.WriteTree(t, src, map[string]string{
		"a.txt":       "alpha",
		"sub/b.txt":   "beta",
		"sub/c.tmp":   "scratch",
		"other/z.txt": "zeta",
	}, stamp)
	util.WriteTree(t, dst, map[string]string{"gone/old.txt": "old"}, stamp)

	_, _, err := runCLI(t, "dirs", "--commit", "--exclude", "**/*.tmp", src, dst)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "other/z.txt", "sub/b.txt"}, util.ListTree(t, dst))
	_, err = os.Stat(filepath.Join(dst, "gone"))
	assert.True(t, os.IsNotExist(err), "orphaned directory should be removed")

	data, err := os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))

	stdout, _, err := runCLI(t, "dirs", "--commit", "--exclude", "**/*.tmp", src, dst)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Already up to date")
}

func TestDirsCommandLogfile(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	util.WriteTree(t, src, map[string]string{"a.txt": "alpha"}, stamp)
	logfile := filepath.Join(t.TempDir(), "sync.log")

	_, _, err := runCLI(t, "dirs", "--commit", "--logfile", logfile, src, dst)
	require.NoError(t, err)

	data, err := os.ReadFile(logfile)
	require.NoError(t, err)
	log := string(data)
	assert.Contains(t, log, "START src=")
	assert.Contains(t, log, "a.txt")
	assert.Contains(t, log, "FINISH")
}

// cancelWriter cancels a run the first time anything is printed.
type cancelWriter struct {
	bytes.Buffer
	cancel context.CancelFunc
}

func (w *cancelWriter) Write(p []byte) (int, error) {
	w.cancel()
	return w.Buffer.Write(p)
}

func TestDirsCommandInterrupted(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	util.WriteTree(t, src, map[string]string{
		"a.txt": "alpha",
		"b.txt": "beta",
		"c.txt": "gamma",
		"d.txt": "delta",
	}, stamp)
	logfile := filepath.Join(t.TempDir(), "sync.log")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stdout := &cancelWriter{cancel: cancel}
	var stderr bytes.Buffer

	err := run(ctx, []string{"mirrorsync", "dirs", "--commit", "--workers", "1", "--logfile", logfile, src, dst}, stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync interrupted")
	assert.Contains(t, err.Error(), "3 action(s) not attempted")
	assert.Len(t, util.ListTree(t, dst), 1, "only the action in flight completes")

	data, err := os.ReadFile(logfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ABORT 3 action(s) not attempted")
}

func TestDirsCommandErrors(t *testing.T) {
	src := t.TempDir()
	tests := map[string][]string{
		"no arguments":           {"dirs"},
		"one argument":           {"dirs", src},
		"missing source":         {"dirs", filepath.Join(src, "missing"), t.TempDir()},
		"destination in source":  {"dirs", src, filepath.Join(src, "inner")},
		"review without commit":  {"dirs", "--review", src, t.TempDir()},
		"invalid exclude":        {"dirs", "--exclude", "[", src, t.TempDir()},
		"negative worker budget": {"dirs", "--workers", "-1", src, t.TempDir()},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := runCLI(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestMusicCommandDryRun(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	util.WriteTree(t, src, map[string]string{
		"Album/01 Intro.flac": "lossless",
		"Album/01 Intro.mp3":  "lossy",
		"Album/02 Song?.mp3":  "lossy",
		"Album/cover.jpg":     "image",
	}, stamp)

	stdout, _, err := runCLI(t, "music", "--format", "opus", src, dst)
	require.NoError(t, err, "a dry run must not require the encoders")

	assert.Contains(t, stdout, "add*    Album/01 Intro.flac -> Album/01 Intro.opus")
	assert.Contains(t, stdout, "add     Album/02 Song?.mp3 -> Album/02 Song_.mp3")
	assert.NotContains(t, stdout, "01 Intro.mp3")
	assert.NotContains(t, stdout, "cover.jpg")
	assert.Empty(t, util.ListTree(t, dst))
}

func TestMusicCommandProfile(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	util.WriteTree(t, src, map[string]string{"a.mp3": "mp3"}, stamp)
	cfg := writeConfig(t, "profiles:\n  player:\n    source: "+src+"\n    dest: "+dst+"\n    format: aac\n")

	stdout, _, err := runCLI(t, "--config", cfg, "music", "--profile", "player")
	require.NoError(t, err)
	assert.Contains(t, stdout, "add     a.mp3")
	assert.Contains(t, stdout, "Synced "+src+" -> "+dst)
	assert.Empty(t, util.ListTree(t, dst))
}

func TestMusicCommandErrors(t *testing.T) {
	src := t.TempDir()
	missingTools := writeConfig(t, "music:\n  tools:\n    flac: /nonexistent/flac\n    metaflac: /nonexistent/metaflac\n    opusenc: /nonexistent/opusenc\n")

	tests := map[string][]string{
		"one argument":      {"music", src},
		"no roots":          {"music"},
		"unknown profile":   {"music", "--profile", "nope"},
		"unknown format":    {"music", "--format", "mp3", src, t.TempDir()},
		"negative bitrate":  {"music", "--bitrate", "-5", src, t.TempDir()},
		"missing encoders":  {"--config", missingTools, "music", "--commit", src, t.TempDir()},
		"overlapping roots": {"music", src, src},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := runCLI(t, args...)
			assert.Error(t, err)
		})
	}
}

// fakeToolsConfig writes shell stand-ins for the codec programs and a
// config pointing at them.
func fakeToolsConfig(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools are not supported on windows")
	}
	dir := t.TempDir()
	tools := map[string]string{
		"flac":     `cat "$4"`,
		"metaflac": `printf 'TITLE=Song\n'`,
		"opusenc":  `for a; do out=$a; done; { printf 'OPUS:'; cat; } > "$out"`,
	}
	var b strings.Builder
	b.WriteString("music:\n  tools:\n")
	for name, body := range tools {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
		b.WriteString("    " + name + ": " + p + "\n")
	}
	return writeConfig(t, b.String())
}

func TestMusicCommandCommit(t *testing.T) {
	cfg := fakeToolsConfig(t)
	src, dst := t.TempDir(), t.TempDir()
	util.WriteTree(t, src, map[string]string{
		"Album/track.flac": "pcm",
		"Album/bonus.ogg":  "vorbis",
	}, stamp)

	_, _, err := runCLI(t, "--config", cfg, "music", "--commit", "--workers", "2", src, dst)
	require.NoError(t, err)

	assert.Equal(t, []string{"Album/bonus.ogg", "Album/track.opus"}, util.ListTree(t, dst))
	data, err := os.ReadFile(filepath.Join(dst, "Album", "track.opus"))
	require.NoError(t, err)
	assert.Equal(t, "OPUS:pcm", string(data))
}

func TestTranscodeCommand(t *testing.T) {
	cfg := fakeToolsConfig(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.flac")
	require.NoError(t, os.WriteFile(in, []byte("pcm"), 0o644))
	out := filepath.Join(dir, "nested", "out.opus")

	stdout, _, err := runCLI(t, "--config", cfg, "transcode", in, out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "out.opus")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "OPUS:pcm", string(data))

	_, _, err = runCLI(t, "--config", cfg, "transcode", in)
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	wantPath := filepath.Join(xdg, "mirrorsync", "config.yaml")

	stdout, _, err := runCLI(t, "config", "--path")
	require.NoError(t, err)
	assert.Equal(t, wantPath, strings.TrimSpace(stdout))

	stdout, _, err = runCLI(t, "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "music:")
	assert.Contains(t, stdout, "nokia3310")

	stdout, _, err = runCLI(t, "config", "--toml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[music]")

	_, _, err = runCLI(t, "config", "--init")
	require.NoError(t, err)
	assert.FileExists(t, wantPath)

	_, _, err = runCLI(t, "config", "--init")
	assert.Error(t, err, "init must not overwrite without --force")

	_, _, err = runCLI(t, "config", "--init", "--force")
	assert.NoError(t, err)
}

func TestConfigInitTOML(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	stdout, _, err := runCLI(t, "config", "--init", "--toml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "config.toml")
	assert.FileExists(t, filepath.Join(xdg, "mirrorsync", "config.toml"))
}
