// Package e2e provides testing infrastructure for end-to-end CLI tests.
// It includes a harness that runs CLI commands in-process, fixtures for
// source and destination trees, and assertions over output and trees.
package e2e

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauern/mirrorsync/internal/cli"
	"github.com/klauern/mirrorsync/internal/util"
)

// Result contains the outcome of running a CLI command.
type Result struct {
	// Stdout contains the captured standard output.
	Stdout string
	// Stderr contains the captured standard error (logs and progress).
	Stderr string
	// Err is the error returned by the CLI command, if any.
	Err error
	// ExitCode is the inferred exit code (0 for success, 1 for error).
	ExitCode int
}

// Success returns true if the command completed without error.
func (r *Result) Success() bool {
	return r.Err == nil
}

// Harness provides a test harness for running E2E CLI tests.
// It manages environment isolation, temp directories, and output capture.
type Harness struct {
	t       *testing.T
	homeDir string
	env     map[string]string
}

// NewHarness creates a new E2E test harness with an isolated HOME and
// config directory.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	homeDir := t.TempDir()

	h := &Harness{
		t:       t,
		homeDir: homeDir,
		env:     make(map[string]string),
	}

	h.SetEnv("HOME", homeDir)
	h.SetEnv("XDG_CONFIG_HOME", filepath.Join(homeDir, ".config"))
	h.SetEnv("NO_COLOR", "1")

	return h
}

// SetEnv sets an environment variable for CLI commands run through this harness.
// The environment will be restored after the test completes.
func (h *Harness) SetEnv(key, value string) {
	h.t.Helper()
	h.env[key] = value
	h.t.Setenv(key, value)
}

// HomeDir returns the isolated home directory for this test harness.
func (h *Harness) HomeDir() string {
	return h.homeDir
}

// ConfigPath returns the default config file location inside the harness.
func (h *Harness) ConfigPath() string {
	return filepath.Join(h.env["XDG_CONFIG_HOME"], util.AppName, "config.yaml")
}

// WriteConfig writes content to the default config file.
func (h *Harness) WriteConfig(content string) string {
	h.t.Helper()
	p := h.ConfigPath()
	util.WriteFile(h.t, p, content)
	return p
}

// Run executes a CLI command with the given arguments and captures the output.
func (h *Harness) Run(args ...string) *Result {
	h.t.Helper()

	// Prepend "mirrorsync" as the program name if not provided
	if len(args) == 0 || args[0] != util.AppName {
		args = append([]string{util.AppName}, args...)
	}

	stdout := h.capture(&os.Stdout)
	stderr := h.capture(&os.Stderr)

	cmdErr := cli.Run(context.Background(), args)

	// Restore stderr first so late failures are still reported.
	errOut := stderr()
	out := stdout()

	exitCode := 0
	if cmdErr != nil {
		exitCode = 1
	}

	return &Result{
		Stdout:   out,
		Stderr:   errOut,
		Err:      cmdErr,
		ExitCode: exitCode,
	}
}

// capture redirects *target into a pipe and returns a function that
// restores it and yields everything written. The pipe is drained
// concurrently so large outputs cannot block the command.
func (h *Harness) capture(target **os.File) func() string {
	h.t.Helper()

	old := *target
	r, w, err := os.Pipe()
	if err != nil {
		h.t.Fatalf("failed to create pipe: %v", err)
	}
	*target = w

	var buf bytes.Buffer
	var copyErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, copyErr = io.Copy(&buf, r)
	}()

	return func() string {
		if err := w.Close(); err != nil {
			h.t.Fatalf("failed to close pipe writer: %v", err)
		}
		*target = old
		<-done
		_ = r.Close()
		if copyErr != nil {
			h.t.Fatalf("failed to read captured output: %v", copyErr)
		}
		return buf.String()
	}
}
