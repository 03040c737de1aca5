// Package transcode converts lossless audio into a lossy derivative by
// driving external command-line tools: a decoder, a tag exporter and one of
// a closed set of encoders.
package transcode

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Tag is one descriptive metadata entry. Keys are upper-case; duplicates
// are kept in source order.
type Tag struct {
	Key   string
	Value string
}

// Transcoder is the capability the sync engine needs from an encoder chain.
type Transcoder interface {
	// Decode starts decoding src and returns its PCM stream.
	Decode(ctx context.Context, src string) (*Stream, error)
	// ExtractTags reads the descriptive tags of src.
	ExtractTags(ctx context.Context, src string) ([]Tag, error)
	// Encode consumes in and writes the encoded file to dst.
	Encode(ctx context.Context, in io.Reader, tags []Tag, dst string) error
	// Extension is the target file extension without a dot.
	Extension() string
}

// Stage names used in Error.
const (
	StageTags   = "tags"
	StageDecode = "decode"
	StageEncode = "encode"
)

// Error reports a failed external process.
type Error struct {
	Stage    string
	Path     string
	ExitCode int
	// Stderr is kept for logging only.
	Stderr string
	Err    error
}

// Error implements error.
func (e *Error) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s %q: exit status %d", e.Stage, e.Path, e.ExitCode)
	}
	return fmt.Sprintf("%s %q: %v", e.Stage, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Stream is a running decoder's output.
type Stream struct {
	io.ReadCloser
	wait func() error
}

// NewStream wraps a reader and the function that reaps its producer.
func NewStream(r io.ReadCloser, wait func() error) *Stream {
	return &Stream{ReadCloser: r, wait: wait}
}

// Wait blocks until the producer exits and reports its failure, if any.
// Close must be called first when the stream was not read to EOF.
func (s *Stream) Wait() error {
	if s.wait == nil {
		return nil
	}
	return s.wait()
}

// Transcode runs the full chain for one file: tags, decode, encode.
// The caller owns cleanup of dst on error.
func Transcode(ctx context.Context, t Transcoder, src, dst string) error {
	tags, err := t.ExtractTags(ctx, src)
	if err != nil {
		return err
	}

	stream, err := t.Decode(ctx, src)
	if err != nil {
		return err
	}

	encErr := t.Encode(ctx, stream, tags, dst)
	// Unblocks a decoder still writing into a pipe the encoder abandoned.
	_ = stream.Close()
	decErr := stream.Wait()

	if encErr != nil {
		return encErr
	}
	return decErr
}

// ParseTags parses "KEY=VALUE" lines as written by metaflac
// --export-tags-to=-. Lines without '=' are ignored.
func ParseTags(r io.Reader) ([]Tag, error) {
	var tags []Tag
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		tags = append(tags, Tag{Key: strings.ToUpper(key), Value: value})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}
	return tags, nil
}

// Lookup returns the last value of key, or "" when absent.
func Lookup(tags []Tag, key string) string {
	value := ""
	for _, t := range tags {
		if t.Key == key {
			value = t.Value
		}
	}
	return value
}

// runErr converts an exec failure into an *Error.
func runErr(stage, path string, err error, stderr *bytes.Buffer) error {
	if err == nil {
		return nil
	}
	e := &Error{Stage: stage, Path: path, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		e.ExitCode = exitErr.ExitCode()
	}
	if stderr != nil {
		e.Stderr = strings.TrimSpace(stderr.String())
	}
	return e
}
