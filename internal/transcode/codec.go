package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const encoderWaitDelay = 5 * time.Second

// Format selects the encoder.
type Format int

const (
	// FormatOpus encodes with opusenc.
	FormatOpus Format = iota
	// FormatVorbis encodes with oggenc.
	FormatVorbis
	// FormatAAC encodes with fdkaac.
	FormatAAC
)

// Formats lists every supported format.
var Formats = []Format{FormatOpus, FormatVorbis, FormatAAC}

// String returns the format name used on the command line.
func (f Format) String() string {
	switch f {
	case FormatOpus:
		return "opus"
	case FormatVorbis:
		return "vorbis"
	case FormatAAC:
		return "aac"
	default:
		return "unknown"
	}
}

// Extension returns the file extension written for the format.
func (f Format) Extension() string {
	switch f {
	case FormatOpus:
		return "opus"
	case FormatVorbis:
		return "ogg"
	case FormatAAC:
		return "aac"
	default:
		return ""
	}
}

// DefaultBitrate is the kbps passed to the encoder when none is configured;
// zero leaves the encoder's own default in place.
func (f Format) DefaultBitrate() int {
	if f == FormatAAC {
		return 128
	}
	return 0
}

// ParseFormat maps a name or extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "opus":
		return FormatOpus, nil
	case "vorbis", "ogg":
		return FormatVorbis, nil
	case "aac", "m4a":
		return FormatAAC, nil
	default:
		return 0, fmt.Errorf("unknown format %q (want opus, vorbis or aac)", s)
	}
}

// Tools names the external programs. Values may be bare names resolved via
// PATH or absolute paths.
type Tools struct {
	Flac     string `yaml:"flac" toml:"flac"`
	Metaflac string `yaml:"metaflac" toml:"metaflac"`
	Opusenc  string `yaml:"opusenc" toml:"opusenc"`
	Oggenc   string `yaml:"oggenc" toml:"oggenc"`
	Fdkaac   string `yaml:"fdkaac" toml:"fdkaac"`
}

// DefaultTools returns the stock program names.
func DefaultTools() Tools {
	return Tools{
		Flac:     "flac",
		Metaflac: "metaflac",
		Opusenc:  "opusenc",
		Oggenc:   "oggenc",
		Fdkaac:   "fdkaac",
	}
}

// encoder returns the program for f.
func (t Tools) encoder(f Format) string {
	switch f {
	case FormatVorbis:
		return t.Oggenc
	case FormatAAC:
		return t.Fdkaac
	default:
		return t.Opusenc
	}
}

// Required lists the programs a format needs, for preflight checks.
func (t Tools) Required(f Format) []string {
	return []string{t.Flac, t.Metaflac, t.encoder(f)}
}

// Check verifies that every program f needs can be found.
func (t Tools) Check(f Format) error {
	for _, prog := range t.Required(f) {
		if _, err := exec.LookPath(prog); err != nil {
			return fmt.Errorf("%s encoder needs %q: %w", f, prog, err)
		}
	}
	return nil
}

// Codec is the flac-sourced Transcoder for one target format.
type Codec struct {
	format  Format
	tools   Tools
	bitrate int
}

var _ Transcoder = (*Codec)(nil)

// New returns the Transcoder for format. A bitrate of zero selects the
// format default.
func New(format Format, tools Tools, bitrate int) (*Codec, error) {
	if format.Extension() == "" {
		return nil, fmt.Errorf("unsupported format %d", format)
	}
	if bitrate < 0 {
		return nil, fmt.Errorf("bitrate must not be negative (got %d)", bitrate)
	}
	if bitrate == 0 {
		bitrate = format.DefaultBitrate()
	}
	return &Codec{format: format, tools: tools, bitrate: bitrate}, nil
}

// Format returns the codec's target format.
func (c *Codec) Format() Format { return c.format }

// Extension implements Transcoder.
func (c *Codec) Extension() string { return c.format.Extension() }

// ExtractTags implements Transcoder.
func (c *Codec) ExtractTags(ctx context.Context, src string) ([]Tag, error) {
	var stdout, stderr bytes.Buffer
	// #nosec G204 - program names come from configuration
	cmd := exec.CommandContext(ctx, c.tools.Metaflac, "--export-tags-to=-", src)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, runErr(StageTags, src, err, &stderr)
	}
	return ParseTags(&stdout)
}

// Decode implements Transcoder.
func (c *Codec) Decode(ctx context.Context, src string) (*Stream, error) {
	var stderr bytes.Buffer
	// #nosec G204 - program names come from configuration
	cmd := exec.CommandContext(ctx, c.tools.Flac, "--decode", "--stdout", "--silent", src)
	cmd.Stderr = &stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, runErr(StageDecode, src, err, nil)
	}
	if err := cmd.Start(); err != nil {
		return nil, runErr(StageDecode, src, err, &stderr)
	}
	return NewStream(out, func() error {
		return runErr(StageDecode, src, cmd.Wait(), &stderr)
	}), nil
}

// Encode implements Transcoder.
func (c *Codec) Encode(ctx context.Context, in io.Reader, tags []Tag, dst string) error {
	var stderr bytes.Buffer
	// #nosec G204 - program names come from configuration
	cmd := exec.CommandContext(ctx, c.tools.encoder(c.format), c.encodeArgs(tags, dst)...)
	cmd.Stdin = in
	cmd.Stderr = &stderr
	// An encoder that exits without draining stdin must not leave Run
	// waiting on the copy from a stalled decoder.
	cmd.WaitDelay = encoderWaitDelay
	return runErr(StageEncode, dst, cmd.Run(), &stderr)
}

// encodeArgs builds the encoder command line. Every encoder reads WAV from
// stdin ("-").
func (c *Codec) encodeArgs(tags []Tag, dst string) []string {
	var args []string
	switch c.format {
	case FormatOpus:
		args = append(args, "--quiet")
		for _, t := range tags {
			args = append(args, "--comment", t.Key+"="+t.Value)
		}
		if c.bitrate > 0 {
			args = append(args, "--bitrate", strconv.Itoa(c.bitrate))
		}
		args = append(args, "-", dst)

	case FormatVorbis:
		args = append(args, "--quiet")
		for _, t := range tags {
			args = append(args, "-c", t.Key+"="+t.Value)
		}
		if c.bitrate > 0 {
			args = append(args, "-b", strconv.Itoa(c.bitrate))
		}
		args = append(args, "-o", dst, "-")

	case FormatAAC:
		// fdkaac takes a fixed set of fields; absent tags become "".
		args = append(args,
			"--title", Lookup(tags, "TITLE"),
			"--artist", Lookup(tags, "ARTIST"),
			"--album", Lookup(tags, "ALBUM"),
			"--track", Lookup(tags, "TRACKNUMBER"),
			"--disk", Lookup(tags, "DISCNUMBER"),
			"--genre", Lookup(tags, "GENRE"),
			"--date", Lookup(tags, "DATE"),
		)
		if c.bitrate > 0 {
			args = append(args, "--bitrate", strconv.Itoa(c.bitrate))
		}
		args = append(args, "-o", dst, "-")
	}
	return args
}
