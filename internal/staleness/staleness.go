// Package staleness decides, from size and modification time only, whether a
// destination file must be rewritten from its source.
package staleness

import (
	"fmt"
	"strings"
	"time"
)

// Meta is the cheap metadata of one side of a comparison.
type Meta struct {
	Exists  bool
	Size    int64
	ModTime time.Time
}

// Detector reports whether dst is out of date relative to src.
type Detector interface {
	IsStale(src, dst Meta) bool
	Name() string
}

// Policy names accepted by Parse.
const (
	NameMirror = "mirror"
	NameNewer  = "newer"
)

// MirrorPolicy is the rule for byte-identical mirrors. Small differences are
// filesystem timestamp rounding; a difference of about one hour is an
// unadjusted daylight-saving shift. Both are tolerated.
type MirrorPolicy struct {
	Tolerance   time.Duration
	DSTLow      time.Duration
	DSTHigh     time.Duration
	CompareSize bool
}

// DefaultMirrorPolicy returns the 2s / 3599s..3601s band with size checks.
func DefaultMirrorPolicy() MirrorPolicy {
	return MirrorPolicy{
		Tolerance:   2 * time.Second,
		DSTLow:      3599 * time.Second,
		DSTHigh:     3601 * time.Second,
		CompareSize: true,
	}
}

// Name implements Detector.
func (MirrorPolicy) Name() string { return NameMirror }

// Validate checks that the bands are ordered.
func (p MirrorPolicy) Validate() error {
	if p.Tolerance < 0 || p.DSTLow < p.Tolerance || p.DSTHigh < p.DSTLow {
		return fmt.Errorf("mirror policy bands must satisfy 0 <= tolerance <= dst_low <= dst_high (got %s, %s, %s)",
			p.Tolerance, p.DSTLow, p.DSTHigh)
	}
	return nil
}

// IsStale implements Detector.
func (p MirrorPolicy) IsStale(src, dst Meta) bool {
	if !dst.Exists {
		return true
	}
	if p.CompareSize && src.Size != dst.Size {
		return true
	}
	diff := src.ModTime.Sub(dst.ModTime)
	if diff < 0 {
		diff = -diff
	}
	return (diff > p.Tolerance && diff < p.DSTLow) || diff > p.DSTHigh
}

// NewerPolicy is the rule for transformed outputs, whose size never matches
// the source: the destination is stale when the source is newer by more than
// Slack.
type NewerPolicy struct {
	Slack time.Duration
}

// DefaultNewerPolicy returns a one second slack.
func DefaultNewerPolicy() NewerPolicy {
	return NewerPolicy{Slack: time.Second}
}

// Name implements Detector.
func (NewerPolicy) Name() string { return NameNewer }

// IsStale implements Detector.
func (p NewerPolicy) IsStale(src, dst Meta) bool {
	if !dst.Exists {
		return true
	}
	return src.ModTime.Sub(dst.ModTime) > p.Slack
}

// Settings carries the tunables of both policies.
type Settings struct {
	Mirror MirrorPolicy
	Newer  NewerPolicy
}

// DefaultSettings returns the default tunables.
func DefaultSettings() Settings {
	return Settings{Mirror: DefaultMirrorPolicy(), Newer: DefaultNewerPolicy()}
}

// Parse returns the named policy configured from s.
func Parse(name string, s Settings) (Detector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameMirror:
		if err := s.Mirror.Validate(); err != nil {
			return nil, err
		}
		return s.Mirror, nil
	case NameNewer:
		if s.Newer.Slack < 0 {
			return nil, fmt.Errorf("newer policy slack must not be negative (got %s)", s.Newer.Slack)
		}
		return s.Newer, nil
	default:
		return nil, fmt.Errorf("unknown staleness policy %q (want %s or %s)", name, NameMirror, NameNewer)
	}
}
