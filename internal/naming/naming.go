// Package naming maps source-relative paths to filesystem-safe destination
// paths. Mapping is a pure function of the input path and the Normalizer
// configuration, so repeated runs always compute the same destination.
package naming

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultInvalidChars are the characters rejected by FAT/exFAT and most
// portable players.
const DefaultInvalidChars = `"*:<>?[]|`

// DefaultReplacement substitutes each invalid character.
const DefaultReplacement = "_"

// Form selects an optional Unicode normalization form for path components.
type Form string

const (
	// FormNone leaves code points untouched.
	FormNone Form = ""
	// FormNFC composes characters (the usual choice for devices fed from macOS).
	FormNFC Form = "nfc"
	// FormNFD decomposes characters.
	FormNFD Form = "nfd"
)

// ParseForm validates a unicode form name.
func ParseForm(s string) (Form, error) {
	switch Form(strings.ToLower(strings.TrimSpace(s))) {
	case FormNone, "none":
		return FormNone, nil
	case FormNFC:
		return FormNFC, nil
	case FormNFD:
		return FormNFD, nil
	default:
		return FormNone, fmt.Errorf("unknown unicode form %q (want nfc, nfd or none)", s)
	}
}

// Normalizer rewrites slash-separated relative paths.
type Normalizer struct {
	// Enabled turns sanitization on. A disabled Normalizer is the identity.
	Enabled bool
	// InvalidChars lists characters replaced by Replacement.
	InvalidChars string
	// Replacement is written in place of every invalid character.
	Replacement string
	// StripTrailingDots removes trailing dots from every component.
	StripTrailingDots bool
	// Form applies Unicode normalization to every component.
	Form Form
}

// Default returns the sanitizing normalizer used for portable devices.
func Default() Normalizer {
	return Normalizer{
		Enabled:           true,
		InvalidChars:      DefaultInvalidChars,
		Replacement:       DefaultReplacement,
		StripTrailingDots: true,
	}
}

// Identity returns a normalizer that leaves every path unchanged.
func Identity() Normalizer {
	return Normalizer{}
}

// Validate reports configuration that would make mapping unstable.
func (n Normalizer) Validate() error {
	if !n.Enabled {
		return nil
	}
	if strings.ContainsAny(n.Replacement, n.InvalidChars) {
		return fmt.Errorf("replacement %q contains an invalid character", n.Replacement)
	}
	if strings.Contains(n.Replacement, "/") {
		return fmt.Errorf("replacement %q must not contain a path separator", n.Replacement)
	}
	return nil
}

// Normalize maps rel to its destination form.
func (n Normalizer) Normalize(rel string) string {
	if !n.Enabled || rel == "" {
		return rel
	}
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		parts[i] = n.component(part)
	}
	return strings.Join(parts, "/")
}

func (n Normalizer) component(part string) string {
	switch n.Form {
	case FormNFC:
		part = norm.NFC.String(part)
	case FormNFD:
		part = norm.NFD.String(part)
	}
	if n.StripTrailingDots && part != "" {
		if part = strings.TrimRight(part, "."); part == "" {
			part = n.Replacement
		}
	}
	if n.InvalidChars == "" {
		return part
	}

	var b strings.Builder
	b.Grow(len(part))
	for _, r := range part {
		if strings.ContainsRune(n.InvalidChars, r) {
			b.WriteString(n.Replacement)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ReplaceExt swaps the extension of rel for ext (given without a dot).
func ReplaceExt(rel, ext string) string {
	cur := path.Ext(rel)
	return strings.TrimSuffix(rel, cur) + "." + ext
}
