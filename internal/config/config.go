// Package config provides configuration management for mirrorsync.
// It supports YAML or TOML configuration files, environment variables, and
// sensible defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/klauern/mirrorsync/internal/catalog"
	"github.com/klauern/mirrorsync/internal/naming"
	"github.com/klauern/mirrorsync/internal/staleness"
	"github.com/klauern/mirrorsync/internal/sync"
	"github.com/klauern/mirrorsync/internal/transcode"
	"github.com/klauern/mirrorsync/internal/util"
	"github.com/klauern/mirrorsync/internal/validation"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "MIRRORSYNC_"

// Config represents the complete mirrorsync configuration.
type Config struct {
	// Mirror configures the generic directory mirror
	Mirror MirrorConfig `yaml:"mirror" toml:"mirror"`

	// Music configures the music library sync
	Music MusicConfig `yaml:"music" toml:"music"`

	// Staleness holds the change detection constants
	Staleness StalenessConfig `yaml:"staleness" toml:"staleness"`

	// Naming configures destination name sanitization
	Naming NamingConfig `yaml:"naming" toml:"naming"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output" toml:"output"`

	// Profiles are named music sync presets
	Profiles map[string]Profile `yaml:"profiles,omitempty" toml:"profiles,omitempty"`
}

// MirrorConfig holds settings for `mirrorsync dirs`.
type MirrorConfig struct {
	// HiddenPrefix excludes entries whose name starts with it
	HiddenPrefix string `yaml:"hidden_prefix" toml:"hidden_prefix"`
	// Exclude holds glob patterns (doublestar syntax) skipped in both trees
	Exclude []string `yaml:"exclude,omitempty" toml:"exclude,omitempty"`
	// PruneDirs removes destination directories missing from the source
	PruneDirs bool `yaml:"prune_dirs" toml:"prune_dirs"`
	// DirTimes copies directory modification times
	DirTimes bool `yaml:"dir_times" toml:"dir_times"`
	// Sanitize applies the naming rules to destination paths
	Sanitize bool `yaml:"sanitize" toml:"sanitize"`
	// Workers bounds concurrent copies (0 = one per CPU)
	Workers int `yaml:"workers" toml:"workers"`
}

// MusicConfig holds settings for `mirrorsync music`.
type MusicConfig struct {
	// Source and Dest are the default roots when none are given
	Source string `yaml:"source,omitempty" toml:"source,omitempty"`
	Dest   string `yaml:"dest,omitempty" toml:"dest,omitempty"`
	// Extensions lists music extensions, most preferred first
	Extensions []string `yaml:"extensions" toml:"extensions"`
	// Transformable lists extensions handed to the encoder
	Transformable []string `yaml:"transformable" toml:"transformable"`
	// Format is the encoder output (opus, vorbis, aac)
	Format string `yaml:"format" toml:"format"`
	// Bitrate in kbit/s; 0 uses the encoder default
	Bitrate int `yaml:"bitrate" toml:"bitrate"`
	// Workers bounds concurrent encodes (0 = one per CPU)
	Workers int `yaml:"workers" toml:"workers"`
	// Tools names the external programs
	Tools transcode.Tools `yaml:"tools" toml:"tools"`
}

// StalenessConfig holds the change detection constants.
type StalenessConfig struct {
	// Tolerance absorbs filesystem timestamp rounding
	Tolerance time.Duration `yaml:"tolerance" toml:"tolerance"`
	// DSTLow and DSTHigh bound the tolerated daylight-saving shift
	DSTLow  time.Duration `yaml:"dst_low" toml:"dst_low"`
	DSTHigh time.Duration `yaml:"dst_high" toml:"dst_high"`
	// Slack is the newer-than margin for transcoded outputs
	Slack time.Duration `yaml:"slack" toml:"slack"`
	// CompareSize makes a size mismatch stale in the mirror policy
	CompareSize bool `yaml:"compare_size" toml:"compare_size"`
}

// NamingConfig holds sanitization rules.
type NamingConfig struct {
	// InvalidChars are replaced in every path component
	InvalidChars string `yaml:"invalid_chars" toml:"invalid_chars"`
	// Replacement is written for each invalid character
	Replacement string `yaml:"replacement" toml:"replacement"`
	// StripTrailingDots removes trailing dots from components
	StripTrailingDots bool `yaml:"strip_trailing_dots" toml:"strip_trailing_dots"`
	// UnicodeForm is none, nfc or nfd
	UnicodeForm string `yaml:"unicode_form,omitempty" toml:"unicode_form,omitempty"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Color controls color output (auto, always, never)
	Color string `yaml:"color" toml:"color"`
	// LogFormat is text or json
	LogFormat string `yaml:"log_format" toml:"log_format"`
	// LogLevel is debug, info, warn or error
	LogLevel string `yaml:"log_level" toml:"log_level"`
	// AuditLog is appended to on every committed run when set
	AuditLog string `yaml:"audit_log,omitempty" toml:"audit_log,omitempty"`
}

// Profile is a named music sync preset. Empty fields fall back to the
// music section.
type Profile struct {
	Source   string `yaml:"source" toml:"source"`
	Dest     string `yaml:"dest" toml:"dest"`
	Format   string `yaml:"format,omitempty" toml:"format,omitempty"`
	Bitrate  int    `yaml:"bitrate,omitempty" toml:"bitrate,omitempty"`
	AuditLog string `yaml:"audit_log,omitempty" toml:"audit_log,omitempty"`
}

// Valid option values.
var (
	ColorModes = []string{"auto", "always", "never"}
	LogFormats = []string{"text", "json"}
)

// Default returns the default configuration.
func Default() *Config {
	mirror := staleness.DefaultMirrorPolicy()
	newer := staleness.DefaultNewerPolicy()
	return &Config{
		Mirror: MirrorConfig{
			HiddenPrefix: catalog.DefaultHiddenPrefix,
			PruneDirs:    true,
			DirTimes:     true,
		},
		Music: MusicConfig{
			Extensions:    slices.Clone(sync.DefaultMusicExtensions),
			Transformable: slices.Clone(sync.DefaultTransformable),
			Format:        transcode.FormatOpus.String(),
			Tools:         transcode.DefaultTools(),
		},
		Staleness: StalenessConfig{
			Tolerance:   mirror.Tolerance,
			DSTLow:      mirror.DSTLow,
			DSTHigh:     mirror.DSTHigh,
			Slack:       newer.Slack,
			CompareSize: mirror.CompareSize,
		},
		Naming: NamingConfig{
			InvalidChars:      naming.DefaultInvalidChars,
			Replacement:       naming.DefaultReplacement,
			StripTrailingDots: true,
		},
		Output: OutputConfig{
			Color:     "auto",
			LogFormat: "text",
			LogLevel:  "warn",
		},
		Profiles: map[string]Profile{
			// Small feature phones only play AAC.
			"nokia3310": {
				Source:  "~/Music",
				Dest:    "/run/media/NOKIA3310/Music",
				Format:  transcode.FormatAAC.String(),
				Bitrate: 128,
			},
		},
	}
}

// File names tried in the config directory, in order.
var configFileNames = []string{"config.yaml", "config.yml", "config.toml"}

// FilePath returns the path to the config file. When several exist the
// first of config.yaml, config.yml, config.toml wins; when none exist the
// YAML path is returned.
func FilePath() string {
	dir := util.ConfigDir()
	for _, name := range configFileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, configFileNames[0])
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	return LoadOrDefault(FilePath())
}

// LoadOrDefault is LoadFromPath, except that a missing file yields the
// defaults with environment overrides.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadFromPath(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file, use defaults with environment overrides
			cfg = Default()
			cfg.applyEnvironment()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path. Files ending in
// .toml are parsed as TOML, everything else as YAML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path, in TOML when the
// path ends in .toml.
func (c *Config) SaveToPath(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := c.Encode(isTOML(path))
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(path, data, 0o644)
}

// Encode renders the configuration as YAML, or TOML when asTOML is set.
func (c *Config) Encode(asTOML bool) ([]byte, error) {
	if !asTOML {
		return yaml.Marshal(c)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern MIRRORSYNC_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	// Mirror settings
	if v := getenv("MIRROR_HIDDEN_PREFIX"); v != "" {
		c.Mirror.HiddenPrefix = v
	}
	if v := getenv("MIRROR_EXCLUDE"); v != "" {
		c.Mirror.Exclude = splitList(v)
	}
	if v := getenv("MIRROR_PRUNE_DIRS"); v != "" {
		c.Mirror.PruneDirs = parseBool(v)
	}
	if v := getenv("MIRROR_SANITIZE"); v != "" {
		c.Mirror.Sanitize = parseBool(v)
	}
	if v := getenv("MIRROR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Mirror.Workers = n
		}
	}

	// Music settings
	if v := getenv("MUSIC_SOURCE"); v != "" {
		c.Music.Source = v
	}
	if v := getenv("MUSIC_DEST"); v != "" {
		c.Music.Dest = v
	}
	if v := getenv("MUSIC_FORMAT"); v != "" {
		c.Music.Format = v
	}
	if v := getenv("MUSIC_BITRATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Music.Bitrate = n
		}
	}
	if v := getenv("MUSIC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Music.Workers = n
		}
	}
	if v := getenv("MUSIC_EXTENSIONS"); v != "" {
		c.Music.Extensions = splitList(v)
	}

	// Staleness settings
	if v := getenv("STALENESS_TOLERANCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Staleness.Tolerance = d
		}
	}
	if v := getenv("STALENESS_SLACK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Staleness.Slack = d
		}
	}

	// Naming settings
	if v := getenv("NAMING_REPLACEMENT"); v != "" {
		c.Naming.Replacement = v
	}
	if v := getenv("NAMING_UNICODE_FORM"); v != "" {
		c.Naming.UnicodeForm = v
	}

	// Output settings
	if v := getenv("OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
	if v := getenv("OUTPUT_LOG_FORMAT"); v != "" {
		c.Output.LogFormat = v
	}
	if v := getenv("OUTPUT_LOG_LEVEL"); v != "" {
		c.Output.LogLevel = v
	}
	if v := getenv("OUTPUT_AUDIT_LOG"); v != "" {
		c.Output.AuditLog = v
	}
}

func getenv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitList splits a comma-separated list. Empty segments are filtered out.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Validate checks enumerated values and the staleness bands.
func (c *Config) Validate() error {
	result := &validation.Result{Valid: true}

	if _, err := transcode.ParseFormat(c.Music.Format); err != nil {
		result.AddError(&validation.Error{Field: "music.format", Message: "invalid format", Err: err})
	}
	if c.Music.Bitrate < 0 {
		result.AddError(&validation.Error{Field: "music.bitrate", Message: "must not be negative"})
	}
	if len(c.Music.Extensions) == 0 {
		result.AddError(&validation.Error{Field: "music.extensions", Message: "at least one extension is required"})
	}
	if _, err := staleness.Parse(staleness.NameMirror, c.StalenessSettings()); err != nil {
		result.AddError(&validation.Error{Field: "staleness", Message: "invalid mirror policy", Err: err})
	}
	if _, err := staleness.Parse(staleness.NameNewer, c.StalenessSettings()); err != nil {
		result.AddError(&validation.Error{Field: "staleness", Message: "invalid newer policy", Err: err})
	}
	if _, err := c.Normalizer(true); err != nil {
		result.AddError(&validation.Error{Field: "naming", Message: "invalid naming rules", Err: err})
	}
	if err := catalog.ValidatePatterns(c.Mirror.Exclude); err != nil {
		result.AddError(&validation.Error{Field: "mirror.exclude", Message: "invalid pattern", Err: err})
	}
	if !slices.Contains(ColorModes, c.Output.Color) {
		result.AddError(&validation.Error{
			Field:   "output.color",
			Message: fmt.Sprintf("must be one of %s (got %q)", strings.Join(ColorModes, ", "), c.Output.Color),
		})
	}
	if !slices.Contains(LogFormats, c.Output.LogFormat) {
		result.AddError(&validation.Error{
			Field:   "output.log_format",
			Message: fmt.Sprintf("must be one of %s (got %q)", strings.Join(LogFormats, ", "), c.Output.LogFormat),
		})
	}
	for _, name := range c.ProfileNames() {
		p := c.Profiles[name]
		if p.Format == "" {
			continue
		}
		if _, err := transcode.ParseFormat(p.Format); err != nil {
			result.AddError(&validation.Error{Field: "profiles." + name + ".format", Message: "invalid format", Err: err})
		}
	}

	return result.Error()
}

// StalenessSettings converts the staleness section.
func (c *Config) StalenessSettings() staleness.Settings {
	return staleness.Settings{
		Mirror: staleness.MirrorPolicy{
			Tolerance:   c.Staleness.Tolerance,
			DSTLow:      c.Staleness.DSTLow,
			DSTHigh:     c.Staleness.DSTHigh,
			CompareSize: c.Staleness.CompareSize,
		},
		Newer: staleness.NewerPolicy{Slack: c.Staleness.Slack},
	}
}

// Normalizer builds the naming rules. enabled is false for an identity
// mapping.
func (c *Config) Normalizer(enabled bool) (naming.Normalizer, error) {
	if !enabled {
		return naming.Identity(), nil
	}
	form, err := naming.ParseForm(c.Naming.UnicodeForm)
	if err != nil {
		return naming.Normalizer{}, err
	}
	n := naming.Normalizer{
		Enabled:           true,
		InvalidChars:      c.Naming.InvalidChars,
		Replacement:       c.Naming.Replacement,
		StripTrailingDots: c.Naming.StripTrailingDots,
		Form:              form,
	}
	return n, n.Validate()
}

// MirrorOptions builds the options for the generic directory mirror.
// extraExclude is appended to the configured patterns.
func (c *Config) MirrorOptions(source, dest string, extraExclude []string) (sync.Options, error) {
	opts := sync.DefaultOptions()
	opts.SourceRoot = util.ExpandPath(source, "")
	opts.DestRoot = util.ExpandPath(dest, "")
	opts.Workers = c.Mirror.Workers
	opts.PruneDirs = c.Mirror.PruneDirs
	opts.DirTimes = c.Mirror.DirTimes
	opts.Catalog.HiddenPrefix = c.Mirror.HiddenPrefix
	opts.Catalog.Exclude = append(slices.Clone(c.Mirror.Exclude), extraExclude...)

	detector, err := staleness.Parse(staleness.NameMirror, c.StalenessSettings())
	if err != nil {
		return sync.Options{}, err
	}
	opts.Detector = detector

	if opts.Normalizer, err = c.Normalizer(c.Mirror.Sanitize); err != nil {
		return sync.Options{}, err
	}
	return opts, nil
}

// MusicOptions builds the options for a music sync. t may be nil for a
// copy-only run.
func (c *Config) MusicOptions(source, dest string, t transcode.Transcoder) (sync.Options, error) {
	opts := sync.MusicOptions(t)
	opts.SourceRoot = util.ExpandPath(source, "")
	opts.DestRoot = util.ExpandPath(dest, "")
	opts.Workers = c.Music.Workers
	opts.Include = slices.Clone(c.Music.Extensions)
	opts.Priority = slices.Clone(c.Music.Extensions)
	opts.Transformable = slices.Clone(c.Music.Transformable)
	opts.Catalog.HiddenPrefix = c.Mirror.HiddenPrefix

	detector, err := staleness.Parse(staleness.NameNewer, c.StalenessSettings())
	if err != nil {
		return sync.Options{}, err
	}
	opts.Detector = detector

	if opts.Normalizer, err = c.Normalizer(true); err != nil {
		return sync.Options{}, err
	}
	return opts, nil
}

// Profile returns the named preset with empty fields filled from the music
// section.
func (c *Config) Profile(name string) (Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(c.ProfileNames(), ", "))
	}
	if p.Source == "" {
		p.Source = c.Music.Source
	}
	if p.Dest == "" {
		p.Dest = c.Music.Dest
	}
	if p.Format == "" {
		p.Format = c.Music.Format
	}
	if p.Bitrate == 0 {
		p.Bitrate = c.Music.Bitrate
	}
	if p.AuditLog == "" {
		p.AuditLog = c.Output.AuditLog
	}
	return p, nil
}

// ProfileNames returns the configured profile names, sorted.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exists returns true if a config file exists.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}
