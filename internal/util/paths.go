package util

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// AppName is used for the config directory name.
const AppName = "mirrorsync"

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := homedir.Dir()
	return home
}

// ConfigDir returns the mirrorsync config directory, honoring
// XDG_CONFIG_HOME when it is set.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	return filepath.Join(HomeDir(), ".config", AppName)
}

// ExpandPath expands a leading ~ and resolves relative paths against
// baseDir. An empty baseDir leaves relative paths untouched. Empty input
// stays empty.
func ExpandPath(p, baseDir string) string {
	if p == "" {
		return ""
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		// ~user forms are not supported; keep the path as written.
		expanded = p
	}
	if !filepath.IsAbs(expanded) && baseDir != "" {
		expanded = filepath.Join(baseDir, expanded)
	}
	return filepath.Clean(expanded)
}
