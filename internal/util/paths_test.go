package util

import (
	"path/filepath"
	"testing"
)

func TestHomeDir(t *testing.T) {
	home := HomeDir()
	if home == "" {
		t.Error("HomeDir() returned empty string")
	}

	// Verify it's an absolute path
	if !filepath.IsAbs(home) {
		t.Errorf("HomeDir() returned relative path: %s", home)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("xdg", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
		if got := ConfigDir(); got != filepath.Join("/tmp/xdg", "mirrorsync") {
			t.Errorf("ConfigDir() = %q", got)
		}
	})

	t.Run("home", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		want := filepath.Join(HomeDir(), ".config", "mirrorsync")
		if got := ConfigDir(); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestExpandPath(t *testing.T) {
	home := HomeDir()
	tests := []struct {
		name    string
		path    string
		baseDir string
		want    string
	}{
		{"empty", "", "/base", ""},
		{"tilde", "~/Music", "/base", filepath.Join(home, "Music")},
		{"absolute", "/data/Music", "/base", "/data/Music"},
		{"relative", "music/../Music", "/base", "/base/Music"},
		{"relative without base", "Music", "", "Music"},
		{"other user left alone", "~bob/Music", "", "~bob/Music"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandPath(tt.path, tt.baseDir); got != tt.want {
				t.Errorf("ExpandPath(%q, %q) = %q, want %q", tt.path, tt.baseDir, got, tt.want)
			}
		})
	}
}
