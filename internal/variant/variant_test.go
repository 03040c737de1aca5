package variant

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var musicPriority = []string{"flac", "m4a", "aac", "opus", "ogg", "mp3"}

func TestSplitExt(t *testing.T) {
	tests := []struct {
		in, base, ext string
	}{
		{"a/track.FLAC", "a/track", "flac"},
		{"a/track", "a/track", ""},
		{".hidden", ".hidden", ""},
		{"dir/.hidden", "dir/.hidden", ""},
		{"a.b/c.tar.gz", "a.b/c.tar", "gz"},
	}
	for _, tt := range tests {
		base, ext := SplitExt(tt.in)
		if base != tt.base || ext != tt.ext {
			t.Errorf("SplitExt(%q) = (%q, %q), want (%q, %q)", tt.in, base, ext, tt.base, tt.ext)
		}
	}
}

func TestFilter(t *testing.T) {
	paths := []string{"a.mp3", "b.FLAC", "c.jpg", "d", "e.ogg"}

	got := Filter(paths, []string{"mp3", ".flac", " OGG "})
	if diff := cmp.Diff([]string{"a.mp3", "b.FLAC", "e.ogg"}, got); diff != "" {
		t.Errorf("Filter() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(paths, Filter(paths, nil)); diff != "" {
		t.Errorf("Filter(nil) mismatch (-want +got):\n%s", diff)
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		paths    []string
		priority []string
		want     Selection
	}{
		{
			name:     "lossless wins",
			paths:    []string{"a/t.mp3", "a/t.flac", "a/t.ogg"},
			priority: musicPriority,
			want: Selection{
				Paths:   []string{"a/t.flac"},
				Dropped: []string{"a/t.mp3", "a/t.ogg"},
			},
		},
		{
			name:     "distinct stems kept",
			paths:    []string{"b.mp3", "a.flac", "a.opus"},
			priority: musicPriority,
			want: Selection{
				Paths:   []string{"a.flac", "b.mp3"},
				Dropped: []string{"a.opus"},
			},
		},
		{
			name:     "same stem in different directories",
			paths:    []string{"x/t.mp3", "y/t.flac"},
			priority: musicPriority,
			want:     Selection{Paths: []string{"x/t.mp3", "y/t.flac"}},
		},
		{
			name:     "equal rank tie keeps first path",
			paths:    []string{"a/t.mp3", "a/t.MP3"},
			priority: musicPriority,
			want: Selection{
				Paths:   []string{"a/t.MP3"},
				Dropped: []string{"a/t.mp3"},
				Ties:    []Tie{{Chosen: "a/t.MP3", Ignored: "a/t.mp3"}},
			},
		},
		{
			name:     "unranked sibling dropped",
			paths:    []string{"t.flac", "t.cue"},
			priority: musicPriority,
			want: Selection{
				Paths:   []string{"t.flac"},
				Dropped: []string{"t.cue"},
			},
		},
		{
			name:     "all unranked kept",
			paths:    []string{"t.cue", "t.log"},
			priority: musicPriority,
			want:     Selection{Paths: []string{"t.cue", "t.log"}},
		},
		{
			name:     "duplicate priority entries use first rank",
			paths:    []string{"t.mp3", "t.ogg"},
			priority: []string{"mp3", "ogg", "mp3"},
			want: Selection{
				Paths:   []string{"t.mp3"},
				Dropped: []string{"t.ogg"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(tt.paths, tt.priority)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Select() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelectDoesNotMutateInput(t *testing.T) {
	paths := []string{"z.mp3", "a.flac"}
	Select(paths, musicPriority)
	if paths[0] != "z.mp3" {
		t.Errorf("input reordered: %v", paths)
	}
}
