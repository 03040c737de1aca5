// Package variant picks one canonical source file among several that share
// a directory and stem but differ in extension.
package variant

import (
	"path"
	"slices"
	"strings"
)

// Candidate is a source file split into its stem and extension.
type Candidate struct {
	// Base is the path without extension ("album/track").
	Base string
	// Ext is lower-case without the leading dot ("flac").
	Ext string
	// Path is the original relative path.
	Path string
}

// SplitExt splits rel into its stem and lower-cased extension.
func SplitExt(rel string) (base, ext string) {
	e := path.Ext(rel)
	if e == "" || e == rel || strings.HasSuffix(rel, "/"+e) {
		return rel, ""
	}
	return strings.TrimSuffix(rel, e), strings.ToLower(e[1:])
}

// NewCandidate builds a Candidate from a relative path.
func NewCandidate(rel string) Candidate {
	base, ext := SplitExt(rel)
	return Candidate{Base: base, Ext: ext, Path: rel}
}

// Tie records two equally ranked variants of one basename.
type Tie struct {
	Chosen  string
	Ignored string
}

// Selection is the outcome of Select.
type Selection struct {
	// Paths holds the selected paths in sorted order.
	Paths []string
	// Dropped holds paths superseded by a preferred variant, sorted.
	Dropped []string
	// Ties lists equal-rank collisions; the chosen path is the
	// lexicographically first one.
	Ties []Tie
}

// Filter keeps the paths whose extension appears in include.
// An empty include list keeps everything.
func Filter(paths []string, include []string) []string {
	if len(include) == 0 {
		return paths
	}
	allowed := make(map[string]bool, len(include))
	for _, ext := range include {
		allowed[normalizeExt(ext)] = true
	}
	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ext := SplitExt(p); allowed[ext] {
			kept = append(kept, p)
		}
	}
	return kept
}

// Select returns exactly one path per basename among ranked extensions.
//
// priority lists extensions from most to least preferred. Files with an
// unranked extension are dropped when a ranked sibling exists; a basename
// whose variants are all unranked keeps every one of them.
func Select(paths []string, priority []string) Selection {
	rank := make(map[string]int, len(priority))
	for i, ext := range priority {
		ext = normalizeExt(ext)
		if _, dup := rank[ext]; !dup {
			rank[ext] = i
		}
	}

	sorted := slices.Clone(paths)
	slices.Sort(sorted)

	type group struct {
		best     string
		bestRank int
		unranked []string
	}
	groups := make(map[string]*group)
	var order []string
	var sel Selection

	for _, p := range sorted {
		c := NewCandidate(p)
		g, ok := groups[c.Base]
		if !ok {
			g = &group{bestRank: -1}
			groups[c.Base] = g
			order = append(order, c.Base)
		}
		r, ranked := rank[c.Ext]
		if !ranked {
			g.unranked = append(g.unranked, p)
			continue
		}
		switch {
		case g.bestRank < 0 || r < g.bestRank:
			if g.best != "" {
				sel.Dropped = append(sel.Dropped, g.best)
			}
			g.best, g.bestRank = p, r
		case r == g.bestRank:
			// sorted input: the earlier path stays.
			sel.Ties = append(sel.Ties, Tie{Chosen: g.best, Ignored: p})
			sel.Dropped = append(sel.Dropped, p)
		default:
			sel.Dropped = append(sel.Dropped, p)
		}
	}

	for _, base := range order {
		g := groups[base]
		if g.best != "" {
			sel.Paths = append(sel.Paths, g.best)
			sel.Dropped = append(sel.Dropped, g.unranked...)
			continue
		}
		sel.Paths = append(sel.Paths, g.unranked...)
	}
	slices.Sort(sel.Paths)
	slices.Sort(sel.Dropped)
	return sel
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
