// Package collect selects the artifact files a registration pass considers.
package collect

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"ratchet/internal/workspace"
)

// Paths returns the workspace-relative, slash-separated paths of the
// artifacts to register. When the config names known artifacts they are
// taken in config order; otherwise the canon directory is walked recursively
// and the result sorted. The exclusion globs and the supported-suffix filter
// apply in both modes.
func Paths(layout workspace.Layout, cfg workspace.Config) ([]string, error) {
	excludes, err := compileGlobs(cfg.ExcludeGlobs)
	if err != nil {
		return nil, err
	}
	if len(cfg.KnownArtifacts) > 0 {
		return fromKnown(layout, cfg.KnownArtifacts, excludes), nil
	}
	return discover(layout, excludes)
}

func fromKnown(layout workspace.Layout, known []string, excludes []*regexp.Regexp) []string {
	var out []string
	for _, raw := range known {
		rel := path.Clean(filepath.ToSlash(raw))
		info, err := os.Stat(layout.Abs(rel))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !supportedSuffix(rel) || excluded(rel, excludes) {
			continue
		}
		out = append(out, rel)
	}
	return out
}

func discover(layout workspace.Layout, excludes []*regexp.Regexp) ([]string, error) {
	var out []string
	walk := func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := layout.Rel(p)
		if err != nil {
			return err
		}
		if !supportedSuffix(rel) || excluded(rel, excludes) {
			return nil
		}
		out = append(out, rel)
		return nil
	}
	if err := filepath.WalkDir(layout.Abs(workspace.CanonRel), walk); err != nil {
		return nil, fmt.Errorf("walk %s: %w", workspace.CanonRel, err)
	}
	// Flat sort over full relative paths, not per-directory walk order.
	sort.Strings(out)
	return out, nil
}

func supportedSuffix(rel string) bool {
	switch path.Ext(rel) {
	case ".json", ".md":
		return true
	}
	return false
}

func excluded(rel string, excludes []*regexp.Regexp) bool {
	for _, re := range excludes {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}

func compileGlobs(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := compileGlob(p)
		if err != nil {
			return nil, fmt.Errorf("exclude glob %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// compileGlob translates an fnmatch-style pattern into an anchored regexp.
// * matches any run of characters, slashes included, so ** is equivalent;
// ? matches a single character.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
