// Package util holds small path helpers shared by the validator and the CLI.
package util

import (
	"path"
	"path/filepath"
	"strings"
)

// MatchesGlob reports whether relPath (slash or OS separated, relative to a
// walk root) matches pattern. Patterns use path.Match syntax plus "**",
// which matches zero or more whole path segments. A pattern with no slash
// is matched against every suffix of relPath, so "*.tmp" excludes temporary
// files at any depth. A leading "/" anchors the pattern to the root.
func MatchesGlob(pattern, relPath string) bool {
	pattern = filepath.ToSlash(strings.TrimSpace(pattern))
	relPath = strings.TrimPrefix(filepath.ToSlash(relPath), "./")
	if pattern == "" || relPath == "" || relPath == "." {
		return false
	}

	rooted := strings.HasPrefix(pattern, "/")
	pattern = strings.Trim(pattern, "/")
	patParts := strings.Split(pattern, "/")
	pathParts := strings.Split(relPath, "/")

	if rooted || strings.Contains(pattern, "/") {
		return matchSegments(patParts, pathParts)
	}
	for i := range pathParts {
		if matchSegments(patParts, pathParts[i:]) {
			return true
		}
	}
	return false
}

// MatchesAny reports whether relPath matches at least one of patterns.
// Patterns starting with "!" re-include a previously excluded path; the last
// matching pattern wins.
func MatchesAny(patterns []string, relPath string) (bool, string) {
	matched, by := false, ""
	for _, p := range patterns {
		negated := strings.HasPrefix(p, "!")
		if MatchesGlob(strings.TrimPrefix(p, "!"), relPath) {
			matched = !negated
			by = p
		}
	}
	if !matched {
		return false, ""
	}
	return true, by
}

// matchSegments matches pattern segments against path segments. A "**"
// segment consumes any number of path segments. Trailing path segments are
// allowed so a directory pattern also covers everything below it.
func matchSegments(pat, parts []string) bool {
	if len(pat) == 0 {
		return true
	}
	if pat[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pat[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := path.Match(pat[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], parts[1:])
}

// JoinUnder joins rel onto root unless rel is already absolute.
func JoinUnder(root, rel string) string {
	if rel == "" {
		return root
	}
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(root, rel)
}
