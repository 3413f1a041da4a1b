package watcher

import (
	"path/filepath"
	"regexp"
	"strings"
)

// matchPattern applies the three-way pattern grammar to a file name:
// a pattern starting with "*." matches by extension, case-insensitively;
// a pattern containing "*" matches the name against the regex formed by
// replacing each "*" with ".*"; anything else is an exact name equality
// test.
func matchPattern(pattern, fileName string) bool {
	if strings.HasPrefix(pattern, "*.") {
		ext := strings.ToLower(strings.TrimPrefix(pattern, "*"))
		return strings.ToLower(filepath.Ext(fileName)) == ext
	}

	if strings.Contains(pattern, "*") {
		expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
		re, err := regexp.Compile(expr)
		if err != nil {
			return false
		}
		return re.MatchString(fileName)
	}

	return pattern == fileName
}

// matchAny reports whether fileName matches at least one pattern.
func matchAny(patterns []string, fileName string) bool {
	for _, p := range patterns {
		if matchPattern(p, fileName) {
			return true
		}
	}
	return false
}

// inExcludedDir reports whether any excluded directory name appears as a
// substring of the path, the same containment test the admission filter
// applies before pattern matching.
func inExcludedDir(excludeDirs []string, path string) bool {
	for _, dir := range excludeDirs {
		if dir != "" && strings.Contains(path, dir) {
			return true
		}
	}
	return false
}
