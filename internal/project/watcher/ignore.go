package watcher

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnorePatterns is a gitignore-style matcher over paths relative to a root.
// Supported forms:
//   - *.swp    base-name glob at any depth
//   - target/  directory at any depth, and everything below it
//   - /build/  directory at the root only
//   - **/x     same as x
//   - !keep.rs negation; later patterns win
type IgnorePatterns struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	pattern  string
	negation bool
	dirOnly  bool
	rooted   bool
}

// NewIgnorePatterns builds a matcher from patterns. Blank lines and comments
// are skipped.
func NewIgnorePatterns(patterns ...string) *IgnorePatterns {
	ip := &IgnorePatterns{}
	for _, p := range patterns {
		ip.Add(p)
	}
	return ip
}

// Add appends one pattern.
func (ip *IgnorePatterns) Add(pattern string) {
	pattern = strings.TrimRight(pattern, " \t\r")
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	var p ignorePattern
	if strings.HasPrefix(pattern, "!") {
		p.negation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	pattern = strings.TrimPrefix(pattern, "**/")
	if strings.HasPrefix(pattern, "/") {
		p.rooted = true
		pattern = pattern[1:]
	}
	if pattern == "" {
		return
	}
	p.pattern = pattern
	ip.patterns = append(ip.patterns, p)
}

// AddFromFile appends the patterns of a .gitignore-style file. A missing
// file is not an error.
func (ip *IgnorePatterns) AddFromFile(file string) error {
	f, err := os.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ip.Add(scanner.Text())
	}
	return scanner.Err()
}

// Len returns the number of patterns.
func (ip *IgnorePatterns) Len() int {
	return len(ip.patterns)
}

// Match reports whether rel, a slash or OS separated path relative to the
// watched root, is ignored. isDir tells whether rel itself is a directory.
func (ip *IgnorePatterns) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || rel == "" {
		return false
	}
	parts := strings.Split(rel, "/")

	ignored := false
	for _, p := range ip.patterns {
		if p.matches(parts, isDir) {
			ignored = !p.negation
		}
	}
	return ignored
}

func (p ignorePattern) matches(parts []string, isDir bool) bool {
	if strings.Contains(p.pattern, "/") {
		// Multi-component patterns are anchored at the root.
		n := strings.Count(p.pattern, "/") + 1
		if len(parts) < n {
			return false
		}
		prefix := strings.Join(parts[:n], "/")
		ok, _ := path.Match(p.pattern, prefix)
		return ok && (!p.dirOnly || len(parts) > n || isDir)
	}

	last := len(parts) - 1
	for i, part := range parts {
		if p.rooted && i > 0 {
			break
		}
		ok, _ := path.Match(p.pattern, part)
		if !ok {
			continue
		}
		// A component before the last is always a directory.
		if !p.dirOnly || i < last || isDir {
			return true
		}
	}
	return false
}
