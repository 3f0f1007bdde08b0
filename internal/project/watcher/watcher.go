// Package watcher reports source changes in a cargo workspace.
//
// A Watcher watches a directory tree with fsnotify, drops paths matched by
// ignore patterns (target/ and .git/ by default) and files that cannot affect
// a build, and coalesces bursts of events into one Batch per quiet period.
package watcher

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrPathNotExist  = errors.New("path does not exist")
	ErrNotDirectory  = errors.New("path is not a directory")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
	// OpChmod indicates file permissions were changed.
	OpChmod
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a change to one path.
type Event struct {
	Path string
	Op   Op
}

// Batch is the set of changes seen during one debounce window. Paths are
// sorted and unique; Op is the union of their operations.
type Batch struct {
	Paths []string
	Op    Op
}

// Config controls what is watched.
type Config struct {
	// Debounce is the quiet period that ends a batch.
	Debounce time.Duration

	// Ignore are gitignore-style patterns; see IgnorePatterns.
	Ignore []string

	// Files are base-name globs of files that trigger a batch. Empty means
	// every file that is not ignored.
	Files []string
}

// DefaultIgnore are the patterns ignored in every cargo workspace.
var DefaultIgnore = []string{
	"target/",
	".git/",
	".idea/",
	".vscode/",
	"*.swp",
	"*.swo",
	"*~",
	".DS_Store",
}

// DefaultFiles are the files whose changes can affect a cargo build.
var DefaultFiles = []string{
	"*.rs",
	"Cargo.toml",
	"Cargo.lock",
	"build.rs",
	"rust-toolchain",
	"rust-toolchain.toml",
	"config.toml",
}

// DefaultConfig returns the configuration used by --watch.
func DefaultConfig() Config {
	return Config{
		Debounce: 300 * time.Millisecond,
		Ignore:   slices.Clone(DefaultIgnore),
		Files:    slices.Clone(DefaultFiles),
	}
}

// relevant reports whether changes to the file at path can start a batch.
func (c Config) relevant(path string) bool {
	if len(c.Files) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, glob := range c.Files {
		if ok, _ := filepath.Match(glob, base); ok {
			return true
		}
	}
	return false
}

// collector accumulates events into a batch.
type collector struct {
	ops   map[string]Op
	union Op
}

func (c *collector) add(e Event) {
	if c.ops == nil {
		c.ops = make(map[string]Op)
	}
	c.ops[e.Path] |= e.Op
	c.union |= e.Op
}

func (c *collector) empty() bool {
	return len(c.ops) == 0
}

// flush returns the batch and resets the collector.
func (c *collector) flush() Batch {
	paths := make([]string, 0, len(c.ops))
	for p := range c.ops {
		paths = append(paths, p)
	}
	slices.SortFunc(paths, strings.Compare)
	b := Batch{Paths: paths, Op: c.union}
	c.ops = nil
	c.union = 0
	return b
}
