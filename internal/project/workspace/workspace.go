// Package workspace locates the cargo workspace a source file belongs to.
//
// The search follows cargo: the nearest Cargo.toml above the file is the
// package manifest, and the nearest ancestor manifest with a [workspace]
// table (or the one named by package.workspace) is the workspace root,
// unless it excludes the package.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ManifestName is the cargo manifest file name.
const ManifestName = "Cargo.toml"

// Common errors.
var (
	ErrNoManifest   = errors.New("no Cargo.toml found")
	ErrInvalidPath  = errors.New("invalid path")
	ErrBadWorkspace = errors.New("package.workspace does not name a workspace")
)

// Workspace describes a cargo workspace.
type Workspace struct {
	// Root is the directory holding the workspace (or sole package) manifest.
	Root string

	// Manifest is the package manifest nearest the file. It equals the root
	// manifest for single-package projects and is empty when the file sits
	// directly under a virtual workspace.
	Manifest string

	// Package is the name of the package owning the file, if any.
	Package string

	// Members are the [workspace].members globs, as written.
	Members []string
}

// ManifestPath returns the root manifest path.
func (w *Workspace) ManifestPath() string {
	return filepath.Join(w.Root, ManifestName)
}

// Contains reports whether path lies inside the workspace root.
func (w *Workspace) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return isSubPath(w.Root, abs)
}

type manifest struct {
	Package *struct {
		Name      string `toml:"name"`
		Workspace string `toml:"workspace"`
	} `toml:"package"`
	Workspace *struct {
		Members []string `toml:"members"`
		Exclude []string `toml:"exclude"`
	} `toml:"workspace"`
}

func readManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &m, nil
}

// Find returns the workspace containing path, a file or directory.
func Find(path string) (*Workspace, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	dir := abs
	if !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	pkgDir, pkg, err := nearest(dir, func(*manifest) bool { return true })
	if err != nil {
		return nil, err
	}

	ws := &Workspace{Root: pkgDir}
	if pkg.Package != nil {
		ws.Manifest = filepath.Join(pkgDir, ManifestName)
		ws.Package = pkg.Package.Name
	}
	if pkg.Workspace != nil {
		ws.Members = pkg.Workspace.Members
		return ws, nil
	}

	// An explicit package.workspace wins over the search.
	if pkg.Package != nil && pkg.Package.Workspace != "" {
		rootDir := filepath.Clean(filepath.Join(pkgDir, pkg.Package.Workspace))
		root, err := readManifest(filepath.Join(rootDir, ManifestName))
		if err != nil {
			return nil, err
		}
		if root.Workspace == nil {
			return nil, fmt.Errorf("%w: %s", ErrBadWorkspace, rootDir)
		}
		ws.Root = rootDir
		ws.Members = root.Workspace.Members
		return ws, nil
	}

	parent := filepath.Dir(pkgDir)
	if parent == pkgDir {
		return ws, nil
	}
	rootDir, root, err := nearest(parent, func(m *manifest) bool { return m.Workspace != nil })
	if errors.Is(err, ErrNoManifest) {
		return ws, nil
	}
	if err != nil {
		return nil, err
	}
	if excluded(rootDir, pkgDir, root.Workspace.Exclude) {
		return ws, nil
	}
	ws.Root = rootDir
	ws.Members = root.Workspace.Members
	return ws, nil
}

// nearest walks up from dir to the first manifest accepted by want.
func nearest(dir string, want func(*manifest) bool) (string, *manifest, error) {
	for {
		path := filepath.Join(dir, ManifestName)
		m, err := readManifest(path)
		switch {
		case err == nil:
			if want(m) {
				return dir, m, nil
			}
		case !errors.Is(err, os.ErrNotExist):
			return "", nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil, ErrNoManifest
		}
		dir = parent
	}
}

func excluded(root, pkgDir string, exclude []string) bool {
	for _, e := range exclude {
		if isSubPath(filepath.Join(root, e), pkgDir) {
			return true
		}
	}
	return false
}

// isSubPath checks if child is a subpath of parent.
func isSubPath(parent, child string) bool {
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)
	if child == parent {
		return true
	}
	if !strings.HasSuffix(parent, string(filepath.Separator)) {
		parent += string(filepath.Separator)
	}
	return strings.HasPrefix(child, parent)
}
