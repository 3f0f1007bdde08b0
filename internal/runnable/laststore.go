package runnable

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dshills/cargorun/internal/lsp"
)

// lastStoreVersion is bumped when the file layout changes.
const lastStoreVersion = 1

type lastSelection struct {
	Version   int          `json:"version"`
	Workspace string       `json:"workspace"`
	Runnable  lsp.Runnable `json:"runnable"`
}

// LastStore remembers the last runnable picked in a workspace so it can be
// offered first next time.
type LastStore struct {
	path      string
	workspace string
}

// NewLastStore creates a store for workspace kept under dir. Each workspace
// gets its own file named by a UUID derived from its path.
func NewLastStore(dir, workspace string) *LastStore {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(lsp.FilePathToURI(workspace)))
	return &LastStore{
		path:      filepath.Join(dir, id.String()+".json"),
		workspace: workspace,
	}
}

// DefaultStateDir returns the directory LastStore files live in.
func DefaultStateDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache directory: %w", err)
	}
	return filepath.Join(dir, "cargorun", "last"), nil
}

// Path returns the backing file.
func (s *LastStore) Path() string {
	return s.path
}

// Load returns the remembered runnable, or nil if there is none.
func (s *LastStore) Load() (*lsp.Runnable, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read last selection: %w", err)
	}

	var last lastSelection
	if err := json.Unmarshal(data, &last); err != nil {
		return nil, fmt.Errorf("failed to unmarshal last selection: %w", err)
	}
	if last.Version != lastStoreVersion || last.Workspace != s.workspace {
		return nil, nil
	}
	return &last.Runnable, nil
}

// Save remembers r, replacing the file atomically.
func (s *LastStore) Save(r lsp.Runnable) error {
	data, err := json.MarshalIndent(lastSelection{
		Version:   lastStoreVersion,
		Workspace: s.workspace,
		Runnable:  r,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal last selection: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Previous returns the remembered runnable as a quick-pick item, or nil.
func (s *LastStore) Previous() (*Item, error) {
	r, err := s.Load()
	if err != nil || r == nil {
		return nil, err
	}
	item := NewItem(*r)
	return &item, nil
}
