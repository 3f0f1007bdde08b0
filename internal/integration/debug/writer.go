package debug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/dshills/cargorun/internal/lsp"
)

// Errors returned by LaunchWriter.
var (
	ErrLaunchConfigExists = errors.New("launch configuration already exists")
	ErrInvalidLaunchFile  = errors.New("launch file is not valid JSON")
)

// launchVersion is written to new launch files.
const launchVersion = "0.2.0"

// DefaultLaunchPath returns the launch.json of a workspace.
func DefaultLaunchPath(workspace string) string {
	return filepath.Join(workspace, ".vscode", "launch.json")
}

// LaunchWriter adds launch configurations to a launch.json file. Everything
// else in the file is left as it is.
type LaunchWriter struct {
	path      string
	overwrite bool
	logger    *zap.Logger
}

// WriterOption configures a LaunchWriter.
type WriterOption func(*LaunchWriter)

// WithOverwrite replaces an existing configuration of the same name instead
// of failing with ErrLaunchConfigExists.
func WithOverwrite(overwrite bool) WriterOption {
	return func(w *LaunchWriter) { w.overwrite = overwrite }
}

// WithWriterLogger sets the logger.
func WithWriterLogger(logger *zap.Logger) WriterOption {
	return func(w *LaunchWriter) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewLaunchWriter creates a writer for the launch file at path.
func NewLaunchWriter(path string, opts ...WriterOption) *LaunchWriter {
	w := &LaunchWriter{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the launch file path.
func (w *LaunchWriter) Path() string {
	return w.path
}

// Persist saves r as a launch configuration.
func (w *LaunchWriter) Persist(ctx context.Context, r lsp.Runnable) error {
	cfg, err := MakeLaunchConfig(r)
	if err != nil {
		return err
	}
	return w.Write(ctx, cfg)
}

// Write adds cfg to the launch file, creating the file when needed.
func (w *LaunchWriter) Write(ctx context.Context, cfg LaunchConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := w.read()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal launch configuration: %w", err)
	}

	path := "configurations.-1"
	if idx := findConfiguration(data, cfg.Name); idx >= 0 {
		if !w.overwrite {
			return fmt.Errorf("%w: %q in %s", ErrLaunchConfigExists, cfg.Name, w.path)
		}
		path = "configurations." + strconv.Itoa(idx)
		w.logger.Debug("replacing launch configuration", zap.String("name", cfg.Name), zap.Int("index", idx))
	}

	data, err = sjson.SetRawBytes(data, path, raw)
	if err != nil {
		return fmt.Errorf("update launch file: %w", err)
	}

	if err := w.write(pretty.Pretty(data)); err != nil {
		return err
	}
	w.logger.Info("launch configuration written",
		zap.String("name", cfg.Name),
		zap.String("file", w.path))
	return nil
}

// Configurations returns the names of the configurations in the file.
func (w *LaunchWriter) Configurations() ([]string, error) {
	data, err := w.read()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, c := range gjson.GetBytes(data, "configurations").Array() {
		names = append(names, c.Get("name").String())
	}
	return names, nil
}

// read returns the file contents, or a skeleton when the file does not exist.
func (w *LaunchWriter) read() ([]byte, error) {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return []byte(`{"version":"` + launchVersion + `","configurations":[]}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read launch file: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLaunchFile, w.path)
	}
	switch c := gjson.GetBytes(data, "configurations"); {
	case !c.Exists():
		return sjson.SetRawBytes(data, "configurations", []byte("[]"))
	case !c.IsArray():
		return nil, fmt.Errorf("%w: %s: configurations is not an array", ErrInvalidLaunchFile, w.path)
	}
	return data, nil
}

func (w *LaunchWriter) write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tempPath := w.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, w.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// findConfiguration returns the index of the configuration named name, or -1.
func findConfiguration(data []byte, name string) int {
	idx := -1
	i := 0
	gjson.GetBytes(data, "configurations").ForEach(func(_, c gjson.Result) bool {
		if c.Get("name").String() == name {
			idx = i
			return false
		}
		i++
		return true
	})
	return idx
}
