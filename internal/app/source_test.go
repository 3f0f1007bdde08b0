package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cargorun/internal/input/palette"
	"github.com/dshills/cargorun/internal/lsp"
)

// fakeServerLog names the file the fake rust-analyzer records methods to.
// When set, the test binary acts as the server instead of running tests.
const fakeServerLog = "CARGORUN_FAKE_RA_LOG"

func TestMain(m *testing.M) {
	if path := os.Getenv(fakeServerLog); path != "" {
		os.Exit(fakeRustAnalyzer(path))
	}
	os.Exit(m.Run())
}

// fakeRustAnalyzer speaks just enough of the protocol to list one runnable.
// It records every method it receives, one per line.
func fakeRustAnalyzer(logPath string) int {
	logFile, err := os.Create(logPath)
	if err != nil {
		return 1
	}
	defer logFile.Close()

	var mu sync.Mutex
	record := func(method string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(logFile, method)
	}
	root, err := os.Getwd()
	if err != nil {
		return 1
	}

	t := lsp.NewTransport(os.Stdin, os.Stdout, nil)
	exit := make(chan struct{})
	closed := make(chan struct{})
	var once sync.Once

	t.OnRequest("initialize", func(method string, _ json.RawMessage) (any, error) {
		record(method)
		return lsp.InitializeResult{
			Capabilities: map[string]any{},
			ServerInfo:   &lsp.InitializeServerInfo{Name: "fake-rust-analyzer"},
		}, nil
	})
	t.OnNotification("initialized", func(method string, _ json.RawMessage) {
		record(method)
		_ = t.Notify(context.Background(), lsp.MethodServerStatus, lsp.ServerStatusParams{
			Health: "ok", Quiescent: true, Message: "loaded",
		})
	})
	t.OnRequest(lsp.MethodRunnables, func(method string, _ json.RawMessage) (any, error) {
		record(method)
		return []lsp.Runnable{{
			Label: "run demo",
			Kind:  lsp.RunnableKindCargo,
			Args: lsp.CargoRunnableArgs{
				WorkspaceRoot: root,
				CargoArgs:     []string{"run", "--package", "demo", "--bin", "demo"},
			},
		}}, nil
	})
	t.OnRequest("shutdown", func(method string, _ json.RawMessage) (any, error) {
		// Notifications are dispatched concurrently; hold the reply until a
		// close that preceded it on the wire has been recorded.
		select {
		case <-closed:
		case <-time.After(time.Second):
		}
		record(method)
		return nil, nil
	})
	t.OnNotification("*", func(method string, _ json.RawMessage) {
		record(method)
		switch method {
		case "textDocument/didClose":
			once.Do(func() { close(closed) })
		case "exit":
			close(exit)
		}
	})

	t.Start(context.Background())
	select {
	case <-exit:
	case <-t.Done():
	}
	return 0
}

func TestRun_RustAnalyzerSource(t *testing.T) {
	f := newFixture(t)
	exe, err := os.Executable()
	require.NoError(t, err)
	logPath := filepath.Join(t.TempDir(), "methods.log")

	opts := Options{
		ConfigPath: filepath.Join(f.root, "empty.toml"),
		Overrides: map[string]any{
			"task.cargo_path":       filepath.Join(f.root, "bin", "cargo"),
			"history.dir":           f.history,
			"server.command":        exe,
			"server.env":            map[string]any{fakeServerLog: logPath},
			"server.timeout":        "10s",
			"server.wait_quiescent": true,
		},
		Stdout:  &f.stdout,
		Stderr:  &f.stderr,
		Environ: []string{"PATH=" + os.Getenv("PATH")},
	}
	a := New(opts, WithPicker(palette.NewLinePicker(strings.NewReader("1\n"), &f.stderr)))

	code, err := a.Run(context.Background(), Target{File: f.file, Line: 1}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, f.stdout.String(), "cargo run --package demo --bin demo")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	methods := strings.Fields(string(data))
	assert.Subset(t, methods, []string{"initialize", "initialized", "textDocument/didOpen", lsp.MethodRunnables})

	closeAt, shutdownAt := indexOf(methods, "textDocument/didClose"), indexOf(methods, "shutdown")
	require.NotEqual(t, -1, closeAt, "document closed: %v", methods)
	require.NotEqual(t, -1, shutdownAt, "server shut down: %v", methods)
	assert.Less(t, closeAt, shutdownAt, "document closed before shutdown")
}

func indexOf(items []string, want string) int {
	for i, item := range items {
		if item == want {
			return i
		}
	}
	return -1
}
