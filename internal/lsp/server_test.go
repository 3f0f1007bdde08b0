package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// startTestServer attaches a Server to a fake peer and completes the handshake.
func startTestServer(t *testing.T, config ServerConfig) (*Server, *fakePeer) {
	t.Helper()

	peer := newFakePeer()
	server := NewServer(config)

	handshake := make(chan map[string]any, 1)
	go func() {
		req := peer.readMethod(t, "initialize")
		if req == nil {
			handshake <- nil
			return
		}
		peer.respond(t, req, map[string]any{
			"capabilities": map[string]any{},
			"serverInfo":   map[string]any{"name": "rust-analyzer", "version": "test"},
		})
		peer.readMethod(t, "initialized")
		handshake <- req
	}()

	ctx := context.Background()
	folder := WorkspaceFolderFromPath(t.TempDir())
	if err := server.Attach(ctx, peer.clientIn, peer.clientOut, peer, []WorkspaceFolder{folder}); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	req := <-handshake
	params, _ := req["params"].(map[string]any)
	if params == nil {
		t.Fatal("initialize sent without params")
	}
	caps, _ := params["capabilities"].(map[string]any)
	experimental, _ := caps["experimental"].(map[string]any)
	if experimental["serverStatusNotification"] != true {
		t.Errorf("capabilities.experimental = %v, want serverStatusNotification", experimental)
	}

	t.Cleanup(func() {
		peer.hangup()
		_ = server.Shutdown(context.Background())
	})
	return server, peer
}

func TestServer_AttachHandshake(t *testing.T) {
	server, _ := startTestServer(t, ServerConfig{})

	if server.Status() != ServerStatusReady {
		t.Errorf("Status() = %v, want ready", server.Status())
	}
	info := server.Info()
	if info == nil || info.Name != "rust-analyzer" {
		t.Errorf("Info() = %+v", info)
	}
}

func TestServer_AttachTwice(t *testing.T) {
	server, peer := startTestServer(t, ServerConfig{})
	err := server.Attach(context.Background(), peer.clientIn, peer.clientOut, peer, nil)
	if !errors.Is(err, ErrServerAlreadyStarted) {
		t.Errorf("second Attach() = %v, want ErrServerAlreadyStarted", err)
	}
}

func TestServer_Runnables(t *testing.T) {
	server, peer := startTestServer(t, ServerConfig{})

	requests := make(chan map[string]any, 1)
	go func() {
		req := peer.readMethod(t, MethodRunnables)
		requests <- req
		peer.respond(t, req, []map[string]any{
			{
				"label": "test it_works",
				"kind":  "cargo",
				"args": map[string]any{
					"workspaceRoot":  "/ws",
					"cargoArgs":      []string{"test", "--package", "demo", "--lib"},
					"executableArgs": []string{"it_works", "--exact"},
				},
			},
			{
				"label": "run shell",
				"kind":  "shell",
				"args":  map[string]any{"cargoArgs": []string{}, "executableArgs": []string{}},
			},
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pos := &Position{Line: 3, Character: 4}
	runnables, err := server.Runnables(ctx, "/ws/src/lib.rs", pos)
	if err != nil {
		t.Fatalf("Runnables() error = %v", err)
	}

	req := <-requests
	params := req["params"].(map[string]any)
	if _, ok := params["position"]; !ok {
		t.Errorf("position missing from %v", params)
	}
	doc := params["textDocument"].(map[string]any)
	if doc["uri"] != "file:///ws/src/lib.rs" {
		t.Errorf("uri = %v", doc["uri"])
	}

	if len(runnables) != 2 {
		t.Fatalf("len(runnables) = %d, want 2", len(runnables))
	}
	if runnables[0].Kind != RunnableKindCargo {
		t.Errorf("kind = %v, want cargo", runnables[0].Kind)
	}
	if got := runnables[0].Args.ExecutableArgs; len(got) != 2 || got[0] != "it_works" {
		t.Errorf("executableArgs = %v", got)
	}
	if runnables[1].Kind.Supported() {
		t.Errorf("kind %v reported as supported", runnables[1].Kind)
	}
}

func TestServer_RunnablesWithoutPosition(t *testing.T) {
	server, peer := startTestServer(t, ServerConfig{})

	requests := make(chan map[string]any, 1)
	go func() {
		req := peer.readMethod(t, MethodRunnables)
		requests <- req
		peer.respond(t, req, []any{})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := server.Runnables(ctx, "/ws/src/main.rs", nil); err != nil {
		t.Fatalf("Runnables() error = %v", err)
	}
	req := <-requests
	params := req["params"].(map[string]any)
	if _, ok := params["position"]; ok {
		t.Errorf("position sent for whole-file query: %v", params)
	}
}

func TestServer_RunnablesErrorUnchanged(t *testing.T) {
	server, peer := startTestServer(t, ServerConfig{})

	go func() {
		req := peer.readMethod(t, MethodRunnables)
		peer.write(t, map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"error":   map[string]any{"code": CodeRequestFailed, "message": "boom"},
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := server.Runnables(ctx, "/ws/src/lib.rs", nil)
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("error = %T %v, want bare *RPCError", err, err)
	}
	if rpcErr.Message != "boom" {
		t.Errorf("message = %q, want boom", rpcErr.Message)
	}
}

func TestServer_WorkspaceConfiguration(t *testing.T) {
	settings := map[string]any{"cargo": map[string]any{"features": "all"}}
	_, peer := startTestServer(t, ServerConfig{Settings: settings})

	peer.write(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "workspace/configuration",
		"params": map[string]any{"items": []any{
			map[string]any{"section": "rust-analyzer"},
			map[string]any{"section": "rust-analyzer"},
		}},
	})

	reply := peer.read(t)
	result, ok := reply["result"].([]any)
	if !ok || len(result) != 2 {
		t.Fatalf("result = %v, want two entries", reply["result"])
	}
	data, _ := json.Marshal(result[0])
	if string(data) != `{"cargo":{"features":"all"}}` {
		t.Errorf("result[0] = %s", data)
	}
}

func TestServer_WaitQuiescent(t *testing.T) {
	server, peer := startTestServer(t, ServerConfig{})

	if _, ok := server.LastStatus(); ok {
		t.Fatal("LastStatus() set before any notification")
	}

	peer.write(t, map[string]any{
		"jsonrpc": "2.0",
		"method":  MethodServerStatus,
		"params":  map[string]any{"health": "ok", "quiescent": false},
	})

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := server.WaitQuiescent(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitQuiescent() before quiescence = %v, want DeadlineExceeded", err)
	}

	peer.write(t, map[string]any{
		"jsonrpc": "2.0",
		"method":  MethodServerStatus,
		"params":  map[string]any{"health": "ok", "quiescent": true},
	})

	ctx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := server.WaitQuiescent(ctx); err != nil {
		t.Fatalf("WaitQuiescent() = %v", err)
	}
	status, ok := server.LastStatus()
	if !ok || !status.Quiescent {
		t.Errorf("LastStatus() = %+v, %v", status, ok)
	}
}

func TestServer_Documents(t *testing.T) {
	server, peer := startTestServer(t, ServerConfig{})
	ctx := context.Background()

	opened := make(chan map[string]any, 1)
	go func() { opened <- peer.readMethod(t, "textDocument/didOpen") }()

	if err := server.OpenDocument(ctx, "/ws/src/lib.rs", "fn main() {}"); err != nil {
		t.Fatalf("OpenDocument() = %v", err)
	}
	msg := <-opened
	item := msg["params"].(map[string]any)["textDocument"].(map[string]any)
	if item["languageId"] != "rust" {
		t.Errorf("languageId = %v, want rust", item["languageId"])
	}
	if err := server.OpenDocument(ctx, "/ws/src/lib.rs", ""); !errors.Is(err, ErrDocumentAlreadyOpen) {
		t.Errorf("second OpenDocument() = %v", err)
	}

	go peer.readMethod(t, "textDocument/didClose")
	if err := server.CloseDocument(ctx, "/ws/src/lib.rs"); err != nil {
		t.Fatalf("CloseDocument() = %v", err)
	}
	if err := server.CloseDocument(ctx, "/ws/src/lib.rs"); !errors.Is(err, ErrDocumentNotOpen) {
		t.Errorf("second CloseDocument() = %v", err)
	}
}

func TestServer_NotReady(t *testing.T) {
	server := NewServer(ServerConfig{})
	if _, err := server.Runnables(context.Background(), "/x.rs", nil); !errors.Is(err, ErrServerNotReady) {
		t.Errorf("Runnables() on stopped server = %v", err)
	}
	if err := server.WaitQuiescent(context.Background()); !errors.Is(err, ErrServerNotReady) {
		t.Errorf("WaitQuiescent() on stopped server = %v", err)
	}
}

func TestServerStatus_String(t *testing.T) {
	tests := []struct {
		status ServerStatus
		want   string
	}{
		{ServerStatusStopped, "stopped"},
		{ServerStatusReady, "ready"},
		{ServerStatusShuttingDown, "shutting down"},
		{ServerStatus(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
