package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ServerStatus indicates the current state of a server.
type ServerStatus int

const (
	ServerStatusStopped ServerStatus = iota
	ServerStatusStarting
	ServerStatusInitializing
	ServerStatusReady
	ServerStatusShuttingDown
	ServerStatusError
)

// String returns a human-readable status name.
func (s ServerStatus) String() string {
	switch s {
	case ServerStatusStopped:
		return "stopped"
	case ServerStatusStarting:
		return "starting"
	case ServerStatusInitializing:
		return "initializing"
	case ServerStatusReady:
		return "ready"
	case ServerStatusShuttingDown:
		return "shutting down"
	case ServerStatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ServerConfig defines how to start a language server.
type ServerConfig struct {
	// Command is the executable to run.
	Command string

	// Args are command-line arguments.
	Args []string

	// Env are additional environment variables.
	Env map[string]string

	// WorkDir is the working directory (defaults to workspace root).
	WorkDir string

	// InitializationOptions are sent during initialize.
	InitializationOptions any

	// Settings answer workspace/configuration requests.
	Settings any

	// Timeout bounds the initialize and shutdown handshakes (default: 30s).
	// Feature requests are bounded only by the caller's context.
	Timeout time.Duration
}

// DefaultRustAnalyzerConfig returns a config that starts rust-analyzer from PATH.
func DefaultRustAnalyzerConfig() ServerConfig {
	return ServerConfig{
		Command: "rust-analyzer",
		Timeout: 30 * time.Second,
	}
}

// Server represents a connection to a single language server.
type Server struct {
	mu sync.Mutex

	config ServerConfig
	logger *zap.Logger

	// Process management
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	transport *Transport

	status     atomic.Int32
	serverInfo *InitializeServerInfo

	// Open documents and their versions
	documents   map[DocumentURI]int
	documentsMu sync.Mutex

	// Quiescence tracking (experimental/serverStatus)
	statusMu     sync.Mutex
	lastStatus   *ServerStatusParams
	quiescent    chan struct{}
	quiescentSet bool

	workspaceFolders []WorkspaceFolder

	ctx    context.Context
	cancel context.CancelFunc
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server's logger.
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new server instance (not yet started).
func NewServer(config ServerConfig, opts ...ServerOption) *Server {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	s := &Server{
		config:    config,
		logger:    zap.NewNop(),
		documents: make(map[DocumentURI]int),
		quiescent: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status.Store(int32(ServerStatusStopped))
	return s
}

// Start starts the language server process and initializes it.
func (s *Server) Start(ctx context.Context, workspaceFolders []WorkspaceFolder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() != ServerStatusStopped {
		return ErrServerAlreadyStarted
	}

	s.status.Store(int32(ServerStatusStarting))
	s.workspaceFolders = workspaceFolders
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.startProcess(); err != nil {
		s.status.Store(int32(ServerStatusError))
		return &ServerError{Command: s.config.Command, Err: err}
	}

	go s.monitorProcess()
	go s.drainStderr()

	return s.connect(s.stdout, s.stdin, nil)
}

// Attach initializes a server reachable over an existing stream instead of a
// child process.
func (s *Server) Attach(ctx context.Context, r io.Reader, w io.Writer, c io.Closer, workspaceFolders []WorkspaceFolder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() != ServerStatusStopped {
		return ErrServerAlreadyStarted
	}

	s.status.Store(int32(ServerStatusStarting))
	s.workspaceFolders = workspaceFolders
	s.ctx, s.cancel = context.WithCancel(ctx)

	return s.connect(r, w, c)
}

// connect creates the transport and performs the handshake. Caller holds mu.
func (s *Server) connect(r io.Reader, w io.Writer, c io.Closer) error {
	s.transport = NewTransport(r, w, c, WithTransportLogger(s.logger.Named("transport")))
	s.registerHandlers()
	s.transport.Start(s.ctx)

	s.status.Store(int32(ServerStatusInitializing))
	if err := s.initialize(s.ctx); err != nil {
		s.status.Store(int32(ServerStatusError))
		s.stopProcess()
		return fmt.Errorf("initialize: %w", err)
	}

	s.status.Store(int32(ServerStatusReady))
	if s.serverInfo != nil {
		s.logger.Info("language server ready",
			zap.String("name", s.serverInfo.Name),
			zap.String("version", s.serverInfo.Version))
	}
	return nil
}

// startProcess starts the language server executable.
func (s *Server) startProcess() error {
	cmd := exec.CommandContext(s.ctx, s.config.Command, s.config.Args...)

	cmd.Env = os.Environ()
	for k, v := range s.config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if s.config.WorkDir != "" {
		cmd.Dir = s.config.WorkDir
	} else if len(s.workspaceFolders) > 0 {
		cmd.Dir = s.workspaceFolders[0].Path()
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("start process: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdout
	s.stderr = stderr

	return nil
}

// monitorProcess reaps the process. An unexpected exit closes stdout, which
// ends the transport and fails pending calls.
func (s *Server) monitorProcess() {
	err := s.cmd.Wait()
	if err != nil && s.Status() != ServerStatusShuttingDown && s.Status() != ServerStatusStopped {
		s.logger.Warn("language server exited", zap.Error(err))
	}
}

// drainStderr forwards the server's stderr to the debug log.
func (s *Server) drainStderr() {
	scanner := bufio.NewScanner(s.stderr)
	for scanner.Scan() {
		s.logger.Debug("server stderr", zap.String("line", scanner.Text()))
	}
}

// stopProcess stops the transport and the server process.
func (s *Server) stopProcess() {
	if s.transport != nil {
		s.transport.Close()
	}
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

// initialize performs the LSP initialize handshake.
func (s *Server) initialize(ctx context.Context) error {
	var rootURI DocumentURI
	if len(s.workspaceFolders) > 0 {
		rootURI = s.workspaceFolders[0].URI
	}

	params := InitializeParams{
		ProcessID:             os.Getpid(),
		ClientInfo:            &ClientInfo{Name: "cargorun"},
		RootURI:               rootURI,
		Capabilities:          DefaultClientCapabilities(),
		InitializationOptions: s.config.InitializationOptions,
		WorkspaceFolders:      s.workspaceFolders,
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var result InitializeResult
	if err := s.transport.Call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}
	s.serverInfo = result.ServerInfo

	if err := s.transport.Notify(ctx, "initialized", InitializedParams{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	return nil
}

// registerHandlers sets up handlers for server notifications and requests.
func (s *Server) registerHandlers() {
	s.transport.OnNotification(MethodServerStatus, func(method string, params json.RawMessage) {
		var p ServerStatusParams
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		s.recordStatus(p)
	})

	s.transport.OnNotification("window/logMessage", func(method string, params json.RawMessage) {
		s.logger.Debug("server log", zap.ByteString("params", params))
	})

	s.transport.OnNotification("*", func(method string, params json.RawMessage) {})

	s.transport.OnRequest("workspace/configuration", func(method string, params json.RawMessage) (any, error) {
		var p ConfigurationParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		result := make([]any, len(p.Items))
		for i := range result {
			result[i] = s.config.Settings
		}
		return result, nil
	})

	ack := func(method string, params json.RawMessage) (any, error) { return nil, nil }
	s.transport.OnRequest("client/registerCapability", ack)
	s.transport.OnRequest("client/unregisterCapability", ack)
	s.transport.OnRequest("window/workDoneProgress/create", ack)
}

// recordStatus stores a serverStatus notification and releases quiescence waiters.
func (s *Server) recordStatus(p ServerStatusParams) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	s.lastStatus = &p
	if p.Quiescent && !s.quiescentSet {
		s.quiescentSet = true
		close(s.quiescent)
	}
	if p.Health != "" && p.Health != "ok" {
		s.logger.Warn("server health degraded", zap.String("health", p.Health), zap.String("message", p.Message))
	}
}

// WaitQuiescent blocks until the server reports it finished loading the
// workspace, the context is done, or the connection closes.
func (s *Server) WaitQuiescent(ctx context.Context) error {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()
	if transport == nil {
		return ErrServerNotReady
	}

	select {
	case <-s.quiescent:
		return nil
	case <-transport.Done():
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastStatus returns the most recent serverStatus notification, if any.
func (s *Server) LastStatus() (ServerStatusParams, bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.lastStatus == nil {
		return ServerStatusParams{}, false
	}
	return *s.lastStatus, true
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.Status()
	if status == ServerStatusStopped || status == ServerStatusShuttingDown {
		return nil
	}

	s.status.Store(int32(ServerStatusShuttingDown))

	if s.transport != nil && !s.transport.IsClosed() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := s.transport.Call(shutdownCtx, "shutdown", nil, nil); err != nil {
			s.logger.Debug("shutdown request failed", zap.Error(err))
		}
		_ = s.transport.Notify(shutdownCtx, "exit", nil)
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.stopProcess()

	s.status.Store(int32(ServerStatusStopped))
	return nil
}

// Status returns the current server status.
func (s *Server) Status() ServerStatus {
	return ServerStatus(s.status.Load())
}

// Info returns information about the server from initialization.
func (s *Server) Info() *InitializeServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// OpenDocument notifies the server that a document was opened.
func (s *Server) OpenDocument(ctx context.Context, path, content string) error {
	if s.Status() != ServerStatusReady {
		return ErrServerNotReady
	}

	uri := FilePathToURI(path)

	s.documentsMu.Lock()
	if _, exists := s.documents[uri]; exists {
		s.documentsMu.Unlock()
		return ErrDocumentAlreadyOpen
	}
	s.documents[uri] = 1
	s.documentsMu.Unlock()

	return s.transport.Notify(ctx, "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        uri,
			LanguageID: "rust",
			Version:    1,
			Text:       content,
		},
	})
}

// CloseDocument notifies the server that a document was closed.
func (s *Server) CloseDocument(ctx context.Context, path string) error {
	if s.Status() != ServerStatusReady {
		return ErrServerNotReady
	}

	uri := FilePathToURI(path)

	s.documentsMu.Lock()
	if _, exists := s.documents[uri]; !exists {
		s.documentsMu.Unlock()
		return ErrDocumentNotOpen
	}
	delete(s.documents, uri)
	s.documentsMu.Unlock()

	return s.transport.Notify(ctx, "textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

// Runnables asks rust-analyzer for the runnables of a document. When pos is
// nil the server returns every runnable in the file. Transport and RPC
// failures are returned as-is.
func (s *Server) Runnables(ctx context.Context, path string, pos *Position) ([]Runnable, error) {
	if s.Status() != ServerStatusReady {
		return nil, ErrServerNotReady
	}

	params := RunnablesParams{
		TextDocument: TextDocumentIdentifier{URI: FilePathToURI(path)},
		Position:     pos,
	}

	var result []Runnable
	if err := s.transport.Call(ctx, MethodRunnables, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}
