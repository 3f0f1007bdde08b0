package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Transport handles JSON-RPC 2.0 communication over stdio.
// It implements the LSP base protocol with Content-Length headers.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	logger *zap.Logger

	mu       sync.Mutex
	writeMu  sync.Mutex
	nextID   atomic.Int64
	pending  map[int64]chan *Response
	handlers map[string]NotificationHandler
	requests map[string]RequestHandler

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NotificationHandler handles incoming notifications from the server.
type NotificationHandler func(method string, params json.RawMessage)

// RequestHandler answers a request the server sends to the client.
// A nil error replies with result; an *RPCError is sent back verbatim and any
// other error is reported as an internal error.
type RequestHandler func(method string, params json.RawMessage) (any, error)

// Request represents a JSON-RPC request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response represents a JSON-RPC response to a client request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// reply is a response the client sends to a server request. The id is kept
// raw because servers may use string ids.
type reply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// incoming is the union of every message shape the server can send.
type incoming struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithTransportLogger sets the logger for protocol diagnostics.
func WithTransportLogger(logger *zap.Logger) TransportOption {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTransport creates a new transport over the given connection.
// The conn must support reading and writing (typically stdin/stdout pipes).
func NewTransport(r io.Reader, w io.Writer, c io.Closer, opts ...TransportOption) *Transport {
	t := &Transport{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		closer:   c,
		logger:   zap.NewNop(),
		pending:  make(map[int64]chan *Response),
		handlers: make(map[string]NotificationHandler),
		requests: make(map[string]RequestHandler),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins reading messages from the connection in a goroutine.
func (t *Transport) Start(ctx context.Context) {
	go t.readLoop(ctx)
}

// Done is closed once the transport stops, either through Close or because
// the peer closed the stream.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Close closes the transport and releases resources.
func (t *Transport) Close() error {
	if !t.shutdown() {
		return nil
	}
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// shutdown marks the transport closed and wakes every waiting caller.
// It reports whether this call performed the shutdown.
func (t *Transport) shutdown() bool {
	first := false
	t.closeOnce.Do(func() {
		first = true
		t.closed.Store(true)
		close(t.done)

		// Pending channels are dropped rather than closed; waiters select on done.
		t.mu.Lock()
		t.pending = make(map[int64]chan *Response)
		t.mu.Unlock()
	})
	return first
}

// Call sends a request and waits for a response.
func (t *Transport) Call(ctx context.Context, method string, params any, result any) error {
	if t.closed.Load() {
		return ErrShutdown
	}

	id := t.nextID.Add(1)
	ch := make(chan *Response, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	req := &Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	if err := t.send(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrShutdown
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}
}

// Notify sends a notification (no response expected).
func (t *Transport) Notify(ctx context.Context, method string, params any) error {
	if t.closed.Load() {
		return ErrShutdown
	}

	return t.send(&Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
}

// OnNotification registers a handler for server notifications.
// The method "*" receives notifications without a dedicated handler.
func (t *Transport) OnNotification(method string, handler NotificationHandler) {
	t.mu.Lock()
	t.handlers[method] = handler
	t.mu.Unlock()
}

// OnRequest registers a handler for requests initiated by the server.
// Requests without a handler are answered with MethodNotFound.
func (t *Transport) OnRequest(method string, handler RequestHandler) {
	t.mu.Lock()
	t.requests[method] = handler
	t.mu.Unlock()
}

// send writes a message with LSP content-length header.
func (t *Transport) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	header := "Content-Length: " + strconv.Itoa(len(data)) + "\r\n\r\n"

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := io.WriteString(t.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}

	return nil
}

// readLoop reads messages until the stream ends or the context is done.
func (t *Transport) readLoop(ctx context.Context) {
	defer t.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
		}

		msg, err := t.readMessage()
		if err != nil {
			if t.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			if errors.Is(err, ErrMissingContentLength) {
				t.logger.Debug("skipping malformed message", zap.Error(err))
				continue
			}
			t.logger.Warn("lsp read failed", zap.Error(err))
			return
		}

		t.dispatch(msg)
	}
}

// readMessage reads a single LSP message.
func (t *Transport) readMessage() (json.RawMessage, error) {
	contentLength := -1
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "content-length") {
			if length, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				contentLength = length
			}
		}
		// Content-Type and other headers are ignored
	}

	if contentLength < 0 {
		return nil, ErrMissingContentLength
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

// dispatch routes a message to the appropriate handler.
func (t *Transport) dispatch(data json.RawMessage) {
	var msg incoming
	if err := json.Unmarshal(data, &msg); err != nil {
		t.logger.Debug("dropping undecodable message", zap.Error(err))
		return
	}

	hasID := len(msg.ID) > 0 && !bytes.Equal(msg.ID, []byte("null"))
	switch {
	case msg.Method != "" && hasID:
		go t.handleRequest(msg)
	case msg.Method != "":
		t.handleNotification(msg.Method, msg.Params)
	case hasID:
		var id int64
		if err := json.Unmarshal(msg.ID, &id); err != nil {
			t.logger.Debug("dropping response with foreign id", zap.ByteString("id", msg.ID))
			return
		}
		t.handleResponse(&Response{JSONRPC: "2.0", ID: id, Result: msg.Result, Error: msg.Error})
	}
}

// handleResponse routes a response to its waiting caller.
func (t *Transport) handleResponse(resp *Response) {
	if t.closed.Load() {
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[resp.ID]
	if ok {
		delete(t.pending, resp.ID)
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("response without pending request", zap.Int64("id", resp.ID))
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// handleNotification routes a notification to its handler.
func (t *Transport) handleNotification(method string, params json.RawMessage) {
	t.mu.Lock()
	handler, ok := t.handlers[method]
	if !ok {
		handler, ok = t.handlers["*"]
	}
	t.mu.Unlock()

	if ok && handler != nil {
		// Run handler in goroutine to avoid blocking read loop
		go handler(method, params)
	}
}

// handleRequest answers a server-initiated request.
func (t *Transport) handleRequest(msg incoming) {
	t.mu.Lock()
	handler, ok := t.requests[msg.Method]
	t.mu.Unlock()

	out := reply{JSONRPC: "2.0", ID: msg.ID}
	if !ok || handler == nil {
		out.Error = &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + msg.Method}
	} else {
		result, err := handler(msg.Method, msg.Params)
		var rpcErr *RPCError
		switch {
		case err == nil:
			out.Result = result
		case errors.As(err, &rpcErr):
			out.Error = rpcErr
		default:
			out.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
		}
	}

	if t.closed.Load() {
		return
	}
	if err := t.send(out); err != nil {
		t.logger.Debug("reply to server request failed", zap.String("method", msg.Method), zap.Error(err))
	}
}

// IsClosed returns true if the transport has been closed.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}
