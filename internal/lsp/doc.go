// Package lsp is the rust-analyzer client used by cargorun.
//
// It speaks JSON-RPC 2.0 with Content-Length framing over the server's stdio
// and exposes only what runnable discovery needs:
//
//   - Transport: framing, request/response correlation, notifications and
//     answers to requests the server initiates
//   - Server: process lifecycle, the initialize handshake, document sync,
//     quiescence tracking and the experimental/runnables request
//
// # Quick Start
//
//	server := lsp.NewServer(lsp.DefaultRustAnalyzerConfig(), lsp.WithServerLogger(logger))
//	if err := server.Start(ctx, []lsp.WorkspaceFolder{lsp.WorkspaceFolderFromPath(root)}); err != nil {
//	    return err
//	}
//	defer server.Shutdown(ctx)
//
//	_ = server.WaitQuiescent(ctx)
//	runnables, err := server.Runnables(ctx, "/path/to/src/lib.rs", &lsp.Position{Line: 10})
//
// # Runnable kinds
//
// RunnableKind is a closed set. Kinds the client cannot execute still decode
// so callers can report them; Supported distinguishes the two.
//
// # Thread Safety
//
// Server and Transport are safe for concurrent use.
package lsp
