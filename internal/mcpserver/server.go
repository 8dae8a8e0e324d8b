// Package mcpserver exposes the orchestrator's tool registry over the
// Model Context Protocol: JSON-RPC 2.0 over HTTP POST, with responses
// streamed as Server-Sent Events when the client asks for them.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pravnyk/internal/config"
	"pravnyk/internal/logging"
	"pravnyk/internal/orchestrator"
	"pravnyk/internal/types"
)

// Supported protocol revisions, newest last. initialize echoes the
// client's version when it is on this list and answers with the newest
// revision otherwise.
var supportedVersions = []string{"2024-11-05", "2025-11-05", "2025-11-25"}

// JSON-RPC error codes. The two tool codes split execution failures by
// whether the caller may retry.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeToolFailed     = -32001
	codeToolRetryable  = -32002
)

// rpcRequest is an incoming JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcResponse is an outgoing JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Server serves the MCP endpoint.
type Server struct {
	orch *orchestrator.Orchestrator
	cfg  config.ServerConfig
	name string
	ver  string
}

// New builds an MCP server over the given orchestrator.
func New(orch *orchestrator.Orchestrator, cfg config.ServerConfig, name, version string) *Server {
	return &Server{orch: orch, cfg: cfg, name: name, ver: version}
}

// Handler returns the HTTP handler: the MCP endpoint at /mcp plus a
// liveness probe at /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleRPC)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logging.MCP("mcp endpoint listening on %s", s.cfg.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, &rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "parse error"}})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeJSON(w, &rpcResponse{JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: codeInvalidRequest, Message: "invalid request"}})
		return
	}

	if !s.authorized(r, req.Method) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintln(w, "unauthorized")
		return
	}

	sse := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	var stream *sseWriter
	if sse {
		stream = newSSEWriter(w)
	}

	resp := s.dispatch(r.Context(), &req, stream)

	if sse {
		stream.sendJSON(resp)
		return
	}
	writeJSON(w, resp)
}

// dispatch routes one request to its method handler. stream is non-nil
// when the client accepts SSE; tools/call uses it for progress events.
func (s *Server) dispatch(ctx context.Context, req *rpcRequest, stream *sseWriter) *rpcResponse {
	resp := &rpcResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = s.initialize(req.Params)
	case "ping":
		resp.Result = map[string]any{}
	case "tools/list":
		resp.Result = s.listTools()
	case "tools/call":
		result, rpcErr := s.callTool(ctx, req.Params, stream)
		resp.Result, resp.Error = result, rpcErr
	case "prompts/list":
		resp.Result = map[string]any{"prompts": []any{}}
	case "resources/list":
		resp.Result = map[string]any{"resources": []any{}}
	default:
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
	}
	return resp
}

func (s *Server) initialize(params json.RawMessage) map[string]any {
	var p struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	_ = json.Unmarshal(params, &p)

	negotiated := supportedVersions[len(supportedVersions)-1]
	for _, v := range supportedVersions {
		if v == p.ProtocolVersion {
			negotiated = v
			break
		}
	}
	return map[string]any{
		"protocolVersion": negotiated,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"prompts":   map[string]any{"listChanged": false},
			"resources": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{"name": s.name, "version": s.ver},
	}
}

// mcpTool is the tools/list wire shape.
type mcpTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

func (s *Server) listTools() map[string]any {
	registered := s.orch.Tools()
	tools := make([]mcpTool, 0, len(registered))
	for _, t := range registered {
		tools = append(tools, mcpTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: map[string]any{
				"type":       "object",
				"required":   t.Schema.Required,
				"properties": t.Schema.Properties,
			},
		})
	}
	return map[string]any{"tools": tools}
}

// callTool executes one tool. An unknown tool name comes back as an
// isError tool result, per protocol; execution failures map to the
// retryable or non-retryable JSON-RPC error code.
func (s *Server) callTool(ctx context.Context, params json.RawMessage, stream *sseWriter) (any, *rpcError) {
	var p struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return nil, &rpcError{Code: codeInvalidRequest, Message: "tools/call requires a tool name"}
	}

	if s.orch.Lookup(p.Name) == nil {
		return toolErrorResult("unknown tool: " + p.Name), nil
	}

	if stream != nil {
		stream.sendJSON(map[string]any{
			"jsonrpc": "2.0",
			"method":  "notifications/progress",
			"params":  map[string]any{"message": "executing " + p.Name},
		})
	}

	start := time.Now()
	result, err := s.orch.Execute(ctx, p.Name, p.Arguments)
	if err != nil {
		code := codeToolFailed
		if types.Retryable(err) {
			code = codeToolRetryable
		}
		logging.MCP("tools/call %s failed after %v: %v", p.Name, time.Since(start), err)
		return nil, &rpcError{
			Code:    code,
			Message: err.Error(),
			Data:    map[string]any{"kind": string(types.KindOf(err))},
		}
	}

	encoded, merr := json.Marshal(result)
	if merr != nil {
		return nil, &rpcError{Code: codeToolFailed, Message: "result encoding failed: " + merr.Error()}
	}
	logging.MCPDebug("tools/call %s completed in %v", p.Name, time.Since(start))
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(encoded)}},
		"isError": false,
	}, nil
}

func toolErrorResult(msg string) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": msg}},
		"isError": true,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// sseWriter frames JSON payloads as Server-Sent Events and flushes after
// every event.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) sendJSON(v any) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", encoded)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
