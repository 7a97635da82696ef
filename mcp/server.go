// Package mcp implements a stdio MCP server that re-exports the bridge's
// diagram operations, so an agent can draw through the bridge's managed
// connections instead of spawning drawio-mcp-server itself.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mcpbridge/server/diagram"
	"github.com/mcpbridge/server/mcpconn"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "mcp-bridge"

	// Exported diagrams can exceed bufio's default 64KB line limit.
	maxLineSize = 1024 * 1024
)

// StatusSource reports connection state for the connection_status tool.
type StatusSource interface {
	GetAllConnectionStatuses() []mcpconn.Status
}

type Server struct {
	invoker  *diagram.Invoker
	statuses StatusSource
	info     mcp.Implementation
}

func NewServer(invoker *diagram.Invoker, statuses StatusSource, version string) *Server {
	return &Server{
		invoker:  invoker,
		statuses: statuses,
		info:     mcp.Implementation{Name: serverName, Version: version},
	}
}

// Run reads one JSON-RPC 2.0 message per line from in and writes one
// response per request to out. It returns when in is exhausted or ctx ends.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(enc, errorResponse(nil, mcp.PARSE_ERROR, "Parse error"))
			continue
		}
		if req.ID == nil {
			slog.Debug("received MCP notification", "method", req.Method)
			continue
		}
		s.write(enc, s.handle(ctx, &req))
	}
	return scanner.Err()
}

func (s *Server) write(enc *json.Encoder, resp response) {
	if err := enc.Encode(resp); err != nil {
		slog.Error("failed to write MCP response", "error", err)
		if resp.Error == nil {
			// The result could not be encoded; the id still gets an answer.
			_ = enc.Encode(errorResponse(resp.ID, mcp.INTERNAL_ERROR, "Internal error: failed to marshal result"))
		}
	}
}

func (s *Server) handle(ctx context.Context, req *request) response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, initializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    capabilities{Tools: &struct{}{}},
			ServerInfo:      s.info,
		})
	case "ping":
		return resultResponse(req.ID, struct{}{})
	case "tools/list":
		return resultResponse(req.ID, toolsListResult{Tools: toolDefinitions})
	case "tools/call":
		return s.callTool(ctx, req)
	default:
		return errorResponse(req.ID, mcp.METHOD_NOT_FOUND, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (s *Server) callTool(ctx context.Context, req *request) response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, mcp.INVALID_PARAMS, "Invalid params")
	}
	handler, ok := s.getToolHandler(params.Name)
	if !ok {
		return errorResponse(req.ID, mcp.INVALID_PARAMS, fmt.Sprintf("Unknown tool: %s", params.Name))
	}

	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	result := handler(ctx, args)
	if result.IsError {
		slog.Warn("tool call failed", "tool", params.Name, "result", mcpconn.ResultText(result))
	}
	return resultResponse(req.ID, result)
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// response.ID is a null JSON value for parse errors.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func resultResponse(id json.RawMessage, result any) response {
	return response{JSONRPC: mcp.JSONRPC_VERSION, ID: nullable(id), Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) response {
	return response{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      nullable(id),
		Error:   &responseError{Code: code, Message: message},
	}
}

func nullable(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    capabilities       `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
}

type capabilities struct {
	Tools *struct{} `json:"tools,omitempty"`
}

type toolsListResult struct {
	Tools []mcp.Tool `json:"tools"`
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
