package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mcpbridge/server/mcpconn"
)

const maxCallBody = 8 << 20

// ToolCaller runs one tool on a named server. mcpconn.Manager implements it.
type ToolCaller interface {
	CallTool(ctx context.Context, name, tool string, args map[string]any) (*mcp.CallToolResult, error)
}

type callToolRequest struct {
	// Server may be omitted when Name is "<server>_<tool>".
	Server    string         `json:"server"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type callToolResponse struct {
	Server string              `json:"server"`
	Tool   string              `json:"tool"`
	Text   string              `json:"text"`
	Result *mcp.CallToolResult `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleCallTool serves POST /call-tool. Timeouts answer 504 and servers
// that are not connected 503; a failure reported by the tool answers 502.
func (h *Handler) HandleCallTool(w http.ResponseWriter, r *http.Request) {
	var req callToolRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCallBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tool name required"})
		return
	}
	server, tool := req.Server, req.Name
	if server == "" {
		var ok bool
		if server, tool, ok = h.splitToolName(req.Name); !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "server required for tool " + req.Name})
			return
		}
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	res, err := h.caller.CallTool(r.Context(), server, tool, req.Arguments)
	if err != nil {
		status := callStatus(err)
		slog.Warn("http tool call failed", "server", server, "tool", tool, "status", status, "error", err)
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, callToolResponse{
		Server: server,
		Tool:   tool,
		Text:   mcpconn.ResultText(res),
		Result: res,
	})
}

// splitToolName resolves "<server>_<tool>" against the known servers.
// The longest matching server name wins, as names may contain "_".
func (h *Handler) splitToolName(name string) (string, string, bool) {
	var server string
	for _, s := range h.source.GetAllConnectionStatuses() {
		if strings.HasPrefix(name, s.Name+"_") && len(s.Name) > len(server) {
			server = s.Name
		}
	}
	if server == "" {
		return "", "", false
	}
	return server, strings.TrimPrefix(name, server+"_"), true
}

func callStatus(err error) int {
	var (
		timeoutErr *mcpconn.CallTimeoutError
		toolErr    *mcpconn.ToolExecutionError
	)
	switch {
	case errors.Is(err, mcpconn.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &toolErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
