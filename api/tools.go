// Package api serves the plain HTTP endpoints next to the WebSocket RPC.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/mcpbridge/server/mcpconn"
)

// ConnectionSource is the read side of mcpconn.Manager.
type ConnectionSource interface {
	GetAllConnectionStatuses() []mcpconn.Status
	ListTools(name string) ([]mcpconn.ToolDescriptor, error)
}

type Handler struct {
	source ConnectionSource
	caller ToolCaller
}

func NewHandler(source ConnectionSource, caller ToolCaller) *Handler {
	return &Handler{source: source, caller: caller}
}

type healthResponse struct {
	Status       string           `json:"status"`
	MCPConnected bool             `json:"mcp_connected"`
	ToolsLoaded  int              `json:"tools_loaded"`
	Connections  []mcpconn.Status `json:"connections"`
}

type toolEntry struct {
	Server string `json:"server"`
	mcpconn.ToolDescriptor
}

type toolsResponse struct {
	Tools []toolEntry `json:"tools"`
}

// HandleHealth reports "degraded" while any known server is not connected.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := h.statuses()

	resp := healthResponse{Status: "ok", Connections: statuses}
	for _, s := range statuses {
		if s.State == mcpconn.StateConnected {
			resp.MCPConnected = true
			resp.ToolsLoaded += s.ToolCount
		} else {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleTools(w http.ResponseWriter, r *http.Request) {
	resp := toolsResponse{Tools: []toolEntry{}}
	for _, s := range h.statuses() {
		if s.State != mcpconn.StateConnected {
			continue
		}
		tools, err := h.source.ListTools(s.Name)
		if err != nil {
			continue
		}
		for _, t := range tools {
			resp.Tools = append(resp.Tools, toolEntry{Server: s.Name, ToolDescriptor: t})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) statuses() []mcpconn.Status {
	statuses := h.source.GetAllConnectionStatuses()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	if statuses == nil {
		statuses = []mcpconn.Status{}
	}
	return statuses
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
