// Package rpc defines JSON-RPC 2.0 wire format types for WebSocket communication.
// These types represent the params and result structures for all RPC methods.
package rpc

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mcpbridge/server/diagram"
	"github.com/mcpbridge/server/mcpconn"
	"github.com/mcpbridge/server/session"
)

// Error kinds carried in error.data.kind.
const (
	KindConnection      = "connection_error"
	KindNotConnected    = "not_connected"
	KindToolExecution   = "tool_execution_error"
	KindTimeout         = "timeout"
	KindSessionNotFound = "session_not_found"
	KindPersistence     = "persistence_error"
	KindNotImplemented  = "not_implemented"
	KindInvalidArgument = "invalid_argument"
	KindInternal        = "internal"
)

// Application error codes, in the JSON-RPC server error range.
const (
	CodeConnection      int64 = -32001
	CodeNotConnected    int64 = -32002
	CodeToolExecution   int64 = -32003
	CodeTimeout         int64 = -32004
	CodeSessionNotFound int64 = -32005
	CodePersistence     int64 = -32006
	CodeNotImplemented  int64 = -32007
)

type ErrorData struct {
	Kind string `json:"kind"`
}

// Client → Server

type AuthParams struct {
	Token string `json:"token"`
}

type AuthResult struct {
	Version string `json:"version"`
}

type UnsubscribeParams struct {
	ID string `json:"id"`
}

// Connections

type ConnectParams struct {
	Name string `json:"name"`
	// Config overrides the configured launch command when set.
	Config *mcpconn.ServerConfig `json:"config,omitempty"`
}

type ServerParams struct {
	Name string `json:"name"`
}

type ConnectionListResult struct {
	Connections []mcpconn.Status `json:"connections"`
}

type ConnectionSubscribeResult struct {
	ID          string           `json:"id"`
	Connections []mcpconn.Status `json:"connections"`
}

type ConfigSubscribeResult struct {
	ID string `json:"id"`
}

// Tools

type ToolListParams struct {
	// Server limits the list to one server; empty lists every connected one.
	Server string `json:"server,omitempty"`
}

type ToolInfo struct {
	Server string `json:"server"`
	mcpconn.ToolDescriptor
}

type ToolListResult struct {
	Tools []ToolInfo `json:"tools"`
}

type ToolCallParams struct {
	Server    string         `json:"server"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type ToolCallResult struct {
	Text   string              `json:"text"`
	Result *mcp.CallToolResult `json:"result"`
}

// Diagram

type CreateElementParams = diagram.ElementSpec

type CreateConnectorParams struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Label    string `json:"label,omitempty"`
}

type UpdateElementParams struct {
	CellID string `json:"cell_id"`
	diagram.ElementUpdate
}

type CellParams struct {
	CellID string `json:"cell_id"`
}

type ApplyLayoutParams struct {
	Algorithm string `json:"algorithm"`
}

type ExportParams struct {
	Format string `json:"format"`
}

type DiagramResult = diagram.Result

// Sessions

type SessionParams struct {
	SessionID string `json:"session_id"`
}

type SessionUpdateParams struct {
	SessionID string `json:"session_id"`
	session.Update
}

type SaveMessageParams struct {
	SessionID string          `json:"session_id"`
	Message   session.Message `json:"message"`
}

type SaveDiagramParams struct {
	SessionID string          `json:"session_id"`
	Diagram   session.Diagram `json:"diagram"`
}

type CleanupParams struct {
	// Retention is a Go duration such as "24h"; empty uses the configured window.
	Retention string `json:"retention,omitempty"`
}

type CleanupResult struct {
	Deleted int    `json:"deleted"`
	Error   string `json:"error,omitempty"`
}
