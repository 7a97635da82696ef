// Package diagram maps diagram operations onto tool calls against the
// drawio MCP server.
package diagram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mcpbridge/server/mcpconn"
)

const DefaultServer = "drawio"

// Tool names of drawio-mcp-server.
const (
	ToolAddRectangle = "add-rectangle"
	ToolAddEdge      = "add-edge"
	ToolEditCell     = "edit-cell"
	ToolDeleteCell   = "delete-cell-by-id"
	ToolApplyLayout  = "apply-layout"
	ToolExport       = "export-diagram"
)

// ToolCaller is the part of mcpconn.Manager the Invoker needs.
type ToolCaller interface {
	CallTool(ctx context.Context, name, tool string, args map[string]any) (*mcp.CallToolResult, error)
	ListTools(name string) ([]mcpconn.ToolDescriptor, error)
}

// ElementSpec describes a new shape.
type ElementSpec struct {
	Type   ShapeType `json:"type"`
	Label  string    `json:"label"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Width  float64   `json:"width,omitempty"`
	Height float64   `json:"height,omitempty"`
	// Style overrides the style derived from Type.
	Style string `json:"style,omitempty"`
}

// ElementUpdate is a partial update; nil fields are left untouched.
type ElementUpdate struct {
	Label  *string  `json:"label,omitempty"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Style  *string  `json:"style,omitempty"`
}

func (u ElementUpdate) empty() bool {
	return u.Label == nil && u.X == nil && u.Y == nil && u.Width == nil && u.Height == nil && u.Style == nil
}

// Result is the outcome of a diagram tool call.
type Result struct {
	Text string `json:"text"`
	// CellID is parsed from Text when the server reports one.
	CellID string `json:"cellId,omitempty"`
}

// Invoker is stateless apart from the server name it targets. It never
// retries; errors from the connection layer are returned as they are.
type Invoker struct {
	caller ToolCaller
	server string
	log    *slog.Logger
}

func NewInvoker(caller ToolCaller, server string) *Invoker {
	if server == "" {
		server = DefaultServer
	}
	return &Invoker{
		caller: caller,
		server: server,
		log:    slog.With("server", server),
	}
}

func (inv *Invoker) Server() string {
	return inv.server
}

func (inv *Invoker) CreateElement(ctx context.Context, spec ElementSpec) (*Result, error) {
	width, height := spec.Width, spec.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	style := spec.Style
	if style == "" {
		style = StyleFor(spec.Type)
	}
	return inv.call(ctx, ToolAddRectangle, map[string]any{
		"x":      spec.X,
		"y":      spec.Y,
		"width":  width,
		"height": height,
		"text":   spec.Label,
		"style":  style,
	})
}

func (inv *Invoker) CreateConnector(ctx context.Context, sourceID, targetID, label string) (*Result, error) {
	if sourceID == "" || targetID == "" {
		return nil, fmt.Errorf("%w: connector needs source and target ids", ErrInvalidArgument)
	}
	return inv.call(ctx, ToolAddEdge, map[string]any{
		"source_id": sourceID,
		"target_id": targetID,
		"text":      label,
		"style":     EdgeStyle,
	})
}

// UpdateElement sends only the fields set in update.
func (inv *Invoker) UpdateElement(ctx context.Context, cellID string, update ElementUpdate) (*Result, error) {
	if cellID == "" {
		return nil, fmt.Errorf("%w: cell id is required", ErrInvalidArgument)
	}
	if update.empty() {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidArgument)
	}

	args := map[string]any{"cell_id": cellID}
	if update.Label != nil {
		args["text"] = *update.Label
	}
	if update.X != nil {
		args["x"] = *update.X
	}
	if update.Y != nil {
		args["y"] = *update.Y
	}
	if update.Width != nil {
		args["width"] = *update.Width
	}
	if update.Height != nil {
		args["height"] = *update.Height
	}
	if update.Style != nil {
		args["style"] = *update.Style
	}
	return inv.call(ctx, ToolEditCell, args)
}

func (inv *Invoker) DeleteElement(ctx context.Context, cellID string) (*Result, error) {
	if cellID == "" {
		return nil, fmt.Errorf("%w: cell id is required", ErrInvalidArgument)
	}
	return inv.call(ctx, ToolDeleteCell, map[string]any{"cell_id": cellID})
}

// ApplyLayout fails with NotImplementedError unless the server advertises
// a layout tool.
func (inv *Invoker) ApplyLayout(ctx context.Context, algorithm string) (*Result, error) {
	if algorithm == "" {
		return nil, fmt.Errorf("%w: layout algorithm is required", ErrInvalidArgument)
	}
	if err := inv.require(ToolApplyLayout, "apply layout"); err != nil {
		return nil, err
	}
	return inv.call(ctx, ToolApplyLayout, map[string]any{"algorithm": algorithm})
}

// Export fails with NotImplementedError unless the server advertises an
// export tool.
func (inv *Invoker) Export(ctx context.Context, format string) (*Result, error) {
	if format == "" {
		return nil, fmt.Errorf("%w: export format is required", ErrInvalidArgument)
	}
	if err := inv.require(ToolExport, "export"); err != nil {
		return nil, err
	}
	return inv.call(ctx, ToolExport, map[string]any{"format": format})
}

func (inv *Invoker) require(tool, operation string) error {
	tools, err := inv.caller.ListTools(inv.server)
	if err != nil {
		return err
	}
	for _, t := range tools {
		if t.Name == tool {
			return nil
		}
	}
	return &NotImplementedError{Operation: operation, Server: inv.server}
}

func (inv *Invoker) call(ctx context.Context, tool string, args map[string]any) (*Result, error) {
	res, err := inv.caller.CallTool(ctx, inv.server, tool, args)
	if err != nil {
		return nil, err
	}
	text := mcpconn.ResultText(res)
	result := &Result{Text: text, CellID: parseCellID(text)}
	inv.log.Debug("diagram tool called", "tool", tool, "cellId", result.CellID)
	return result, nil
}

var cellIDPattern = regexp.MustCompile(`(?i)\b(?:cell[_ ]?)?id["']?\s*[:=]\s*["']?([\w-]+)`)

// parseCellID extracts a cell id from a tool response. Responses are usually
// a JSON object, but some servers answer with prose.
func parseCellID(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		for _, key := range []string{"id", "cell_id", "cellId"} {
			if v, ok := obj[key]; ok {
				switch id := v.(type) {
				case string:
					return id
				case float64:
					return fmt.Sprintf("%g", id)
				}
			}
		}
		if cell, ok := obj["cell"].(map[string]any); ok {
			if id, ok := cell["id"].(string); ok {
				return id
			}
		}
		return ""
	}

	if m := cellIDPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
