package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mcpbridge/server/diagram"
)

// geometry adds the optional label, position, size and style properties
// shared by create_element and update_element.
func geometry(labelRequired bool) []mcp.ToolOption {
	labelOpts := []mcp.PropertyOption{mcp.Description("Text shown on the element")}
	if labelRequired {
		labelOpts = append(labelOpts, mcp.Required())
	}
	return []mcp.ToolOption{
		mcp.WithString("label", labelOpts...),
		mcp.WithNumber("x", mcp.Description("Left edge in pixels")),
		mcp.WithNumber("y", mcp.Description("Top edge in pixels")),
		mcp.WithNumber("width", mcp.Description("Width in pixels")),
		mcp.WithNumber("height", mcp.Description("Height in pixels")),
		mcp.WithString("style", mcp.Description("Raw drawio style string")),
	}
}

func tool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)...)
}

var toolDefinitions = []mcp.Tool{
	tool("create_element",
		"Add a shape to the diagram. The type picks an AWS icon style (ec2, s3, lambda, ...); unknown types get a plain rounded box.",
		append(geometry(true),
			mcp.WithString("type", mcp.Required(), mcp.Description("Shape type, e.g. ec2 or rds")),
		)...,
	),
	tool("create_connector", "Connect two existing cells with an arrow.",
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Cell ID the arrow starts at")),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("Cell ID the arrow points to")),
		mcp.WithString("label", mcp.Description("Text shown on the arrow")),
	),
	tool("update_element",
		"Change the label, geometry, or style of a cell. Omitted fields are left untouched.",
		append(geometry(false),
			mcp.WithString("cell_id", mcp.Required(), mcp.Description("Cell to update")),
		)...,
	),
	tool("delete_element", "Remove a cell from the diagram.",
		mcp.WithString("cell_id", mcp.Required(), mcp.Description("Cell to delete")),
	),
	tool("apply_layout",
		"Arrange the diagram automatically. Fails with not_implemented when the drawio server has no layout tool.",
		mcp.WithString("algorithm", mcp.Required(), mcp.Description("Layout algorithm"),
			mcp.Enum("hierarchical", "circle", "organic")),
	),
	tool("export_diagram",
		"Export the diagram. Fails with not_implemented when the drawio server has no export tool.",
		mcp.WithString("format", mcp.Required(), mcp.Description("Output format"),
			mcp.Enum("xml", "png", "svg")),
	),
	tool("connection_status", "Report the state of every MCP server the bridge manages."),
}

type toolHandler func(ctx context.Context, args json.RawMessage) *mcp.CallToolResult

func (s *Server) getToolHandler(name string) (toolHandler, bool) {
	handlers := map[string]toolHandler{
		"create_element":    s.handleCreateElement,
		"create_connector":  s.handleCreateConnector,
		"update_element":    s.handleUpdateElement,
		"delete_element":    s.handleDeleteElement,
		"apply_layout":      s.handleApplyLayout,
		"export_diagram":    s.handleExport,
		"connection_status": s.handleConnectionStatus,
	}
	h, ok := handlers[name]
	return h, ok
}

func (s *Server) handleCreateElement(ctx context.Context, args json.RawMessage) *mcp.CallToolResult {
	var spec diagram.ElementSpec
	if err := json.Unmarshal(args, &spec); err != nil {
		return ValidationError("invalid arguments: " + err.Error())
	}
	if spec.Type == "" {
		return ValidationError("type is required")
	}
	return diagramResult(s.invoker.CreateElement(ctx, spec))
}

func (s *Server) handleCreateConnector(ctx context.Context, args json.RawMessage) *mcp.CallToolResult {
	var params struct {
		SourceID string `json:"source_id"`
		TargetID string `json:"target_id"`
		Label    string `json:"label"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ValidationError("invalid arguments: " + err.Error())
	}
	return diagramResult(s.invoker.CreateConnector(ctx, params.SourceID, params.TargetID, params.Label))
}

func (s *Server) handleUpdateElement(ctx context.Context, args json.RawMessage) *mcp.CallToolResult {
	var params struct {
		CellID string `json:"cell_id"`
		diagram.ElementUpdate
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ValidationError("invalid arguments: " + err.Error())
	}
	return diagramResult(s.invoker.UpdateElement(ctx, params.CellID, params.ElementUpdate))
}

func (s *Server) handleDeleteElement(ctx context.Context, args json.RawMessage) *mcp.CallToolResult {
	var params struct {
		CellID string `json:"cell_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ValidationError("invalid arguments: " + err.Error())
	}
	return diagramResult(s.invoker.DeleteElement(ctx, params.CellID))
}

func (s *Server) handleApplyLayout(ctx context.Context, args json.RawMessage) *mcp.CallToolResult {
	var params struct {
		Algorithm string `json:"algorithm"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ValidationError("invalid arguments: " + err.Error())
	}
	return diagramResult(s.invoker.ApplyLayout(ctx, params.Algorithm))
}

func (s *Server) handleExport(ctx context.Context, args json.RawMessage) *mcp.CallToolResult {
	var params struct {
		Format string `json:"format"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ValidationError("invalid arguments: " + err.Error())
	}
	return diagramResult(s.invoker.Export(ctx, params.Format))
}

func (s *Server) handleConnectionStatus(ctx context.Context, args json.RawMessage) *mcp.CallToolResult {
	return jsonResult(s.statuses.GetAllConnectionStatuses())
}

func diagramResult(res *diagram.Result, err error) *mcp.CallToolResult {
	if err != nil {
		return FromError(err)
	}
	return jsonResult(res)
}

func jsonResult(v any) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data))
}
