package diagram

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mcpbridge/server/mcpconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toolCall struct {
	server string
	tool   string
	args   map[string]any
}

type fakeCaller struct {
	tools   []mcpconn.ToolDescriptor
	listErr error
	callErr error
	reply   string
	calls   []toolCall
}

func (f *fakeCaller) CallTool(_ context.Context, name, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	f.calls = append(f.calls, toolCall{server: name, tool: tool, args: args})
	if f.callErr != nil {
		return nil, f.callErr
	}
	return mcp.NewToolResultText(f.reply), nil
}

func (f *fakeCaller) ListTools(string) ([]mcpconn.ToolDescriptor, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func ptr[T any](v T) *T { return &v }

func TestInvoker_CreateElement(t *testing.T) {
	caller := &fakeCaller{reply: `{"id":"cell-7","value":"Web"}`}
	inv := NewInvoker(caller, "")

	res, err := inv.CreateElement(context.Background(), ElementSpec{Type: "EC2", Label: "Web", X: 10, Y: 20})
	require.NoError(t, err)
	assert.Equal(t, "cell-7", res.CellID)

	require.Len(t, caller.calls, 1)
	call := caller.calls[0]
	assert.Equal(t, DefaultServer, call.server)
	assert.Equal(t, ToolAddRectangle, call.tool)
	assert.Equal(t, map[string]any{
		"x":      10.0,
		"y":      20.0,
		"width":  float64(DefaultWidth),
		"height": float64(DefaultHeight),
		"text":   "Web",
		"style":  StyleFor("ec2"),
	}, call.args)
	assert.Contains(t, call.args["style"], "resIcon=mxgraph.aws4.ec2")
	assert.Contains(t, call.args["style"], "fillColor=#ED7100")
}

func TestInvoker_CreateElement_UnknownTypeUsesDefaultStyle(t *testing.T) {
	caller := &fakeCaller{}
	inv := NewInvoker(caller, "")

	_, err := inv.CreateElement(context.Background(), ElementSpec{Type: "widget", Width: 120, Height: 40})
	require.NoError(t, err)

	args := caller.calls[0].args
	assert.Equal(t, DefaultStyle, args["style"])
	assert.Equal(t, 120.0, args["width"])
	assert.Equal(t, 40.0, args["height"])
}

func TestInvoker_CreateElement_ExplicitStyleWins(t *testing.T) {
	caller := &fakeCaller{}
	inv := NewInvoker(caller, "")

	_, err := inv.CreateElement(context.Background(), ElementSpec{Type: "s3", Style: "ellipse;"})
	require.NoError(t, err)
	assert.Equal(t, "ellipse;", caller.calls[0].args["style"])
}

func TestInvoker_CreateConnector(t *testing.T) {
	caller := &fakeCaller{reply: "Created edge with id: edge-1"}
	inv := NewInvoker(caller, "drawio")

	res, err := inv.CreateConnector(context.Background(), "a", "b", "calls")
	require.NoError(t, err)
	assert.Equal(t, "edge-1", res.CellID)
	assert.Equal(t, ToolAddEdge, caller.calls[0].tool)
	assert.Equal(t, map[string]any{
		"source_id": "a",
		"target_id": "b",
		"text":      "calls",
		"style":     EdgeStyle,
	}, caller.calls[0].args)
}

func TestInvoker_CreateConnector_RequiresIDs(t *testing.T) {
	caller := &fakeCaller{}
	inv := NewInvoker(caller, "")

	_, err := inv.CreateConnector(context.Background(), "", "b", "")
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, caller.calls)
}

func TestInvoker_UpdateElement_SendsOnlySuppliedFields(t *testing.T) {
	caller := &fakeCaller{}
	inv := NewInvoker(caller, "")

	_, err := inv.UpdateElement(context.Background(), "cell-1", ElementUpdate{Label: ptr("DB"), Width: ptr(80.0)})
	require.NoError(t, err)
	assert.Equal(t, ToolEditCell, caller.calls[0].tool)
	assert.Equal(t, map[string]any{
		"cell_id": "cell-1",
		"text":    "DB",
		"width":   80.0,
	}, caller.calls[0].args)
}

func TestInvoker_UpdateElement_Empty(t *testing.T) {
	caller := &fakeCaller{}
	inv := NewInvoker(caller, "")

	_, err := inv.UpdateElement(context.Background(), "cell-1", ElementUpdate{})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, caller.calls)
}

func TestInvoker_DeleteElement(t *testing.T) {
	caller := &fakeCaller{reply: "deleted"}
	inv := NewInvoker(caller, "")

	res, err := inv.DeleteElement(context.Background(), "cell-9")
	require.NoError(t, err)
	assert.Equal(t, "deleted", res.Text)
	assert.Equal(t, ToolDeleteCell, caller.calls[0].tool)
	assert.Equal(t, map[string]any{"cell_id": "cell-9"}, caller.calls[0].args)
}

func TestInvoker_ApplyLayout_NotImplemented(t *testing.T) {
	caller := &fakeCaller{tools: []mcpconn.ToolDescriptor{{Name: ToolAddRectangle}}}
	inv := NewInvoker(caller, "")

	_, err := inv.ApplyLayout(context.Background(), "hierarchical")
	require.ErrorIs(t, err, ErrNotImplemented)

	var nie *NotImplementedError
	require.ErrorAs(t, err, &nie)
	assert.Equal(t, DefaultServer, nie.Server)
	assert.Empty(t, caller.calls)
}

func TestInvoker_ApplyLayout_Advertised(t *testing.T) {
	caller := &fakeCaller{tools: []mcpconn.ToolDescriptor{{Name: ToolApplyLayout}}}
	inv := NewInvoker(caller, "")

	_, err := inv.ApplyLayout(context.Background(), "organic")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"algorithm": "organic"}, caller.calls[0].args)
}

func TestInvoker_Export_NotImplemented(t *testing.T) {
	inv := NewInvoker(&fakeCaller{}, "")

	_, err := inv.Export(context.Background(), "png")
	require.ErrorIs(t, err, ErrNotImplemented)
}

func TestInvoker_Export_NotConnected(t *testing.T) {
	notConnected := &mcpconn.NotConnectedError{Name: "drawio", State: mcpconn.StateDisconnected}
	inv := NewInvoker(&fakeCaller{listErr: notConnected}, "")

	_, err := inv.Export(context.Background(), "svg")
	require.ErrorIs(t, err, mcpconn.ErrNotConnected)
}

func TestInvoker_PropagatesConnectionErrors(t *testing.T) {
	timeout := &mcpconn.CallTimeoutError{Name: "drawio", Tool: ToolAddRectangle, Err: context.DeadlineExceeded}
	caller := &fakeCaller{callErr: timeout}
	inv := NewInvoker(caller, "")

	_, err := inv.CreateElement(context.Background(), ElementSpec{Type: "s3"})
	var got *mcpconn.CallTimeoutError
	require.ErrorAs(t, err, &got)
	assert.Same(t, timeout, got)
	assert.Len(t, caller.calls, 1, "invoker must not retry")
}

func TestInvoker_PropagatesToolErrors(t *testing.T) {
	toolErr := &mcpconn.ToolExecutionError{Name: "drawio", Tool: ToolDeleteCell, Message: "no such cell"}
	inv := NewInvoker(&fakeCaller{callErr: toolErr}, "")

	_, err := inv.DeleteElement(context.Background(), "missing")
	assert.True(t, errors.Is(err, toolErr))
}

func TestStyleFor(t *testing.T) {
	tests := []struct {
		in       ShapeType
		contains string
	}{
		{"s3", "fillColor=#009900"},
		{"API Gateway", "resIcon=mxgraph.aws4.api_gateway"},
		{"route53", "resIcon=mxgraph.aws4.route_53"},
		{"step-functions", "resIcon=mxgraph.aws4.step_functions"},
		{"Bedrock", "fillColor=#01A88D"},
		{"user", "shape=mxgraph.aws4.user"},
		{"", "rounded=1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Contains(t, StyleFor(tt.in), tt.contains)
		})
	}
	assert.True(t, KnownShape("KMS"))
	assert.False(t, KnownShape("mainframe"))
}

func TestParseCellID(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"json id", `{"id":"abc"}`, "abc"},
		{"json numeric id", `{"id":42}`, "42"},
		{"json cell_id", `{"cell_id":"x-1"}`, "x-1"},
		{"nested cell", `{"cell":{"id":"n1"}}`, "n1"},
		{"json without id", `{"ok":true}`, ""},
		{"prose", "Cell created, ID: r2d2", "r2d2"},
		{"prose without id", "done", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCellID(tt.text))
		})
	}
}
