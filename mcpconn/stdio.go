package mcpconn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// StdioDialer launches the server as a child process and speaks MCP over
// its stdin/stdout.
type StdioDialer struct {
	ClientName    string
	ClientVersion string
}

func (d StdioDialer) Dial(ctx context.Context, cfg ServerConfig) (Transport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("server %s: command is empty", cfg.Name)
	}

	c, err := client.NewStdioMCPClient(cfg.Command, cfg.Environ(), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg, err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    d.clientName(),
		Version: d.ClientVersion,
	}
	if _, err := c.Initialize(ctx, req); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize %s: %w", cfg.Name, err)
	}

	return &stdioTransport{client: c}, nil
}

func (d StdioDialer) clientName() string {
	if d.ClientName == "" {
		return "mcp-bridge"
	}
	return d.ClientName
}

type stdioTransport struct {
	client *client.Client
}

func (t *stdioTransport) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	res, err := t.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	tools := make([]ToolDescriptor, 0, len(res.Tools))
	for _, tool := range res.Tools {
		schema := tool.RawInputSchema
		if len(schema) == 0 {
			if schema, err = json.Marshal(tool.InputSchema); err != nil {
				return nil, fmt.Errorf("encode schema of %s: %w", tool.Name, err)
			}
		}
		tools = append(tools, ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return tools, nil
}

func (t *stdioTransport) CallTool(ctx context.Context, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	return t.client.CallTool(ctx, req)
}

func (t *stdioTransport) Close() error {
	return t.client.Close()
}
