package mcpconn

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ServerConfig describes how to launch one tool process.
type ServerConfig struct {
	Name    string            `mapstructure:"name" toml:"name" json:"name"`
	Command string            `mapstructure:"command" toml:"command" json:"command"`
	Args    []string          `mapstructure:"args" toml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `mapstructure:"env" toml:"env,omitempty" json:"env,omitempty"`
}

// Environ renders Env as sorted KEY=VALUE pairs.
func (c ServerConfig) Environ() []string {
	keys := slices.Sorted(maps.Keys(c.Env))
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+c.Env[k])
	}
	return env
}

// Equal reports whether both configs launch the same process.
func (c ServerConfig) Equal(other ServerConfig) bool {
	return c.Name == other.Name &&
		c.Command == other.Command &&
		slices.Equal(c.Args, other.Args) &&
		maps.Equal(c.Env, other.Env)
}

func (c ServerConfig) String() string {
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Args, " "))
}

// Transport is an established channel to one tool process.
// The Manager owns it exclusively.
type Transport interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, tool string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer establishes a Transport for a server.
type Dialer interface {
	Dial(ctx context.Context, cfg ServerConfig) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, cfg ServerConfig) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, cfg ServerConfig) (Transport, error) {
	return f(ctx, cfg)
}

// ResultText joins the text content blocks of a tool result.
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
