package mcpconn

import "encoding/json"

// ToolDescriptor describes one tool advertised by a server.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolCatalog is the immutable set of tools fetched from one connection.
// A reconnect replaces it wholesale.
type ToolCatalog struct {
	tools  []ToolDescriptor
	byName map[string]int
}

// NewToolCatalog builds a catalog preserving the server's order.
// A duplicated name keeps its first occurrence.
func NewToolCatalog(tools []ToolDescriptor) *ToolCatalog {
	c := &ToolCatalog{
		tools:  make([]ToolDescriptor, 0, len(tools)),
		byName: make(map[string]int, len(tools)),
	}
	for _, t := range tools {
		if _, dup := c.byName[t.Name]; dup {
			continue
		}
		c.byName[t.Name] = len(c.tools)
		c.tools = append(c.tools, t)
	}
	return c
}

// Tools returns a copy of the descriptors.
func (c *ToolCatalog) Tools() []ToolDescriptor {
	if c == nil {
		return nil
	}
	result := make([]ToolDescriptor, len(c.tools))
	copy(result, c.tools)
	return result
}

func (c *ToolCatalog) Lookup(name string) (ToolDescriptor, bool) {
	if c == nil {
		return ToolDescriptor{}, false
	}
	i, ok := c.byName[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return c.tools[i], true
}

func (c *ToolCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.tools)
}
