package mcpconn

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateConnecting, StateConnected, true},
		{StateConnecting, StateFailed, true},
		{StateConnected, StateDisconnected, true},
		{StateConnected, StateFailed, true},
		{StateConnected, StateConnected, true},
		{StateFailed, StateConnecting, true},
		{StateFailed, StateDisconnected, true},
		{StateDisconnected, StateConnected, false},
		{StateDisconnected, StateFailed, false},
		{StateFailed, StateConnected, false},
		{StateConnecting, StateDisconnected, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestToolCatalog(t *testing.T) {
	c := NewToolCatalog([]ToolDescriptor{
		{Name: "add-rectangle"},
		{Name: "add-edge"},
		{Name: "add-rectangle", Description: "duplicate"},
	})

	if c.Len() != 2 {
		t.Fatalf("expected 2 tools, got %d", c.Len())
	}
	if _, ok := c.Lookup("add-edge"); !ok {
		t.Error("expected add-edge to be found")
	}
	if d, _ := c.Lookup("add-rectangle"); d.Description == "duplicate" {
		t.Error("expected first occurrence to win")
	}

	tools := c.Tools()
	tools[0].Name = "mutated"
	if _, ok := c.Lookup("add-rectangle"); !ok {
		t.Error("Tools must return a copy")
	}

	var nilCatalog *ToolCatalog
	if nilCatalog.Len() != 0 || nilCatalog.Tools() != nil {
		t.Error("nil catalog should be empty")
	}
}

func TestServerConfig_EqualAndEnviron(t *testing.T) {
	a := ServerConfig{Name: "aws_diagram", Command: "python", Args: []string{"wrapper.py"}, Env: map[string]string{"B": "2", "A": "1"}}
	b := a
	b.Env = map[string]string{"A": "1", "B": "2"}

	if !a.Equal(b) {
		t.Error("expected equal configs")
	}
	b.Args = []string{"other.py"}
	if a.Equal(b) {
		t.Error("expected configs with different args to differ")
	}

	env := a.Environ()
	if len(env) != 2 || env[0] != "A=1" || env[1] != "B=2" {
		t.Errorf("unexpected environ %v", env)
	}
}
