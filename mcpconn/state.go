package mcpconn

import (
	"slices"
	"time"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// transitions lists the allowed target states for each state.
// Staying in the same state is always allowed and is not listed.
var transitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateFailed},
	StateConnected:    {StateDisconnected, StateFailed, StateConnecting},
	StateFailed:       {StateConnecting, StateDisconnected},
}

// CanTransition reports whether a connection may move from one state to another.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// Status is a point-in-time snapshot of one connection.
type Status struct {
	Name        string    `json:"name"`
	State       State     `json:"state"`
	RetryCount  int       `json:"retry_count"`
	LastError   string    `json:"last_error,omitempty"`
	LastChecked time.Time `json:"last_checked,omitzero"`
	ConnectedAt time.Time `json:"connected_at,omitzero"`
	ToolCount   int       `json:"tool_count"`
}
