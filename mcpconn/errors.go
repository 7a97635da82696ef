package mcpconn

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected matches every NotConnectedError via errors.Is.
var ErrNotConnected = errors.New("not connected")

// ConnectionError is returned by Connect once the attempt budget is exhausted.
// Err is the error of the last attempt.
type ConnectionError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: failed after %d attempts: %v", e.Name, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NotConnectedError is returned when an operation needs a live connection.
// It is never retried by the manager.
type NotConnectedError struct {
	Name  string
	State State
}

func (e *NotConnectedError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("server %s: not connected", e.Name)
	}
	return fmt.Sprintf("server %s: not connected (state %s)", e.Name, e.State)
}

func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }

// ToolExecutionError reports a failure returned by the tool process itself.
// Message is the text the process supplied, unmodified.
type ToolExecutionError struct {
	Name    string
	Tool    string
	Message string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s on %s failed: %s", e.Tool, e.Name, e.Message)
}

// CallTimeoutError is returned when a tool call exceeds the call timeout.
// It is transient: the connection stays as it was.
type CallTimeoutError struct {
	Name    string
	Tool    string
	Timeout time.Duration
	Err     error
}

func (e *CallTimeoutError) Error() string {
	return fmt.Sprintf("tool %s on %s timed out after %s", e.Tool, e.Name, e.Timeout)
}

func (e *CallTimeoutError) Unwrap() error { return e.Err }

// Temporary reports that the call may succeed if retried by the caller.
func (e *CallTimeoutError) Temporary() bool { return true }
