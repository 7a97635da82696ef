package mcp

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mcpbridge/server/diagram"
	"github.com/mcpbridge/server/mcpconn"
)

type ErrorCode string

const (
	ErrValidation     ErrorCode = "validation"
	ErrNotConnected   ErrorCode = "not_connected"
	ErrNotImplemented ErrorCode = "not_implemented"
	ErrToolExecution  ErrorCode = "tool_execution"
	ErrTimeout        ErrorCode = "timeout"
	ErrInternal       ErrorCode = "internal"
)

type ToolError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e ToolError) ToResult() *mcp.CallToolResult {
	data, _ := json.Marshal(e)
	return mcp.NewToolResultError(string(data))
}

func ValidationError(msg string) *mcp.CallToolResult {
	return ToolError{
		Code:    ErrValidation,
		Message: msg,
	}.ToResult()
}

// FromError classifies err from the diagram or connection layer.
func FromError(err error) *mcp.CallToolResult {
	var (
		notImpl *diagram.NotImplementedError
		toolErr *mcpconn.ToolExecutionError
		timeout *mcpconn.CallTimeoutError
		notConn *mcpconn.NotConnectedError
	)

	switch {
	case errors.Is(err, diagram.ErrInvalidArgument):
		return ValidationError(err.Error())
	case errors.As(err, &notConn):
		return ToolError{
			Code:    ErrNotConnected,
			Message: err.Error(),
			Details: map[string]any{"server": notConn.Name},
		}.ToResult()
	case errors.As(err, &notImpl):
		return ToolError{
			Code:    ErrNotImplemented,
			Message: err.Error(),
			Details: map[string]any{"operation": notImpl.Operation},
		}.ToResult()
	case errors.As(err, &toolErr):
		return ToolError{Code: ErrToolExecution, Message: toolErr.Message}.ToResult()
	case errors.As(err, &timeout):
		return ToolError{Code: ErrTimeout, Message: err.Error()}.ToResult()
	default:
		return ToolError{Code: ErrInternal, Message: err.Error()}.ToResult()
	}
}
