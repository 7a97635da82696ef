package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mcpbridge/server/mcpconn"
)

type fakeCaller struct {
	err        error
	gotServer  string
	gotTool    string
	gotArgs    map[string]any
	resultText string
}

func (f *fakeCaller) CallTool(ctx context.Context, name, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	f.gotServer, f.gotTool, f.gotArgs = name, tool, args
	if f.err != nil {
		return nil, f.err
	}
	return mcp.NewToolResultText(f.resultText), nil
}

func postCallTool(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.HandleCallTool(rec, httptest.NewRequest(http.MethodPost, "/call-tool", strings.NewReader(body)))
	return rec
}

func TestHandler_CallTool(t *testing.T) {
	caller := &fakeCaller{resultText: `{"id":"cell-1"}`}
	h := NewHandler(newFakeSource(), caller)

	rec := postCallTool(t, h, `{"server":"drawio","name":"add-rectangle","arguments":{"text":"api"}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp callToolResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Text != `{"id":"cell-1"}` || resp.Server != "drawio" || resp.Tool != "add-rectangle" {
		t.Errorf("unexpected response %+v", resp)
	}
	if caller.gotArgs["text"] != "api" {
		t.Errorf("arguments not forwarded: %v", caller.gotArgs)
	}
}

func TestHandler_CallTool_PrefixedName(t *testing.T) {
	src := newFakeSource()
	src.statuses = append(src.statuses, mcpconn.Status{Name: "aws", State: mcpconn.StateConnected})
	caller := &fakeCaller{}
	h := NewHandler(src, caller)

	tests := []struct {
		name, wantServer, wantTool string
	}{
		{"drawio_add-rectangle", "drawio", "add-rectangle"},
		{"aws_diagram_generate", "aws_diagram", "generate"},
		{"aws_list", "aws", "list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postCallTool(t, h, `{"name":"`+tt.name+`"}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body)
			}
			if caller.gotServer != tt.wantServer || caller.gotTool != tt.wantTool {
				t.Errorf("called %s/%s, want %s/%s", caller.gotServer, caller.gotTool, tt.wantServer, tt.wantTool)
			}
			if caller.gotArgs == nil {
				t.Error("expected empty arguments map, got nil")
			}
		})
	}
}

func TestHandler_CallTool_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "bad json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "missing name", body: `{"server":"drawio"}`, wantStatus: http.StatusBadRequest},
		{name: "unresolvable name", body: `{"name":"add-rectangle"}`, wantStatus: http.StatusBadRequest},
		{
			name:       "timeout",
			body:       `{"server":"drawio","name":"add-edge"}`,
			err:        &mcpconn.CallTimeoutError{Name: "drawio", Tool: "add-edge", Timeout: time.Second, Err: context.DeadlineExceeded},
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "not connected",
			body:       `{"server":"aws_diagram","name":"generate"}`,
			err:        &mcpconn.NotConnectedError{Name: "aws_diagram", State: mcpconn.StateFailed},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "tool failure",
			body:       `{"server":"drawio","name":"add-edge"}`,
			err:        &mcpconn.ToolExecutionError{Name: "drawio", Tool: "add-edge", Message: "no such cell"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "other",
			body:       `{"server":"drawio","name":"add-edge"}`,
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(newFakeSource(), &fakeCaller{err: tt.err})
			rec := postCallTool(t, h, tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Error == "" {
				t.Errorf("expected error body, got %v / %+v", err, resp)
			}
		})
	}
}
