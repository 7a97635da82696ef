package ws

import (
	"context"
	"sort"

	"github.com/mcpbridge/server/mcpconn"
	"github.com/mcpbridge/server/rpc"
	"github.com/sourcegraph/jsonrpc2"
)

func (h *rpcMethodHandler) handleToolList(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ToolListParams
	if err := unmarshalOptionalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	if params.Server != "" {
		tools, err := h.manager.ListTools(params.Server)
		if err != nil {
			h.replyDomainError(ctx, conn, req.ID, err)
			return
		}
		h.reply(ctx, conn, req, "tool list", rpc.ToolListResult{Tools: toolInfos(params.Server, tools)})
		return
	}

	result := rpc.ToolListResult{Tools: []rpc.ToolInfo{}}
	statuses := h.manager.GetAllConnectionStatuses()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	for _, s := range statuses {
		if s.State != mcpconn.StateConnected {
			continue
		}
		tools, err := h.manager.ListTools(s.Name)
		if err != nil {
			// Dropped between the snapshot and the lookup.
			continue
		}
		result.Tools = append(result.Tools, toolInfos(s.Name, tools)...)
	}

	h.reply(ctx, conn, req, "tool list", result)
}

func toolInfos(server string, tools []mcpconn.ToolDescriptor) []rpc.ToolInfo {
	infos := make([]rpc.ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, rpc.ToolInfo{Server: server, ToolDescriptor: t})
	}
	return infos
}

func (h *rpcMethodHandler) handleToolCall(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ToolCallParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.Server == "" || params.Tool == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "server and tool are required")
		return
	}

	res, err := h.manager.CallTool(ctx, params.Server, params.Tool, params.Arguments)
	if err != nil {
		h.log.Warn("tool call failed", "server", params.Server, "tool", params.Tool, "error", err)
		h.replyDomainError(ctx, conn, req.ID, err)
		return
	}

	h.reply(ctx, conn, req, "tool call", rpc.ToolCallResult{
		Text:   mcpconn.ResultText(res),
		Result: res,
	})
}
