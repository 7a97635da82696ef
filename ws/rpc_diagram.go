package ws

import (
	"context"

	"github.com/mcpbridge/server/diagram"
	"github.com/mcpbridge/server/rpc"
	"github.com/sourcegraph/jsonrpc2"
)

func (h *rpcMethodHandler) handleDiagramCreateElement(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.CreateElementParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	res, err := h.invoker.CreateElement(ctx, params)
	h.replyDiagram(ctx, conn, req, "create element", res, err)
}

func (h *rpcMethodHandler) handleDiagramCreateConnector(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.CreateConnectorParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	res, err := h.invoker.CreateConnector(ctx, params.SourceID, params.TargetID, params.Label)
	h.replyDiagram(ctx, conn, req, "create connector", res, err)
}

func (h *rpcMethodHandler) handleDiagramUpdateElement(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.UpdateElementParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	res, err := h.invoker.UpdateElement(ctx, params.CellID, params.ElementUpdate)
	h.replyDiagram(ctx, conn, req, "update element", res, err)
}

func (h *rpcMethodHandler) handleDiagramDeleteElement(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.CellParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	res, err := h.invoker.DeleteElement(ctx, params.CellID)
	h.replyDiagram(ctx, conn, req, "delete element", res, err)
}

func (h *rpcMethodHandler) handleDiagramApplyLayout(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ApplyLayoutParams
	if err := unmarshalOptionalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	res, err := h.invoker.ApplyLayout(ctx, params.Algorithm)
	h.replyDiagram(ctx, conn, req, "apply layout", res, err)
}

func (h *rpcMethodHandler) handleDiagramExport(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ExportParams
	if err := unmarshalOptionalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	res, err := h.invoker.Export(ctx, params.Format)
	h.replyDiagram(ctx, conn, req, "export", res, err)
}

func (h *rpcMethodHandler) replyDiagram(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, name string, res *diagram.Result, err error) {
	if err != nil {
		h.log.Warn("diagram "+name+" failed", "error", err)
		h.replyDomainError(ctx, conn, req.ID, err)
		return
	}
	h.reply(ctx, conn, req, "diagram "+name, res)
}
