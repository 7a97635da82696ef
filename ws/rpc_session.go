package ws

import (
	"context"
	"time"

	"github.com/mcpbridge/server/rpc"
	"github.com/mcpbridge/server/session"
	"github.com/sourcegraph/jsonrpc2"
)

func (h *rpcMethodHandler) handleSessionCreate(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	sess, err := h.sessions.Create()
	if err != nil {
		h.log.Error("failed to create session", "error", err)
		h.replyDomainError(ctx, conn, req.ID, err)
		return
	}

	h.reply(ctx, conn, req, "session create", sess)
}

func (h *rpcMethodHandler) handleSessionGet(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id, ok := h.sessionParam(ctx, conn, req)
	if !ok {
		return
	}

	sess, err := h.sessions.Get(id)
	h.replySession(ctx, conn, req, "session get", sess, err)
}

func (h *rpcMethodHandler) handleSessionUpdate(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionUpdateParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.SessionID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "session_id is required")
		return
	}

	sess, err := h.sessions.Update(params.SessionID, params.Update)
	h.replySession(ctx, conn, req, "session update", sess, err)
}

func (h *rpcMethodHandler) handleSessionDelete(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id, ok := h.sessionParam(ctx, conn, req)
	if !ok {
		return
	}

	if err := h.sessions.Delete(id); err != nil {
		h.log.Error("failed to delete session", "sessionId", id, "error", err)
		h.replyDomainError(ctx, conn, req.ID, err)
		return
	}

	h.log.Info("session deleted", "sessionId", id)
	h.reply(ctx, conn, req, "session delete", struct{}{})
}

func (h *rpcMethodHandler) handleSessionSaveMessage(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SaveMessageParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.SessionID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "session_id is required")
		return
	}
	if !params.Message.Role.IsValid() {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid message role")
		return
	}

	msg, err := h.sessions.SaveChatMessage(params.SessionID, params.Message)
	if err != nil {
		h.replyDomainError(ctx, conn, req.ID, err)
		return
	}

	h.reply(ctx, conn, req, "session save message", msg)
}

func (h *rpcMethodHandler) handleSessionSaveDiagram(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SaveDiagramParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.SessionID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "session_id is required")
		return
	}

	sess, err := h.sessions.SaveDiagram(params.SessionID, params.Diagram)
	h.replySession(ctx, conn, req, "session save diagram", sess, err)
}

func (h *rpcMethodHandler) handleSessionRestore(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id, ok := h.sessionParam(ctx, conn, req)
	if !ok {
		return
	}

	sess, err := h.sessions.Restore(id)
	h.replySession(ctx, conn, req, "session restore", sess, err)
}

func (h *rpcMethodHandler) handleSessionCleanup(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.CleanupParams
	if err := unmarshalOptionalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	retention := h.retention
	if params.Retention != "" {
		d, err := time.ParseDuration(params.Retention)
		if err != nil || d <= 0 {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid retention")
			return
		}
		retention = d
	}

	deleted, err := h.sessions.CleanupExpired(ctx, retention)
	result := rpc.CleanupResult{Deleted: deleted}
	if err != nil {
		// Partial failures still report what was removed.
		result.Error = err.Error()
	}

	h.reply(ctx, conn, req, "session cleanup", result)
}

func (h *rpcMethodHandler) sessionParam(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (string, bool) {
	var params rpc.SessionParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return "", false
	}
	if params.SessionID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "session_id is required")
		return "", false
	}
	return params.SessionID, true
}

func (h *rpcMethodHandler) replySession(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, name string, sess session.Session, err error) {
	if err != nil {
		h.replyDomainError(ctx, conn, req.ID, err)
		return
	}
	h.reply(ctx, conn, req, name, sess)
}
