package ws

import (
	"context"

	"github.com/mcpbridge/server/mcpconn"
	"github.com/mcpbridge/server/rpc"
	"github.com/mcpbridge/server/watch"
	"github.com/sourcegraph/jsonrpc2"
)

func (h *rpcMethodHandler) handleConnectionConnect(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ConnectParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.Name == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "name is required")
		return
	}

	cfg := mcpconn.ServerConfig{Name: params.Name}
	if params.Config != nil {
		cfg = *params.Config
		cfg.Name = params.Name
	}

	if err := h.manager.Connect(cfg); err != nil {
		h.log.Warn("connect failed", "server", params.Name, "error", err)
		h.replyDomainError(ctx, conn, req.ID, err)
		return
	}

	h.replyStatus(ctx, conn, req, "connect", params.Name)
}

func (h *rpcMethodHandler) handleConnectionDisconnect(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	name, ok := h.serverParam(ctx, conn, req)
	if !ok {
		return
	}

	if err := h.manager.Disconnect(name); err != nil {
		h.replyDomainError(ctx, conn, req.ID, err)
		return
	}

	h.replyStatus(ctx, conn, req, "disconnect", name)
}

func (h *rpcMethodHandler) handleConnectionReconnect(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ConnectParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.Name == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "name is required")
		return
	}

	var cfg mcpconn.ServerConfig
	if params.Config != nil {
		cfg = *params.Config
		cfg.Name = params.Name
	}

	if err := h.manager.Reconnect(params.Name, cfg); err != nil {
		h.log.Warn("reconnect failed", "server", params.Name, "error", err)
		h.replyDomainError(ctx, conn, req.ID, err)
		return
	}

	h.replyStatus(ctx, conn, req, "reconnect", params.Name)
}

func (h *rpcMethodHandler) handleConnectionHealthCheck(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	name, ok := h.serverParam(ctx, conn, req)
	if !ok {
		return
	}

	if err := h.manager.HealthCheck(ctx, name); err != nil {
		h.replyDomainError(ctx, conn, req.ID, err)
		return
	}

	h.replyStatus(ctx, conn, req, "health check", name)
}

func (h *rpcMethodHandler) handleConnectionStatus(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	name, ok := h.serverParam(ctx, conn, req)
	if !ok {
		return
	}

	if _, known := h.manager.GetConnectionStatus(name); !known {
		h.replyDomainError(ctx, conn, req.ID, &mcpconn.NotConnectedError{Name: name})
		return
	}

	h.replyStatus(ctx, conn, req, "status", name)
}

func (h *rpcMethodHandler) handleConnectionList(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	result := rpc.ConnectionListResult{
		Connections: h.manager.GetAllConnectionStatuses(),
	}
	h.reply(ctx, conn, req, "connection list", result)
}

func (h *rpcMethodHandler) handleConnectionSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var statuses []mcpconn.Status
	id := h.peer.subscribe(h.connectionWatcher, func() string {
		var id string
		id, statuses = h.connectionWatcher.Subscribe(h.peer, h.peer.id)
		return id
	})

	h.log.Debug("subscribed", "watcher", "connection", "watchId", id)

	result := rpc.ConnectionSubscribeResult{ID: id, Connections: statuses}
	h.reply(ctx, conn, req, "connection subscribe", result)
}

func (h *rpcMethodHandler) handleConfigSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if h.configWatcher == nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "config watching is disabled")
		return
	}

	id := h.peer.subscribe(h.configWatcher, func() string {
		return h.configWatcher.Subscribe(h.peer, h.peer.id)
	})

	h.log.Debug("subscribed", "watcher", "config", "watchId", id)

	h.reply(ctx, conn, req, "config subscribe", rpc.ConfigSubscribeResult{ID: id})
}

func (h *rpcMethodHandler) handleConnectionUnsubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.unsubscribe(ctx, conn, req, h.connectionWatcher, "connection")
}

func (h *rpcMethodHandler) handleConfigUnsubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if h.configWatcher == nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "config watching is disabled")
		return
	}
	h.unsubscribe(ctx, conn, req, h.configWatcher, "config")
}

// unsubscribe is idempotent; unknown ids still succeed.
func (h *rpcMethodHandler) unsubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, w watch.Watcher, name string) {
	var params rpc.UnsubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.ID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "id is required")
		return
	}

	w.Unsubscribe(params.ID)
	h.log.Debug("unsubscribed", "watcher", name, "watchId", params.ID)
	h.reply(ctx, conn, req, name+" unsubscribe", struct{}{})
}

// serverParam decodes rpc.ServerParams and replies on failure.
func (h *rpcMethodHandler) serverParam(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (string, bool) {
	var params rpc.ServerParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return "", false
	}
	if params.Name == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "name is required")
		return "", false
	}
	return params.Name, true
}

func (h *rpcMethodHandler) replyStatus(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, name, server string) {
	status, ok := h.manager.GetConnectionStatus(server)
	if !ok {
		status = mcpconn.Status{Name: server, State: mcpconn.StateDisconnected}
	}
	h.reply(ctx, conn, req, name, status)
}
