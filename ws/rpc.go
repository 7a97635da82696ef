package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/mcpbridge/server/diagram"
	"github.com/mcpbridge/server/logger"
	"github.com/mcpbridge/server/mcpconn"
	"github.com/mcpbridge/server/rpc"
	"github.com/mcpbridge/server/session"
	"github.com/mcpbridge/server/watch"
	"github.com/sourcegraph/jsonrpc2"
)

// Deps are the components served over RPC.
type Deps struct {
	Manager   *mcpconn.Manager
	Invoker   *diagram.Invoker
	Sessions  *session.Store
	Retention time.Duration
	// ConfigWatcher is optional; without it config.subscribe fails.
	ConfigWatcher *watch.ConfigWatcher
}

// RPCHandler serves the bridge's JSON-RPC 2.0 methods over WebSocket.
// Every connection must authenticate with its first request.
type RPCHandler struct {
	token     string
	version   string
	devMode   bool
	manager   *mcpconn.Manager
	invoker   *diagram.Invoker
	sessions  *session.Store
	retention time.Duration

	connectionWatcher *watch.ConnectionWatcher
	configWatcher     *watch.ConfigWatcher
	// watchers are the non-nil watchers a closing connection leaves.
	watchers []watch.Watcher
}

func NewRPCHandler(token, version string, devMode bool, deps Deps) *RPCHandler {
	h := &RPCHandler{
		token:             token,
		version:           version,
		devMode:           devMode,
		manager:           deps.Manager,
		invoker:           deps.Invoker,
		sessions:          deps.Sessions,
		retention:         deps.Retention,
		connectionWatcher: watch.NewConnectionWatcher(deps.Manager),
		configWatcher:     deps.ConfigWatcher,
	}
	if h.retention <= 0 {
		h.retention = session.DefaultRetention
	}
	h.watchers = append(h.watchers, h.connectionWatcher)
	if h.configWatcher != nil {
		h.watchers = append(h.watchers, h.configWatcher)
	}
	h.connectionWatcher.Start()
	return h
}

// Stop ends connection status fan-out.
func (h *RPCHandler) Stop() {
	h.connectionWatcher.Stop()
}

func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.devMode,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		slog.Debug("websocket upgrade rejected", "error", err)
		return
	}
	ctx := r.Context()
	h.HandleStream(ctx, newObjectStream(ctx, wsConn), uuid.Must(uuid.NewV7()).String())
}

// HandleStream serves one client until its stream closes.
func (h *RPCHandler) HandleStream(ctx context.Context, stream jsonrpc2.ObjectStream, connID string) {
	p := newPeer(connID)
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "websocket connection crashed", "connId", connID)
		}
	}()
	p.log.Info("client connected")

	handler := &rpcMethodHandler{RPCHandler: h, peer: p, log: p.log}
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(handler))
	p.attach(conn)

	<-conn.DisconnectNotify()
	p.close(h.watchers...)
	p.log.Info("client disconnected")
}

type methodFunc func(h *rpcMethodHandler, ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request)

// methods maps every RPC method after auth to its handler.
var methods = map[string]methodFunc{
	"connection.connect":      (*rpcMethodHandler).handleConnectionConnect,
	"connection.disconnect":   (*rpcMethodHandler).handleConnectionDisconnect,
	"connection.reconnect":    (*rpcMethodHandler).handleConnectionReconnect,
	"connection.health_check": (*rpcMethodHandler).handleConnectionHealthCheck,
	"connection.status":       (*rpcMethodHandler).handleConnectionStatus,
	"connection.list":         (*rpcMethodHandler).handleConnectionList,
	"connection.subscribe":    (*rpcMethodHandler).handleConnectionSubscribe,
	"connection.unsubscribe":  (*rpcMethodHandler).handleConnectionUnsubscribe,

	"config.subscribe":   (*rpcMethodHandler).handleConfigSubscribe,
	"config.unsubscribe": (*rpcMethodHandler).handleConfigUnsubscribe,

	"tool.list": (*rpcMethodHandler).handleToolList,
	"tool.call": (*rpcMethodHandler).handleToolCall,

	"diagram.create_element":   (*rpcMethodHandler).handleDiagramCreateElement,
	"diagram.create_connector": (*rpcMethodHandler).handleDiagramCreateConnector,
	"diagram.update_element":   (*rpcMethodHandler).handleDiagramUpdateElement,
	"diagram.delete_element":   (*rpcMethodHandler).handleDiagramDeleteElement,
	"diagram.apply_layout":     (*rpcMethodHandler).handleDiagramApplyLayout,
	"diagram.export":           (*rpcMethodHandler).handleDiagramExport,

	"session.create":       (*rpcMethodHandler).handleSessionCreate,
	"session.get":          (*rpcMethodHandler).handleSessionGet,
	"session.update":       (*rpcMethodHandler).handleSessionUpdate,
	"session.delete":       (*rpcMethodHandler).handleSessionDelete,
	"session.save_message": (*rpcMethodHandler).handleSessionSaveMessage,
	"session.save_diagram": (*rpcMethodHandler).handleSessionSaveDiagram,
	"session.restore":      (*rpcMethodHandler).handleSessionRestore,
	"session.cleanup":      (*rpcMethodHandler).handleSessionCleanup,
}

type rpcMethodHandler struct {
	*RPCHandler
	peer *peer
	log  *slog.Logger
}

func (h *rpcMethodHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "rpc handler panic", "method", req.Method, "connId", h.peer.id)
		}
	}()
	h.log.Debug("request", "method", req.Method, "id", req.ID)

	if !h.peer.authed.Load() {
		if req.Method != "auth" {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "first request must be auth")
			conn.Close()
			return
		}
		h.handleAuth(ctx, conn, req)
		return
	}

	method, ok := methods[req.Method]
	if !ok {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeMethodNotFound, "method not found: "+req.Method)
		return
	}
	method(h, ctx, conn, req)
}

// handleAuth closes the connection on any failure.
func (h *rpcMethodHandler) handleAuth(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.AuthParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		conn.Close()
		return
	}
	if subtle.ConstantTimeCompare([]byte(params.Token), []byte(h.token)) != 1 {
		h.log.Warn("rejected auth token")
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "invalid token")
		conn.Close()
		return
	}

	h.peer.authed.Store(true)
	h.log.Info("authenticated")
	h.reply(ctx, conn, req, "auth", rpc.AuthResult{Version: h.version})
}

func (h *rpcMethodHandler) replyError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, code int64, message string) {
	if err := conn.ReplyWithError(ctx, id, &jsonrpc2.Error{Code: code, Message: message}); err != nil {
		h.log.Error("failed to send error response", "error", err)
	}
}

// reply sends result, logging delivery failures under name.
func (h *rpcMethodHandler) reply(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, name string, result any) {
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send "+name+" response", "error", err)
	}
}

func unmarshalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return errors.New("params required")
	}
	return json.Unmarshal(*req.Params, v)
}

// unmarshalOptionalParams accepts a missing params member.
func unmarshalOptionalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return nil
	}
	return json.Unmarshal(*req.Params, v)
}
