package ws

import (
	"context"
	"errors"

	"github.com/mcpbridge/server/diagram"
	"github.com/mcpbridge/server/mcpconn"
	"github.com/mcpbridge/server/rpc"
	"github.com/mcpbridge/server/session"
	"github.com/sourcegraph/jsonrpc2"
)

// toRPCError maps a domain error onto a JSON-RPC error whose data.kind names
// the failure class.
func toRPCError(err error) *jsonrpc2.Error {
	code, kind := classify(err)
	rpcErr := &jsonrpc2.Error{Code: code, Message: err.Error()}
	rpcErr.SetError(rpc.ErrorData{Kind: kind})
	return rpcErr
}

func classify(err error) (int64, string) {
	var (
		connErr    *mcpconn.ConnectionError
		toolErr    *mcpconn.ToolExecutionError
		timeoutErr *mcpconn.CallTimeoutError
		persistErr *session.PersistenceError
	)

	switch {
	case errors.Is(err, mcpconn.ErrNotConnected):
		return rpc.CodeNotConnected, rpc.KindNotConnected
	// An exhausted connect stays a connection error even when its last
	// attempt timed out.
	case errors.As(err, &connErr):
		return rpc.CodeConnection, rpc.KindConnection
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return rpc.CodeTimeout, rpc.KindTimeout
	case errors.As(err, &toolErr):
		return rpc.CodeToolExecution, rpc.KindToolExecution
	case errors.Is(err, session.ErrSessionNotFound):
		return rpc.CodeSessionNotFound, rpc.KindSessionNotFound
	case errors.As(err, &persistErr):
		return rpc.CodePersistence, rpc.KindPersistence
	case errors.Is(err, diagram.ErrNotImplemented):
		return rpc.CodeNotImplemented, rpc.KindNotImplemented
	case errors.Is(err, diagram.ErrInvalidArgument):
		return jsonrpc2.CodeInvalidParams, rpc.KindInvalidArgument
	default:
		return jsonrpc2.CodeInternalError, rpc.KindInternal
	}
}

func (h *rpcMethodHandler) replyDomainError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, err error) {
	if replyErr := conn.ReplyWithError(ctx, id, toRPCError(err)); replyErr != nil {
		h.log.Error("failed to send error response", "error", replyErr)
	}
}
