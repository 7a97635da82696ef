package ws

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mcpbridge/server/watch"
	"github.com/sourcegraph/jsonrpc2"
)

// peer is one authenticated-or-not websocket client. It is the
// watch.Notifier its subscriptions deliver through.
type peer struct {
	id  string
	log *slog.Logger

	connMu sync.RWMutex
	conn   *jsonrpc2.Conn

	authed atomic.Bool
	closed atomic.Bool
}

var _ watch.Notifier = (*peer)(nil)

func newPeer(id string) *peer {
	return &peer{id: id, log: slog.With("connId", id)}
}

func (p *peer) attach(conn *jsonrpc2.Conn) {
	p.connMu.Lock()
	p.conn = conn
	p.connMu.Unlock()
}

func (p *peer) Notify(ctx context.Context, n watch.Notification) error {
	p.connMu.RLock()
	conn := p.conn
	p.connMu.RUnlock()
	if conn == nil || p.closed.Load() {
		return jsonrpc2.ErrClosed
	}
	return conn.Notify(ctx, n.Method, n.Params)
}

// subscribe registers p with add and undoes it if p closed meanwhile, so a
// subscription racing the disconnect never outlives the connection.
func (p *peer) subscribe(w watch.Watcher, add func() string) string {
	id := add()
	if p.closed.Load() {
		w.Unsubscribe(id)
	}
	return id
}

// close marks p closed, then drops its subscriptions from every watcher.
func (p *peer) close(watchers ...watch.Watcher) {
	p.closed.Store(true)
	for _, w := range watchers {
		w.CleanupConnection(p.id)
	}
}
