package watch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Notification is a message pushed to one subscriber.
type Notification struct {
	Method string
	Params any
}

// Notifier delivers notifications to a subscriber. WebSocket connections
// provide one backed by their JSON-RPC conn.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Watcher lets a connection drop its subscriptions without knowing which
// watcher holds them.
type Watcher interface {
	Unsubscribe(id string)
	CleanupConnection(connID string)
}

type subscriber struct {
	connID   string
	notifier Notifier
}

// hub holds the subscribers of one watcher, indexed by id and by owning
// connection. Its context ends when the watcher stops.
type hub struct {
	prefix string

	mu     sync.RWMutex
	byID   map[string]subscriber
	byConn map[string]map[string]struct{}

	ctx  context.Context
	stop context.CancelFunc
}

func newHub(prefix string) *hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &hub{
		prefix: prefix,
		byID:   make(map[string]subscriber),
		byConn: make(map[string]map[string]struct{}),
		ctx:    ctx,
		stop:   cancel,
	}
}

// add registers notifier for connID and returns the new subscription id,
// "<prefix>_<uuidv7>".
func (h *hub) add(connID string, notifier Notifier) string {
	id := h.prefix + "_" + uuid.Must(uuid.NewV7()).String()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.byID[id] = subscriber{connID: connID, notifier: notifier}
	ids := h.byConn[connID]
	if ids == nil {
		ids = make(map[string]struct{})
		h.byConn[connID] = ids
	}
	ids[id] = struct{}{}
	return id
}

// remove drops id and reports whether it existed.
func (h *hub) remove(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.byID[id]
	if !ok {
		return false
	}
	delete(h.byID, id)
	if ids := h.byConn[sub.connID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(h.byConn, sub.connID)
		}
	}
	return true
}

// Unsubscribe is a no-op for unknown ids.
func (h *hub) Unsubscribe(id string) {
	h.remove(id)
}

// CleanupConnection drops every subscription owned by connID.
func (h *hub) CleanupConnection(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id := range h.byConn[connID] {
		delete(h.byID, id)
	}
	delete(h.byConn, connID)
}

func (h *hub) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// broadcast sends method to every subscriber with params built per
// subscription id, and returns how many were addressed. A failed delivery
// is logged and does not stop the others.
func (h *hub) broadcast(method string, params func(id string) any) int {
	h.mu.RLock()
	targets := make(map[string]Notifier, len(h.byID))
	for id, sub := range h.byID {
		targets[id] = sub.notifier
	}
	h.mu.RUnlock()

	for id, n := range targets {
		if err := n.Notify(h.ctx, Notification{Method: method, Params: params(id)}); err != nil {
			slog.Debug("failed to notify subscriber", "method", method, "id", id, "error", err)
		}
	}
	return len(targets)
}

func (h *hub) stopped() bool { return h.ctx.Err() != nil }
