package watch

import (
	"log/slog"

	"github.com/mcpbridge/server/mcpconn"
)

// StatusSource is the part of mcpconn.Manager the watcher reads from.
type StatusSource interface {
	SetStatusListener(l mcpconn.StatusListener)
	GetAllConnectionStatuses() []mcpconn.Status
}

// ConnectionWatcher pushes connection status changes to subscribers.
// Events are queued so the manager never waits on network I/O.
type ConnectionWatcher struct {
	*hub
	source  StatusSource
	eventCh chan mcpconn.Status
}

func NewConnectionWatcher(source StatusSource) *ConnectionWatcher {
	w := &ConnectionWatcher{
		hub:     newHub("cn"),
		source:  source,
		eventCh: make(chan mcpconn.Status, 64),
	}
	source.SetStatusListener(w)
	return w
}

func (w *ConnectionWatcher) Start() error {
	go w.eventLoop()
	slog.Info("ConnectionWatcher started")
	return nil
}

func (w *ConnectionWatcher) Stop() {
	w.stop()
	slog.Info("ConnectionWatcher stopped")
}

func (w *ConnectionWatcher) eventLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case s := <-w.eventCh:
			w.notifyChange(s)
		}
	}
}

type connectionChangedParams struct {
	ID     string         `json:"id"`
	Status mcpconn.Status `json:"status"`
}

func (w *ConnectionWatcher) notifyChange(s mcpconn.Status) {
	if w.size() == 0 {
		return
	}
	n := w.broadcast("connection.changed", func(id string) any {
		return connectionChangedParams{ID: id, Status: s}
	})
	slog.Debug("notified connection change", "server", s.Name, "state", s.State, "subscribers", n)
}

// Subscribe registers notifier and returns the subscription id with the
// current statuses.
func (w *ConnectionWatcher) Subscribe(notifier Notifier, connID string) (string, []mcpconn.Status) {
	return w.add(connID, notifier), w.source.GetAllConnectionStatuses()
}

// OnStatusChange implements mcpconn.StatusListener. It must not block.
func (w *ConnectionWatcher) OnStatusChange(s mcpconn.Status) {
	if w.stopped() {
		return
	}

	select {
	case w.eventCh <- s:
	default:
		slog.Warn("connection status event dropped (buffer full)", "server", s.Name)
	}
}
