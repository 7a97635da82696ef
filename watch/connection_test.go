package watch

import (
	"testing"
	"time"

	"github.com/mcpbridge/server/mcpconn"
)

type fakeStatusSource struct {
	listener mcpconn.StatusListener
	statuses []mcpconn.Status
}

func (f *fakeStatusSource) SetStatusListener(l mcpconn.StatusListener) { f.listener = l }

func (f *fakeStatusSource) GetAllConnectionStatuses() []mcpconn.Status { return f.statuses }

func TestConnectionWatcher_NotifiesSubscribers(t *testing.T) {
	source := &fakeStatusSource{statuses: []mcpconn.Status{{Name: "drawio", State: mcpconn.StateDisconnected}}}
	w := NewConnectionWatcher(source)
	if source.listener != w {
		t.Fatal("expected watcher to register as status listener")
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	n := newRecordingNotifier()
	id, current := w.Subscribe(n, "conn1")
	if len(current) != 1 || current[0].Name != "drawio" {
		t.Errorf("unexpected initial statuses %+v", current)
	}

	source.listener.OnStatusChange(mcpconn.Status{Name: "drawio", State: mcpconn.StateConnected})

	select {
	case got := <-n.ch:
		if got.Method != "connection.changed" {
			t.Errorf("method = %s", got.Method)
		}
		params, ok := got.Params.(connectionChangedParams)
		if !ok {
			t.Fatalf("unexpected params %T", got.Params)
		}
		if params.ID != id || params.Status.State != mcpconn.StateConnected {
			t.Errorf("unexpected params %+v", params)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
	}
}

func TestConnectionWatcher_IgnoresEventsAfterStop(t *testing.T) {
	source := &fakeStatusSource{}
	w := NewConnectionWatcher(source)
	w.Start()
	w.Stop()

	// Must not block or panic once stopped.
	for range 100 {
		w.OnStatusChange(mcpconn.Status{Name: "drawio"})
	}
}
