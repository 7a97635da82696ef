package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpbridge/server/logger"
)

const (
	DefaultRetention    = 24 * time.Hour
	DefaultReapInterval = time.Hour
)

// Reaper periodically removes expired sessions. It runs independently of
// request handling; a failed or panicking run never stops the schedule.
type Reaper struct {
	store     *Store
	retention time.Duration
	interval  time.Duration

	// ran is signalled after each run; used by tests.
	ran func(deleted int, err error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReaper(store *Store, retention, interval time.Duration) *Reaper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &Reaper{store: store, retention: retention, interval: interval}
}

// Start launches the background loop. Calling Start twice is a no-op.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
}

// Stop ends the loop and waits for an in-flight run to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Reaper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs one cleanup pass and returns the number deleted.
func (r *Reaper) RunOnce(ctx context.Context) (deleted int) {
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			logger.LogPanic(rec, "session reaper crashed")
		}
		if r.ran != nil {
			r.ran(deleted, err)
		}
	}()

	deleted, err = r.store.CleanupExpired(ctx, r.retention)
	if err != nil {
		slog.Warn("session cleanup incomplete", "deleted", deleted, "error", err)
	} else if deleted > 0 {
		slog.Info("expired sessions removed", "deleted", deleted)
	}
	return deleted
}
