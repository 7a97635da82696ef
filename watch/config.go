package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mcpbridge/server/config"
	"github.com/mcpbridge/server/mcpconn"
)

const debounceInterval = 100 * time.Millisecond

// Syncer applies a new server list. mcpconn.Manager implements it.
type Syncer interface {
	Sync(servers []mcpconn.ServerConfig) error
}

// ConfigWatcher reloads the config file when it changes and reconciles
// server connections with it.
type ConfigWatcher struct {
	*hub
	path    string
	syncer  Syncer
	load    func(path string) (*config.Config, error)
	watcher *fsnotify.Watcher

	timerMu sync.Mutex
	timer   *time.Timer

	// reloadMu keeps reloads in order; Sync may block on backoff.
	reloadMu sync.Mutex
	onReload func(*config.Config, error)
}

func NewConfigWatcher(path string, syncer Syncer) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &ConfigWatcher{
		hub:    newHub("cf"),
		path:   abs,
		syncer: syncer,
		load:   config.Load,
	}, nil
}

// OnReload registers a callback run after every reload attempt.
func (w *ConfigWatcher) OnReload(fn func(*config.Config, error)) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()
	w.onReload = fn
}

// Start watches the directory holding the config file, so editors that
// replace the file by rename are seen too.
func (w *ConfigWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	go w.eventLoop()
	slog.Info("ConfigWatcher started", "path", w.path)
	return nil
}

func (w *ConfigWatcher) Stop() {
	w.stop()
	if w.watcher != nil {
		w.watcher.Close()
	}

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()

	slog.Info("ConfigWatcher stopped")
}

func (w *ConfigWatcher) eventLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("fsnotify error", "error", err)
		}
	}
}

func (w *ConfigWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceInterval, w.Reload)
}

type configReloadedParams struct {
	ID      string   `json:"id"`
	Servers []string `json:"servers"`
	Error   string   `json:"error,omitempty"`
}

// Reload reads the config file and syncs the servers it lists. A file that
// fails to load leaves the running connections untouched.
func (w *ConfigWatcher) Reload() {
	// The debounce timer may fire after Stop.
	if w.stopped() {
		return
	}

	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	cfg, err := w.load(w.path)
	if err != nil {
		slog.Error("config reload failed", "path", w.path, "error", err)
		w.finishReload(nil, err)
		return
	}
	if err := cfg.ValidateServers(); err != nil {
		slog.Error("config reload rejected", "path", w.path, "error", err)
		w.finishReload(nil, err)
		return
	}

	slog.Info("config reloaded", "path", w.path, "servers", len(cfg.Servers))
	err = w.syncer.Sync(cfg.Servers)
	if err != nil {
		slog.Warn("server sync incomplete", "error", err)
	}
	w.finishReload(cfg, err)
}

func (w *ConfigWatcher) finishReload(cfg *config.Config, err error) {
	if w.onReload != nil {
		w.onReload(cfg, err)
	}
	if w.size() == 0 {
		return
	}

	params := configReloadedParams{}
	if cfg != nil {
		for _, s := range cfg.Servers {
			params.Servers = append(params.Servers, s.Name)
		}
	}
	if err != nil {
		params.Error = err.Error()
	}
	w.broadcast("config.reloaded", func(id string) any {
		p := params
		p.ID = id
		return p
	})
}

// Subscribe registers notifier for config.reloaded notifications.
func (w *ConfigWatcher) Subscribe(notifier Notifier, connID string) string {
	return w.add(connID, notifier)
}
