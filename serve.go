package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mcpbridge/server/api"
	"github.com/mcpbridge/server/config"
	"github.com/mcpbridge/server/diagram"
	"github.com/mcpbridge/server/logger"
	"github.com/mcpbridge/server/mcpconn"
	"github.com/mcpbridge/server/metrics"
	"github.com/mcpbridge/server/middleware"
	"github.com/mcpbridge/server/session"
	"github.com/mcpbridge/server/watch"
	"github.com/mcpbridge/server/ws"
	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"
)

const shutdownTimeout = 10 * time.Second

func newHandler(token string, manager *mcpconn.Manager, rpcHandler *ws.RPCHandler) http.Handler {
	mux := http.NewServeMux()

	apiHandler := api.NewHandler(manager, manager)
	mux.HandleFunc("GET /health", apiHandler.HandleHealth)
	mux.HandleFunc("GET /tools", apiHandler.HandleTools)
	mux.HandleFunc("POST /call-tool", apiHandler.HandleCallTool)

	// WebSocket endpoint (authenticates with its first RPC)
	mux.Handle("GET /ws", rpcHandler)

	return middleware.Logging(middleware.Auth(token, "/health", "/ws")(mux))
}

func logConfig(cfg *config.Config, devMode bool) logger.Config {
	return logger.Config{
		DataDir: cfg.DataDir,
		DevMode: devMode,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		File:    cfg.Log.File,
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	defer closeQuietly(logger.Init(logConfig(cfg, cfg.DevMode)), "log file")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	stats, statsCloser := metrics.NewRootScope(slog.Default())
	defer closeQuietly(statsCloser, "metrics")

	managerOpts := cfg.ManagerOptions()
	managerOpts.Stats = stats
	manager := mcpconn.NewManager(mcpconn.StdioDialer{ClientVersion: version}, managerOpts)
	defer manager.Shutdown()

	// Servers that fail here stay Failed and can be reconnected over RPC.
	if err := manager.Sync(cfg.Servers); err != nil {
		slog.Warn("some servers failed to connect", "error", err)
	}
	manager.StartHealthChecks(cfg.HealthCheckInterval)

	repo, err := session.NewFileRepository(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	store := session.NewStore(repo, session.Options{Stats: stats})

	reaper := session.NewReaper(store, cfg.Sessions.Retention, cfg.Sessions.ReapInterval)
	reaper.Start()
	defer reaper.Stop()

	var configWatcher *watch.ConfigWatcher
	if cfg.File != "" {
		configWatcher, err = watch.NewConfigWatcher(cfg.File, manager)
		if err != nil {
			return err
		}
		if err := configWatcher.Start(); err != nil {
			slog.Warn("config watching disabled", "path", cfg.File, "error", err)
			configWatcher = nil
		} else {
			defer configWatcher.Stop()
		}
	}

	rpcHandler := ws.NewRPCHandler(cfg.AuthToken, version, cfg.DevMode, ws.Deps{
		Manager:       manager,
		Invoker:       diagram.NewInvoker(manager, cfg.Diagram.Server),
		Sessions:      store,
		Retention:     cfg.Sessions.Retention,
		ConfigWatcher: configWatcher,
	})
	defer rpcHandler.Stop()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: newHandler(cfg.AuthToken, manager, rpcHandler),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port, "dataDir", cfg.DataDir, "devMode", cfg.DevMode)
		errCh <- srv.ListenAndServe()
	}()

	if opts.showQR {
		printQR(os.Stdout, fmt.Sprintf("ws://localhost:%s/ws", cfg.Port))
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	return nil
}

// printQR prints url as a QR code when out is a terminal, and as text otherwise.
func printQR(out *os.File, url string) {
	if !term.IsTerminal(int(out.Fd())) {
		fmt.Fprintln(out, url)
		return
	}
	qrterminal.GenerateHalfBlock(url, qrterminal.L, out)
	fmt.Fprintln(out, url)
}

func closeQuietly(c io.Closer, name string) {
	if err := c.Close(); err != nil {
		slog.Warn("close failed", "component", name, "error", err)
	}
}
