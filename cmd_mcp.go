package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mcpbridge/server/config"
	"github.com/mcpbridge/server/diagram"
	"github.com/mcpbridge/server/logger"
	"github.com/mcpbridge/server/mcp"
	"github.com/mcpbridge/server/mcpconn"
	"github.com/spf13/cobra"
)

// newMCPCmd serves the diagram operations as a stdio MCP server. Stdout
// carries the protocol, so logs go to a file or stderr.
func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve diagram tools over stdio MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			// stdout carries the protocol.
			logCfg := logConfig(cfg, false)
			logCfg.Console = os.Stderr
			defer closeQuietly(logger.Init(logCfg), "log file")

			if err := cfg.ValidateServers(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			manager := mcpconn.NewManager(mcpconn.StdioDialer{ClientVersion: version}, cfg.ManagerOptions())
			defer manager.Shutdown()

			if err := manager.Sync(cfg.Servers); err != nil {
				slog.Warn("some servers failed to connect", "error", err)
			}
			manager.StartHealthChecks(cfg.HealthCheckInterval)

			server := mcp.NewServer(diagram.NewInvoker(manager, cfg.Diagram.Server), manager, version)
			return server.Run(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
