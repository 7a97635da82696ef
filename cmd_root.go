package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	showQR     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "mcp-bridge",
		Short:         "Bridge MCP diagram servers to WebSocket clients",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to bridge.toml")
	rootCmd.Flags().BoolVar(&opts.showQR, "qr", false, "print the WebSocket URL as a QR code")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newConfigCmd(opts),
		newMCPCmd(opts),
	)

	return rootCmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.showQR, "qr", false, "print the WebSocket URL as a QR code")
	return cmd
}
