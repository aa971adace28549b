package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// ============================================================================
// frametrace-ctl - Command-line client
// ============================================================================
// Queries a running frametrace over its IPC socket, or follows the state
// websocket.
//
// Usage:
//   frametrace-ctl snapshot
//   frametrace-ctl metrics
//   frametrace-ctl watch --ws-url ws://127.0.0.1:3034/ws/state
//
// Global options:
//   --socket PATH    Unix domain socket path (default: /tmp/frametrace.sock)
//   --json           Print raw JSON instead of text
// ============================================================================

const (
	defaultSocketPath = "/tmp/frametrace.sock"
	defaultWSURL      = "ws://127.0.0.1:3034/ws/state"
)

type options struct {
	socketPath string
	jsonOutput bool
	wsURL      string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "frametrace-ctl",
		Short: "Inspect a running frametrace",
		Long: `frametrace-ctl - inspect a running frametrace
  - snapshot: the current timeline with held frames
  - metrics:  sampling rate and uncertainty
  - watch:    follow new Edges as they are recorded`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.socketPath, "socket", defaultSocketPath, "Unix domain socket path")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print raw JSON")

	root.AddCommand(newSnapshotCmd(opts))
	root.AddCommand(newMetricsCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	return root
}

func newSnapshotCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the current timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := query(cmd.Context(), opts.socketPath, "get_snapshot")
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			var snap Snapshot
			if err := decodeData(raw, &snap); err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), formatSnapshot(snap))
			return err
		},
	}
}

func newMetricsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print sampling metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := query(cmd.Context(), opts.socketPath, "get_metrics")
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			var m MetricsReport
			if err := decodeData(raw, &m); err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), formatMetrics(m))
			return err
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
