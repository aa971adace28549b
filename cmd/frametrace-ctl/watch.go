package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// envelope is the state websocket frame.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EdgeRecorded is the edge_recorded payload.
type EdgeRecorded struct {
	RunID       string    `json:"run_id"`
	Edge        Edge      `json:"edge"`
	Hold        *HeldSpan `json:"hold,omitempty"`
	Metrics     Metrics   `json:"metrics"`
	Uncertainty float64   `json:"uncertainty_frames"`
}

func newWatchCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow new Edges over the state websocket",
		Long: `Connect to the frametrace state websocket and print one line per
recorded Edge until interrupted.

Examples:
  frametrace-ctl watch
  frametrace-ctl watch --ws-url ws://192.168.1.10:3034/ws/state
  frametrace-ctl watch --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts.wsURL, opts.jsonOutput, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.wsURL, "ws-url", defaultWSURL, "State websocket URL")
	return cmd
}

func runWatch(ctx context.Context, wsURL string, jsonOutput bool, out io.Writer) error {
	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := d.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", u, err)
	}
	defer conn.Close()

	// Unblock ReadMessage on interrupt.
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	w := &watcher{out: out, jsonOutput: jsonOutput}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := w.handle(msg); err != nil {
			return err
		}
	}
}

// watcher keeps the channel list from state_init to render later frames.
type watcher struct {
	out        io.Writer
	jsonOutput bool
	channels   []ChannelInfo
}

func (w *watcher) handle(msg []byte) error {
	if w.jsonOutput {
		_, err := fmt.Fprintf(w.out, "%s\n", msg)
		return err
	}

	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	switch env.Type {
	case "state_init":
		var snap Snapshot
		if err := decodeData(env.Data, &snap); err != nil {
			return err
		}
		w.channels = snap.Channels
		_, err := fmt.Fprint(w.out, formatSnapshot(snap))
		return err

	case "edge_recorded":
		var ev EdgeRecorded
		if err := decodeData(env.Data, &ev); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w.out, formatEdgeRecorded(w.channels, ev))
		return err
	}
	// Unknown frame types are ignored.
	return nil
}
