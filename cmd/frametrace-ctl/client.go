package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Wire types (duplicated from the frametrace package for a standalone binary)

type ChannelInfo struct {
	Key     uint16 `json:"key"`
	Name    string `json:"name"`
	Glyph   string `json:"glyph"`
	Ordinal int    `json:"ordinal"`
}

type Edge struct {
	Timestamp    time.Time     `json:"timestamp"`
	State        []bool        `json:"state"`
	DtBefore     time.Duration `json:"dt_before_ns"`
	DtAfter      time.Duration `json:"dt_after_ns"`
	DtAfterKnown bool          `json:"dt_after_known"`
}

type HoldEstimate struct {
	Raw         time.Duration `json:"raw_ns"`
	MinHeld     time.Duration `json:"min_held_ns"`
	Epsilon     time.Duration `json:"epsilon_ns"`
	Frames      float64       `json:"frames"`
	Uncertainty float64       `json:"uncertainty_frames"`
}

type HeldSpan struct {
	Edge     Edge         `json:"edge"`
	Estimate HoldEstimate `json:"estimate"`
}

type Metrics struct {
	LastFPS               int64         `json:"last_fps"`
	LastDt                time.Duration `json:"last_dt_ns"`
	AttemptsSinceLastPoll int           `json:"attempts_since_last_poll"`
}

type Snapshot struct {
	RunID         string        `json:"run_id"`
	At            time.Time     `json:"at"`
	Channels      []ChannelInfo `json:"channels"`
	FrameDuration time.Duration `json:"frame_duration_ns"`
	Capacity      int           `json:"capacity"`
	Metrics       Metrics       `json:"metrics"`
	Edges         []Edge        `json:"edges"`
	Holds         []HeldSpan    `json:"holds"`
}

// MetricsReport is the get_metrics payload.
type MetricsReport struct {
	RunID         string        `json:"run_id"`
	Metrics       Metrics       `json:"metrics"`
	FrameDuration time.Duration `json:"frame_duration_ns"`
	Uncertainty   float64       `json:"uncertainty_frames"`
	Edges         int           `json:"edges"`
}

// IPCRequest is one request line.
type IPCRequest struct {
	Type string `json:"type"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

const ipcTimeout = 2 * time.Second

// query sends one request to the daemon and returns the raw data payload.
func query(ctx context.Context, socketPath, reqType string) (json.RawMessage, error) {
	d := net.Dialer{Timeout: ipcTimeout}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcTimeout))

	return roundTrip(conn, reqType)
}

// roundTrip writes one line-delimited request on rw and decodes the reply.
func roundTrip(rw io.ReadWriter, reqType string) (json.RawMessage, error) {
	data, err := json.Marshal(IPCRequest{Type: reqType})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(rw, "%s\n", data); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(rw).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		if resp.Error == "" {
			resp.Error = "unknown error"
		}
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("daemon returned no data")
	}
	return resp.Data, nil
}

func decodeData(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("format json: %w", err)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
