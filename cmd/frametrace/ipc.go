package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Read-only queries against the running tracker, used by frametrace-ctl and
// scripts.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "get_snapshot"} or {"type": "get_metrics"}
//   - Server responds: {"status": "ok", "data": {...}} or
//     {"status": "error", "error": "msg"}
// ============================================================================

// IPC request types.
const (
	ipcGetSnapshot = "get_snapshot"
	ipcGetMetrics  = "get_metrics"
)

// IPCRequest is one line sent by a client.
type IPCRequest struct {
	Type string `json:"type"`
}

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // error message if status == "error"
	Data   any    `json:"data,omitempty"`
}

// ipcMetrics is the payload of get_metrics.
type ipcMetrics struct {
	RunID         string        `json:"run_id"`
	Metrics       Metrics       `json:"metrics"`
	FrameDuration time.Duration `json:"frame_duration_ns"`
	Uncertainty   float64       `json:"uncertainty_frames"`
	Edges         int           `json:"edges"`
}

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, requests chan<- SnapshotRequest, logger *slog.Logger) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	// Snapshots expose which keys are held; keep them to the owner.
	if err := os.Chmod(socketPath, 0o600); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, requests, logger)
	}
}

// handleIPCConnection answers requests on one connection until it closes.
func handleIPCConnection(ctx context.Context, conn net.Conn, requests chan<- SnapshotRequest, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("IPC received", "line", line)

		resp := handleIPCRequest(ctx, []byte(line), requests)
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	logger.Debug("IPC connection closed")
}

// handleIPCRequest decodes one request line and builds its response.
func handleIPCRequest(ctx context.Context, line []byte, requests chan<- SnapshotRequest) IPCResponse {
	var req IPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return IPCResponse{Status: "error", Error: fmt.Sprintf("parse request: %v", err)}
	}

	switch req.Type {
	case ipcGetSnapshot, ipcGetMetrics:
	default:
		return IPCResponse{Status: "error", Error: fmt.Sprintf("unknown request type: %q", req.Type)}
	}

	snap, err := requestSnapshot(ctx, requests, ipcSnapshotTimeoutMS*time.Millisecond)
	if err != nil {
		return IPCResponse{Status: "error", Error: err.Error()}
	}

	if req.Type == ipcGetMetrics {
		return IPCResponse{Status: "ok", Data: ipcMetrics{
			RunID:         snap.RunID,
			Metrics:       snap.Metrics,
			FrameDuration: snap.FrameDuration,
			Uncertainty:   snap.FrameUncertainty(),
			Edges:         len(snap.Edges),
		}}
	}
	return IPCResponse{Status: "ok", Data: snap}
}

// requestSnapshot asks the sampling loop for a snapshot and waits up to timeout.
func requestSnapshot(ctx context.Context, requests chan<- SnapshotRequest, timeout time.Duration) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply := make(chan Snapshot, 1)
	select {
	case requests <- SnapshotRequest{Reply: reply}:
	case <-ctx.Done():
		return Snapshot{}, fmt.Errorf("snapshot request: %w", ctx.Err())
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, fmt.Errorf("snapshot reply: %w", ctx.Err())
	}
}
