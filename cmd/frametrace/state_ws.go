package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket
// ============================================================================
// Streams the timeline to overlays and frametrace-ctl watch.
//
// Frames are JSON text messages {type, ts, data}:
//   - state_init:    full Snapshot, sent once on connect
//   - edge_recorded: the newest Edge, the hold it completed, and metrics
//
// Every client has its own queue and write pump; a client whose queue is
// full when a frame arrives is disconnected.
// ============================================================================

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// wsEdgeRecorded is the `data` payload of "edge_recorded". Hold is the
// estimate for the Edge that the new one just completed.
type wsEdgeRecorded struct {
	RunID   string    `json:"run_id"`
	Edge    Edge      `json:"edge"`
	Hold    *HeldSpan `json:"hold,omitempty"`
	Metrics Metrics   `json:"metrics"`

	Uncertainty float64 `json:"uncertainty_frames"`
}

func marshalEnvelope(typ string, at time.Time, data any) ([]byte, error) {
	ts := at.UTC()
	return json.Marshal(envelope{Type: typ, Ts: &ts, Data: data})
}

// edgeRecordedFrom builds the edge_recorded payload for the newest Edge of
// a snapshot.
func edgeRecordedFrom(s Snapshot) (wsEdgeRecorded, bool) {
	if len(s.Edges) == 0 {
		return wsEdgeRecorded{}, false
	}
	return edgeRecordedAt(s, 0), true
}

// edgeRecordedAt builds the payload for s.Edges[i]. Metrics are those of the
// snapshot, so coalesced Edges share the newest values.
func edgeRecordedAt(s Snapshot, i int) wsEdgeRecorded {
	msg := wsEdgeRecorded{
		RunID:       s.RunID,
		Edge:        s.Edges[i],
		Metrics:     s.Metrics,
		Uncertainty: s.FrameUncertainty(),
	}
	if i+1 < len(s.Edges) {
		completed := s.Edges[i+1].Timestamp
		for _, h := range s.Holds {
			if h.Edge.Timestamp.Equal(completed) {
				msg.Hold = &h
				break
			}
		}
	}
	return msg
}

// edgesRecordedSince returns a payload for every Edge of s newer than after,
// oldest first.
func edgesRecordedSince(s Snapshot, after time.Time) []wsEdgeRecorded {
	var out []wsEdgeRecorded
	for i := len(s.Edges) - 1; i >= 0; i-- {
		if s.Edges[i].Timestamp.After(after) {
			out = append(out, edgeRecordedAt(s, i))
		}
	}
	return out
}

// ============================================================================
// Hub
// ============================================================================

// Hub fans frames out to websocket clients. The client set is owned by the
// Run goroutine; other goroutines only talk to it through channels.
type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	direct     chan clientFrame
	done       chan struct{}

	clients map[*Client]struct{}
	count   atomic.Int64

	sendBuf int
}

// clientFrame is a frame for one client only.
type clientFrame struct {
	client *Client
	msg    []byte
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 64).
	SendBuf int
	// BroadcastBuf is the hub inbound broadcast queue size (default 256).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	h := &Hub{
		logger:     logger,
		// Unbuffered: once add returns, Run has recorded the client, so a
		// later direct frame cannot overtake the registration.
		register:   make(chan *Client),
		unregister: make(chan *Client, 64),
		direct:     make(chan clientFrame, 16),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		sendBuf:    cfg.SendBuf,
	}
	if h.sendBuf <= 0 {
		h.sendBuf = 64
	}
	bcast := cfg.BroadcastBuf
	if bcast <= 0 {
		bcast = 256
	}
	h.broadcast = make(chan []byte, bcast)
	return h
}

// Run owns the client set until ctx is canceled, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("ws hub starting")
	defer func() {
		close(h.done)
		for c := range h.clients {
			h.drop(c, "shutdown")
		}
		h.logger.Debug("ws hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", len(h.clients))

		case c := <-h.unregister:
			h.drop(c, "unregister")

		case f := <-h.direct:
			// The client may have gone away since the frame was queued.
			if _, ok := h.clients[f.client]; !ok {
				continue
			}
			select {
			case f.client.send <- f.msg:
			default:
				h.drop(f.client, "slow_client")
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Deleting during range is safe for Go maps.
					h.drop(c, "slow_client")
				}
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int { return int(h.count.Load()) }

// drop forgets c and closes its connection. Only Run calls it.
func (h *Hub) drop(c *Client, reason string) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.count.Store(int64(len(h.clients)))

	if c.conn != nil {
		_ = c.conn.Close()
	}
	// A closed send queue ends the client's writePump.
	c.closeSend()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", len(h.clients))
}

// add registers c. It reports false if the hub has stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// remove asks Run to drop c. Unknown clients are ignored.
func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// sendTo queues msg for c alone. Only Run writes to a client's send queue,
// so a frame for a client dropped in the meantime is discarded.
func (h *Hub) sendTo(c *Client, msg []byte) {
	select {
	case h.direct <- clientFrame{client: c, msg: msg}:
	case <-h.done:
	}
}

// BroadcastBytes queues an encoded frame for every client. It never blocks;
// a full hub queue drops the frame.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping frame", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client whose queue size follows the hub's config.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	size := 64
	if hub != nil {
		size = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, size),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

func (c *Client) logExit(pump string, err error) {
	var ce *websocket.CloseError
	switch {
	case errors.Is(err, websocket.ErrCloseSent):
	case errors.As(err, &ce):
		c.logger.Info("ws "+pump+" closed", "remote_addr", c.remoteAddr, "code", ce.Code, "reason", ce.Text)
	default:
		c.logger.Info("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
	}
}

// writePump drains the send queue into the connection and keeps it alive
// with pings. It returns on the first write error or once send is closed.
func (c *Client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		var (
			typ  = websocket.TextMessage
			data []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data = msg
		case <-ping.C:
			typ = websocket.PingMessage
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(typ, data); err != nil {
			c.logExit("writePump", err)
			return
		}
	}
}

// readPump only exists to process control frames and notice a gone peer.
func (c *Client) readPump() {
	defer func() {
		if c.hub != nil {
			c.hub.remove(c)
		}
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

type StateServer struct {
	logger   *slog.Logger
	hub      *Hub
	requests chan<- SnapshotRequest
}

// NewStateServer constructs the WS state server. Register it on a mux, start
// Hub().Run(ctx) and the broadcaster.
func NewStateServer(logger *slog.Logger, requests chan<- SnapshotRequest, cfg HubConfig) *StateServer {
	return &StateServer{
		logger:   logger,
		hub:      NewHub(logger, cfg),
		requests: requests,
	}
}

func (s *StateServer) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *StateServer) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	// Only local tools are expected; the listener defaults to loopback.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *StateServer) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Register first so no edge recorded during the snapshot round-trip is lost.
	if !s.hub.add(client) {
		_ = conn.Close()
		return
	}

	// Pumps are owned by the hub, not by the request context, which net/http
	// cancels as soon as this handler returns.
	go client.writePump()
	go client.readPump()

	if s.requests == nil {
		return
	}
	snap, err := requestSnapshot(r.Context(), s.requests, time.Second)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	initMsg, err := marshalEnvelope("state_init", time.Now(), snap)
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}
	s.hub.sendTo(client, initMsg)
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster turns published snapshots into edge_recorded frames until
// ctx is canceled or src is closed. The publisher may coalesce snapshots, so
// every Edge newer than the last one sent gets its own frame, as long as it
// is still in the timeline.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan Snapshot, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case snap, ok := <-src:
			if !ok {
				logger.Debug("ws broadcaster stopping (source ended)")
				return
			}
			for _, payload := range edgesRecordedSince(snap, last) {
				last = payload.Edge.Timestamp
				msg, err := marshalEnvelope("edge_recorded", payload.Edge.Timestamp, payload)
				if err != nil {
					logger.Warn("ws broadcaster marshal failed", "error", err)
					continue
				}
				hub.BroadcastBytes(msg)
			}
		}
	}
}
