package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Constraints:
//   - ControllerState stays daemon-owned; the initial snapshot on connect goes
//     through the event loop (RequestStateSnapshot).
//   - WS broadcasts originate from reducer-emitted broadcasts (ReduceResult.Broadcasts).
//   - Slow clients are disconnected when their send buffer fills.
//
// Messages are JSON text frames with an envelope: {type, ts, data}.
// The first message on connect is "state_init" with a StateSnapshot in data.
//
// ============================================================================

type wsStanceChangedData struct {
	Stance string `json:"stance"`
}

type wsFacingChangedData struct {
	Facing string `json:"facing"`
}

type wsHeadingChangedData struct {
	Degrees float64 `json:"degrees"`
}

type wsKeyActionData struct {
	Op  string `json:"op"`
	Key string `json:"key"`
}

type wsPausedChangedData struct {
	Paused bool `json:"paused"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means "use now"
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 32).
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size (default 128).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, remove them after unlocking.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	// Closing send signals writePump to exit.
	safeCloseChan(c.send)
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsHeadingCoalesceWindow is the maximum rate at which heading updates are forwarded.
// Heading changes on nearly every sample while turning; clients only need the latest.
const wsHeadingCoalesceWindow = 50 * time.Millisecond

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards incoming messages to detect disconnects and handle control frames.
// It exits on read error, then unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

type StateServer struct {
	logger *slog.Logger
	hub    *Hub

	// Initial snapshots are requested through the event loop.
	events chan<- Event
}

// NewStateServer constructs the WS state server components. Register it on a mux,
// then start Hub().Run(ctx) and RunBroadcaster.
func NewStateServer(logger *slog.Logger, events chan<- Event, cfg HubConfig) *StateServer {
	return &StateServer{
		logger: logger,
		hub:    NewHub(logger, cfg),
		events: events,
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
	s.hub.register <- client

	// The pumps outlive the handler; net/http cancels r.Context() when it returns.
	go client.writePump(context.Background())
	go client.readPump()

	if s.events == nil {
		return
	}
	snap, err := requestSnapshot(r.Context(), s.events, time.Second)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	initMsg, err := marshalEnvelope(wsOutboundEvent{Type: "state_init", Data: snap})
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}
	select {
	case client.send <- initMsg:
	default:
		s.hub.unregister <- client
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads reducer-emitted StateBroadcast events, marshals them, and broadcasts
// them to all hub clients. Intended to run as a single goroutine.
//
// heading_changed is rate-limited: the latest pending value is flushed at most once
// per wsHeadingCoalesceWindow. Any other event flushes the pending heading first so
// ordering is preserved.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pending *wsOutboundEvent
	var timer *time.Timer
	var timerCh <-chan time.Time

	send := func(ev wsOutboundEvent) {
		msg, err := marshalEnvelope(ev)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		if pending == nil {
			return
		}
		send(*pending)
		pending = nil
	}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = nil
		timerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case <-timerCh:
			timer = nil
			timerCh = nil
			flushPending()

		case b, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == "heading_changed" {
				copyEv := ev
				pending = &copyEv
				if timer == nil {
					timer = time.NewTimer(wsHeadingCoalesceWindow)
					timerCh = timer.C
				}
				continue
			}

			flushPending()
			stopTimer()
			send(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastStanceChanged:
		return wsOutboundEvent{Type: "stance_changed", Data: wsStanceChangedData{Stance: ev.Stance.String()}, At: ev.At}, true
	case BroadcastFacingChanged:
		return wsOutboundEvent{Type: "facing_changed", Data: wsFacingChangedData{Facing: ev.Facing.String()}, At: ev.At}, true
	case BroadcastHeadingChanged:
		return wsOutboundEvent{Type: "heading_changed", Data: wsHeadingChangedData{Degrees: ev.Degrees}, At: ev.At}, true
	case BroadcastKeyAction:
		return wsOutboundEvent{Type: "key_action", Data: wsKeyActionData{Op: ev.Op, Key: string(ev.Key)}, At: ev.At}, true
	case BroadcastPausedChanged:
		return wsOutboundEvent{Type: "paused_changed", Data: wsPausedChangedData{Paused: ev.Paused}, At: ev.At}, true
	default:
		return wsOutboundEvent{}, false
	}
}
