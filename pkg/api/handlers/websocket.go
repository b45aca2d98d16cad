package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ganttforge/ganttforge/pkg/api/events"
	"github.com/ganttforge/ganttforge/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	wsDefaultMaxConns = 100
	wsPingEvery       = 30 * time.Second
	wsPongGrace       = 10 * time.Second
	wsWriteWait       = 10 * time.Second
	wsOutboxSize      = 32
	wsReadLimit       = 1 << 20
)

// WebSocketConfig configures the /ws/events stream.
type WebSocketConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// EventMessage is the frame sent to stream subscribers.
type EventMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// clientCommand is what subscribers send upstream: subscribe/unsubscribe
// to a schedule id, either top-level or nested in the payload.
type clientCommand struct {
	Type       string         `json:"type"`
	ScheduleID string         `json:"schedule_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func (c clientCommand) scheduleID() string {
	if id := strings.TrimSpace(c.ScheduleID); id != "" {
		return id
	}
	if v, ok := c.Payload["schedule_id"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// streamConn is one subscriber. The write loop is the only reader of
// outbox; the hub is the only sender. filter is touched by the read
// loop (subscribe commands) and the hub (delivery checks).
type streamConn struct {
	sock   *websocket.Conn
	outbox chan []byte

	mu     sync.Mutex
	filter map[string]struct{}

	once sync.Once
}

func newStreamConn(sock *websocket.Conn) *streamConn {
	return &streamConn{
		sock:   sock,
		outbox: make(chan []byte, wsOutboxSize),
		filter: make(map[string]struct{}),
	}
}

func (c *streamConn) setFilter(scheduleID string, on bool) {
	if scheduleID == "" {
		return
	}
	c.mu.Lock()
	if on {
		c.filter[scheduleID] = struct{}{}
	} else {
		delete(c.filter, scheduleID)
	}
	c.mu.Unlock()
}

// wants reports whether a frame tagged with scheduleID should be
// delivered. An empty filter means the subscriber takes everything.
func (c *streamConn) wants(scheduleID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.filter) == 0 {
		return true
	}
	if scheduleID == "" {
		return false
	}
	_, ok := c.filter[scheduleID]
	return ok
}

func (c *streamConn) shutdown() {
	c.once.Do(func() {
		close(c.outbox)
		if c.sock != nil {
			_ = c.sock.Close()
		}
	})
}

// streamFrame is a pre-marshalled event plus its routing tag.
type streamFrame struct {
	scheduleID string
	data       []byte
}

// streamHub owns the subscriber set. All membership changes and frame
// fan-out go through its run loop, so the set needs no lock.
type streamHub struct {
	join   chan *streamConn
	leave  chan *streamConn
	frames chan streamFrame
	done   chan struct{}

	limit  int
	active atomic.Int64
	stop   sync.Once
}

func newStreamHub(limit int) *streamHub {
	if limit <= 0 {
		limit = wsDefaultMaxConns
	}
	h := &streamHub{
		join:   make(chan *streamConn),
		leave:  make(chan *streamConn),
		frames: make(chan streamFrame, wsOutboxSize),
		done:   make(chan struct{}),
		limit:  limit,
	}
	go h.run()
	return h
}

func (h *streamHub) run() {
	conns := make(map[*streamConn]struct{})
	drop := func(c *streamConn) {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			c.shutdown()
			h.active.Store(int64(len(conns)))
		}
	}
	for {
		select {
		case c := <-h.join:
			conns[c] = struct{}{}
			h.active.Store(int64(len(conns)))
		case c := <-h.leave:
			drop(c)
		case f := <-h.frames:
			for c := range conns {
				if !c.wants(f.scheduleID) {
					continue
				}
				select {
				case c.outbox <- f.data:
				default:
					// Subscriber is not draining; cut it loose
					// rather than stall the fan-out.
					drop(c)
				}
			}
		case <-h.done:
			for c := range conns {
				c.shutdown()
			}
			return
		}
	}
}

func (h *streamHub) count() int { return int(h.active.Load()) }

func (h *streamHub) full() bool { return h.count() >= h.limit }

func (h *streamHub) admit(c *streamConn) {
	select {
	case h.join <- c:
	case <-h.done:
		c.shutdown()
	}
}

func (h *streamHub) evict(c *streamConn) {
	select {
	case h.leave <- c:
	case <-h.done:
	}
}

func (h *streamHub) publish(f streamFrame) {
	select {
	case h.frames <- f:
	case <-h.done:
	}
}

func (h *streamHub) close() {
	h.stop.Do(func() { close(h.done) })
}

// WebSocketHandler serves the live event stream at /ws/events.
type WebSocketHandler struct {
	log       logger.Logger
	hub       *streamHub
	upgrader  websocket.Upgrader
	pingEvery time.Duration
	pongGrace time.Duration
}

// NewWebSocketHandler creates the stream handler and starts its hub.
func NewWebSocketHandler(log logger.Logger, cfg WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		log:       log,
		hub:       newStreamHub(cfg.MaxConnections),
		pingEvery: cfg.PingInterval,
		pongGrace: cfg.PongTimeout,
	}
	if h.pingEvery <= 0 {
		h.pingEvery = wsPingEvery
	}
	if h.pongGrace <= 0 {
		h.pongGrace = wsPongGrace
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	wildcard := false
	for _, o := range cfg.AllowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "*" {
			wildcard = true
		} else if o != "" {
			allowed[o] = struct{}{}
		}
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return wildcard || originAllowed(r, allowed)
		},
	}
	return h
}

// originAllowed accepts requests with no Origin header (non-browser
// clients), a configured origin, or an origin matching the host itself.
func originAllowed(r *http.Request, allowed map[string]struct{}) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if _, ok := allowed[strings.ToLower(origin)]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// ServeHTTP upgrades the request and runs the subscriber loops.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if h.hub.full() {
		http.Error(w, "event stream at connection capacity", http.StatusServiceUnavailable)
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warn("websocket upgrade failed", "error", err)
		}
		return
	}

	conn := newStreamConn(sock)
	h.hub.admit(conn)
	go h.writeLoop(conn)
	h.readLoop(conn)
}

// Run pumps broadcaster events into the hub until ctx is cancelled.
func (h *WebSocketHandler) Run(ctx context.Context, broadcaster *events.Broadcaster) {
	ch := broadcaster.Subscribe(wsOutboxSize)
	defer broadcaster.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = h.Broadcast(EventMessage{
				Type:      ev.Type,
				Timestamp: ev.Timestamp,
				Payload:   ev.Payload,
			})
		}
	}
}

// Broadcast marshals the event once and hands it to the hub for fan-out.
func (h *WebSocketHandler) Broadcast(event EventMessage) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.hub.publish(streamFrame{scheduleID: routingTag(event.Payload), data: data})
	return nil
}

// Close shuts down the hub and every subscriber.
func (h *WebSocketHandler) Close() {
	h.hub.close()
}

func (h *WebSocketHandler) readLoop(conn *streamConn) {
	defer h.hub.evict(conn)

	idle := h.pingEvery + h.pongGrace
	conn.sock.SetReadLimit(wsReadLimit)
	_ = conn.sock.SetReadDeadline(time.Now().Add(idle))
	conn.sock.SetPongHandler(func(string) error {
		return conn.sock.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, raw, err := conn.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && h.log != nil {
				h.log.Warn("websocket read error", "error", err)
			}
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
		case "subscribe":
			conn.setFilter(cmd.scheduleID(), true)
		case "unsubscribe":
			conn.setFilter(cmd.scheduleID(), false)
		}
	}
}

func (h *WebSocketHandler) writeLoop(conn *streamConn) {
	ticker := time.NewTicker(h.pingEvery)
	defer func() {
		ticker.Stop()
		h.hub.evict(conn)
	}()

	for {
		select {
		case data, ok := <-conn.outbox:
			if !ok {
				deadline := time.Now().Add(wsWriteWait)
				_ = conn.sock.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			_ = conn.sock.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// routingTag extracts the schedule id a payload is about, if any.
func routingTag(payload any) string {
	switch v := payload.(type) {
	case map[string]any:
		if id, ok := v["schedule_id"].(string); ok {
			return id
		}
	case map[string]string:
		return v["schedule_id"]
	}
	return ""
}
