package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/infrawatch/infrawatch/internal/auth"
	"github.com/infrawatch/infrawatch/internal/metrics"
	"github.com/infrawatch/infrawatch/internal/realtime"
)

// EventConnected is sent to every client right after the upgrade.
const EventConnected = "connected"

// ErrClosed is returned by Broadcast after Close.
var ErrClosed = errors.New("hub closed")

// Verifier checks bearer tokens.
type Verifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Config configures a Hub.
type Config struct {
	WriteTimeout   time.Duration // Deadline for each frame write
	PongTimeout    time.Duration // Read deadline, extended by any inbound traffic
	PingInterval   time.Duration // Control ping cadence, must be below PongTimeout
	SendQueue      int           // Per-client buffered frames
	MaxFrameBytes  int64         // Largest accepted inbound frame
	AllowedOrigins []string      // Empty allows any origin
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:  5 * time.Second,
		PongTimeout:   60 * time.Second,
		PingInterval:  30 * time.Second,
		SendQueue:     256,
		MaxFrameBytes: 64 << 10,
	}
}

// Hub tracks connected clients and fans frames out to them.
type Hub struct {
	cfg      Config
	verifier Verifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	id      string
	subject string
	conn    *websocket.Conn
	send    chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// New creates a hub. m may be nil.
func New(cfg Config, verifier Verifier, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongTimeout {
		cfg.PingInterval = cfg.PongTimeout / 2
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = def.SendQueue
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = def.MaxFrameBytes
	}

	h := &Hub{
		cfg:      cfg,
		verifier: verifier,
		metrics:  m,
		logger:   logger,
		clients:  make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// ServeHTTP authenticates and upgrades a realtime connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := auth.BearerToken(r)
	if err != nil {
		token = r.URL.Query().Get("token")
	}
	claims, err := h.verifier.Verify(token)
	if token == "" || err != nil {
		h.logger.Debug("realtime auth rejected", "remote", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"error":"Unauthorized"}`))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("realtime upgrade failed", "error", err)
		return
	}

	c := &client{
		id:      uuid.NewString(),
		subject: claims.Subject,
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendQueue),
		done:    make(chan struct{}),
	}
	if !h.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)

	welcome, _ := encode(EventConnected, map[string]string{"client_id": c.id})
	h.enqueue(c, welcome)

	h.logger.Info("realtime client connected", "client_id", c.id, "subject", c.subject)
}

// Broadcast sends event to every connected client and returns how many
// clients it was queued for.
func (h *Hub) Broadcast(event string, data any) (int, error) {
	payload, err := encode(event, data)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrClosed
	}

	delivered, dropped := 0, 0
	for c := range h.clients {
		if h.enqueue(c, payload) {
			delivered++
		} else {
			dropped++
		}
	}
	h.metrics.HubBroadcast(dropped)
	return delivered, nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
	h.wg.Wait()

	h.logger.Info("realtime hub closed", "clients", len(clients))
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.metrics.HubClientConnected()
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		h.metrics.HubClientDisconnected()
		h.logger.Info("realtime client disconnected", "client_id", c.id)
	}
}

// enqueue never blocks; it reports false when the frame was dropped.
func (h *Hub) enqueue(c *client, payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		h.logger.Warn("client send queue full, dropping frame", "client_id", c.id)
		return false
	}
}

func (h *Hub) readPump(c *client) {
	defer h.wg.Done()
	defer func() {
		h.unregister(c)
		c.shutdown()
	}()

	c.conn.SetReadLimit(h.cfg.MaxFrameBytes)
	extend := func() {
		c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	}
	extend()
	c.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("realtime read failed", "client_id", c.id, "error", err)
			}
			return
		}
		extend()

		var f realtime.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.logger.Debug("dropping malformed frame", "client_id", c.id)
			continue
		}

		switch f.Event {
		case realtime.FramePing:
			pong, _ := json.Marshal(realtime.Frame{Event: realtime.FramePong, Data: f.Data})
			h.enqueue(c, pong)
		default:
			h.logger.Debug("ignoring client frame", "client_id", c.id, "event", f.Event)
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
				time.Now().Add(h.cfg.WriteTimeout))
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("realtime write failed", "client_id", c.id, "error", err)
				c.shutdown()
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				h.logger.Debug("failed to send ping", "client_id", c.id, "error", err)
				c.shutdown()
				return
			}
		}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.cfg.AllowedOrigins, origin)
}

func encode(event string, data any) ([]byte, error) {
	f, err := realtime.NewFrame(event, data)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return payload, nil
}
