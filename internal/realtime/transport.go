package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/infrawatch/infrawatch/internal/version"
)

// Transport is a bidirectional event connection that reconnects on its own.
type Transport interface {
	// Open starts connecting in the background. Lifecycle and message events
	// are delivered on Events until the transport stops.
	Open(ctx context.Context)

	// Events returns the channel of transport events. It is closed when the
	// transport stops for good.
	Events() <-chan TransportEvent

	// Emit sends a named event with a JSON payload.
	Emit(event string, data any) error

	// Close stops reconnection and closes the connection. Safe to call more
	// than once.
	Close() error
}

// wsTransport implements Transport over gorilla/websocket.
type wsTransport struct {
	cfg    TransportConfig
	logger *slog.Logger

	events chan TransportEvent

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Write serialization
	writeMu sync.Mutex

	// State
	mu     sync.RWMutex
	conn   *websocket.Conn
	opened bool
	closed bool
}

// NewWebSocketTransport creates a transport for cfg.URL. It does not dial
// until Open is called.
func NewWebSocketTransport(cfg TransportConfig, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultTransportConfig().BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultTransportConfig().WriteTimeout
	}

	return &wsTransport{
		cfg:    cfg,
		logger: logger,
		events: make(chan TransportEvent, cfg.BufferSize),
	}
}

// Open starts the connect/reconnect loop.
func (t *wsTransport) Open(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.opened || t.closed {
		return
	}
	t.opened = true

	ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(1)
	go t.run(ctx)
}

// Events returns the event channel.
func (t *wsTransport) Events() <-chan TransportEvent {
	return t.events
}

// Emit writes a frame to the live connection.
func (t *wsTransport) Emit(event string, data any) error {
	frame, err := NewFrame(event, data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Close stops the loop and closes any live connection.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	opened := t.opened
	conn := t.conn
	cancel := t.cancel
	t.mu.Unlock()

	if !opened {
		close(t.events)
		return nil
	}

	cancel()

	if conn != nil {
		t.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()
		// The read loop may already have closed it.
		conn.Close()
	}

	t.wg.Wait()
	return nil
}

// run dials, reads until the connection drops and redials per the policy.
// It is the only sender on t.events.
func (t *wsTransport) run(ctx context.Context) {
	defer t.wg.Done()
	defer close(t.events)

	policy := t.cfg.Reconnect
	attempt := 0

	for {
		conn, err := t.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("realtime connect failed", "url", t.cfg.URL, "error", err)
			t.publish(ctx, TransportEvent{Type: EventConnectError, Err: err})
		} else {
			attempt = 0
			if !t.attach(conn) {
				conn.Close()
				return
			}
			t.publish(ctx, TransportEvent{Type: EventConnect})

			stop := context.AfterFunc(ctx, func() { conn.Close() })
			reason := t.readLoop(ctx, conn)
			stop()
			t.detach()
			conn.Close()
			if ctx.Err() != nil {
				return
			}
			t.logger.Info("realtime disconnected", "reason", reason)
			t.publish(ctx, TransportEvent{Type: EventDisconnect, Reason: reason})
		}

		if !policy.Enabled {
			return
		}
		attempt++
		if policy.MaxAttempts > 0 && attempt > policy.MaxAttempts {
			t.logger.Warn("realtime reconnection abandoned", "attempts", policy.MaxAttempts)
			t.publish(ctx, TransportEvent{Type: EventReconnectFailed})
			return
		}

		wait := policy.backoff(attempt)
		t.publish(ctx, TransportEvent{Type: EventReconnecting, Attempt: attempt})
		t.logger.Debug("realtime reconnecting", "attempt", attempt, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (t *wsTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("User-Agent", version.UserAgent())
	if t.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+t.cfg.Token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			return nil, fmt.Errorf("dial %s: %w (status %d)", t.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", t.cfg.URL, err)
	}
	return conn, nil
}

// attach publishes conn for Emit. It fails if Close raced the dial.
func (t *wsTransport) attach(conn *websocket.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.conn = conn
	return true
}

func (t *wsTransport) detach() {
	t.mu.Lock()
	t.conn = nil
	t.mu.Unlock()
}

// readLoop forwards frames until the connection fails and returns the
// disconnect reason.
func (t *wsTransport) readLoop(ctx context.Context, conn *websocket.Conn) string {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ReasonServerDisconnect
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return ReasonTransportClose
			}
			if ctx.Err() == nil {
				t.logger.Debug("realtime read failed", "error", err)
			}
			return ReasonTransportError
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			t.logger.Debug("dropping malformed frame", "bytes", len(data))
			continue
		}

		select {
		case t.events <- TransportEvent{Type: EventMessage, Frame: frame}:
		case <-ctx.Done():
			return ReasonTransportClose
		default:
			t.logger.Warn("event buffer full, dropping frame", "event", frame.Event)
		}
	}
}

// publish delivers a lifecycle event. Lifecycle events are never dropped
// while the transport is open.
func (t *wsTransport) publish(ctx context.Context, ev TransportEvent) {
	select {
	case t.events <- ev:
	case <-ctx.Done():
	}
}
