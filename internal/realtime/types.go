package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// Reserved frame names.
const (
	FramePing = "ping"
	FramePong = "pong"
)

// Disconnect reasons reported by the websocket transport.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
)

// Frame is the JSON envelope exchanged over the transport.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame for event.
func NewFrame(event string, data any) (Frame, error) {
	f := Frame{Event: event}
	if data == nil {
		return f, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	f.Data = raw
	return f, nil
}

// EventType identifies a transport lifecycle event.
type EventType int

const (
	EventConnect EventType = iota + 1
	EventDisconnect
	EventConnectError
	EventReconnecting
	EventReconnectFailed
	EventMessage
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventConnectError:
		return "connect_error"
	case EventReconnecting:
		return "reconnecting"
	case EventReconnectFailed:
		return "reconnect_failed"
	case EventMessage:
		return "message"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// TransportEvent is delivered on Transport.Events in the order the
// transport observed it.
type TransportEvent struct {
	Type    EventType
	Reason  string // EventDisconnect
	Err     error  // EventConnectError
	Attempt int    // EventReconnecting
	Frame   Frame  // EventMessage
}

// ReconnectPolicy is the transport's built-in backoff. The delay starts at
// Delay and doubles up to MaxDelay; after MaxAttempts consecutive failed
// attempts the transport gives up. MaxAttempts <= 0 retries forever.
type ReconnectPolicy struct {
	Enabled     bool
	Delay       time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy returns the policy used by the dashboard client.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:     true,
		Delay:       1 * time.Second,
		MaxDelay:    5 * time.Second,
		MaxAttempts: 5,
	}
}

// backoff returns the wait before reconnect attempt n (1-based).
func (p ReconnectPolicy) backoff(n int) time.Duration {
	d := p.Delay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// TransportConfig configures a websocket transport.
type TransportConfig struct {
	URL              string // ws:// or wss:// endpoint
	Token            string // Bearer credential (empty = no Authorization header)
	Reconnect        ReconnectPolicy
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	BufferSize       int // Event channel buffer size
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Reconnect:        DefaultReconnectPolicy(),
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       64,
	}
}

// Config configures a Manager.
type Config struct {
	URL               string // Base URL, http(s) or ws(s)
	Path              string // Endpoint path appended to URL
	Reconnect         ReconnectPolicy
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	EventBuffer       int // Buffer for Manager.Events
}

// DefaultConfig returns the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		URL:               "http://localhost:8080",
		Path:              "/realtime",
		Reconnect:         DefaultReconnectPolicy(),
		HeartbeatInterval: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		EventBuffer:       64,
	}
}
