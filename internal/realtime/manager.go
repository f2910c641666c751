package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State is the manager's connection state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateTornDown:
		return "torn_down"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// TransportFactory builds the transport for a resolved endpoint and token.
type TransportFactory func(cfg TransportConfig, logger *slog.Logger) Transport

// Option configures a Manager.
type Option func(*Manager)

// WithTransportFactory replaces the websocket transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(m *Manager) {
		m.factory = f
	}
}

// WithStateObserver registers fn to be called synchronously on every state
// change. fn must not block.
func WithStateObserver(fn func(from, to State)) Option {
	return func(m *Manager) {
		m.observers = append(m.observers, fn)
	}
}

// Manager maintains one authenticated realtime connection.
type Manager struct {
	cfg       Config
	logger    *slog.Logger
	factory   TransportFactory
	observers []func(from, to State)

	transport Transport
	events    chan Frame

	cancel   context.CancelFunc
	done     chan struct{}
	finished chan struct{}
	closing  atomic.Bool
	closeErr error // set by teardown before finished is closed

	state     atomic.Int32
	connected atomic.Bool
	notifying atomic.Bool // observers are running

	subMu   sync.Mutex
	subs    []chan State
	subsEnd bool
}

// NewManager creates a manager and, when token is non-empty, starts
// connecting immediately. With an empty token the manager stays Idle and
// never dials.
func NewManager(cfg Config, token string, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}

	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		factory:  NewWebSocketTransport,
		events:   make(chan Frame, cfg.EventBuffer),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if token == "" {
		m.logger.Warn("no realtime credential, staying idle")
		close(m.finished)
		return m
	}

	endpoint, err := ResolveURL(cfg.URL, cfg.Path)
	if err != nil {
		m.logger.Warn("realtime endpoint invalid, staying idle", "url", cfg.URL, "error", err)
		close(m.finished)
		return m
	}

	tcfg := DefaultTransportConfig()
	tcfg.URL = endpoint
	tcfg.Token = token
	tcfg.Reconnect = cfg.Reconnect
	if cfg.HandshakeTimeout > 0 {
		tcfg.HandshakeTimeout = cfg.HandshakeTimeout
	}
	m.transport = m.factory(tcfg, logger.With("component", "realtime_transport"))

	var ctx context.Context
	ctx, m.cancel = context.WithCancel(context.Background())

	m.setState(StateConnecting)
	m.transport.Open(ctx)
	go m.run()

	m.logger.Info("realtime connecting", "url", endpoint)
	return m
}

// Connected reports whether the manager is currently Connected.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// State returns the current state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Events returns application frames received while connected. Frames are
// dropped when the channel is full. The channel is closed on Close.
func (m *Manager) Events() <-chan Frame {
	return m.events
}

// Subscribe returns a channel that receives every subsequent state change.
// Slow subscribers miss changes. The channel is closed on Close.
func (m *Manager) Subscribe() <-chan State {
	ch := make(chan State, 16)

	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.subsEnd {
		close(ch)
		return ch
	}
	m.subs = append(m.subs, ch)
	return ch
}

// Emit sends an application event over the live connection.
func (m *Manager) Emit(event string, data any) error {
	if m.State() != StateConnected {
		return ErrNotConnected
	}
	return m.transport.Emit(event, data)
}

// Close tears the manager down: the heartbeat stops and the transport is
// closed exactly once. Later calls are no-ops.
//
// Close may be called from a state observer. In that case it returns at once
// and teardown completes when the observer returns.
func (m *Manager) Close() error {
	if !m.closing.CompareAndSwap(false, true) {
		if m.transport != nil && !m.notifying.Load() {
			<-m.finished
		}
		return nil
	}
	close(m.done)

	if m.transport == nil {
		m.teardown()
		return nil
	}
	if m.notifying.Load() {
		return nil
	}
	<-m.finished
	return m.closeErr
}

// teardown runs once, on the run goroutine when a transport exists.
func (m *Manager) teardown() {
	if m.transport != nil {
		m.cancel()
		m.closeErr = m.transport.Close()
	}
	close(m.events)

	m.setState(StateTornDown)

	m.subMu.Lock()
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
	m.subsEnd = true
	m.subMu.Unlock()

	m.logger.Info("realtime manager closed")
}

// run is the only goroutine that reacts to transport events.
func (m *Manager) run() {
	defer close(m.finished)

	var (
		ticker *time.Ticker
		beat   <-chan time.Time
	)
	startHeartbeat := func() {
		if ticker == nil {
			ticker = time.NewTicker(m.cfg.HeartbeatInterval)
			beat = ticker.C
		}
	}
	stopHeartbeat := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			beat = nil
		}
	}
	defer stopHeartbeat()

	events := m.transport.Events()
	for {
		select {
		case <-m.done:
			stopHeartbeat()
			m.teardown()
			return

		case <-beat:
			m.heartbeat()

		case ev, ok := <-events:
			if !ok {
				// Transport gave up; nothing more will arrive.
				stopHeartbeat()
				events = nil
				if m.State() != StateDisconnected {
					m.setState(StateDisconnected)
				}
				continue
			}

			switch ev.Type {
			case EventConnect:
				m.setState(StateConnected)
				startHeartbeat()
				m.logger.Info("realtime connected")

			case EventDisconnect:
				stopHeartbeat()
				m.setState(StateDisconnected)
				m.logger.Info("realtime disconnected", "reason", ev.Reason)

			case EventConnectError:
				stopHeartbeat()
				m.setState(StateDisconnected)
				m.logger.Warn("realtime connection error", "error", ev.Err)

			case EventReconnecting:
				m.setState(StateConnecting)
				m.logger.Debug("realtime reconnecting", "attempt", ev.Attempt)

			case EventReconnectFailed:
				m.logger.Warn("realtime reconnection failed, giving up")

			case EventMessage:
				m.handleFrame(ev.Frame)
			}
		}
	}
}

type heartbeatPayload struct {
	SentAt int64 `json:"sent_at"` // Unix milliseconds
}

func (m *Manager) heartbeat() {
	err := m.transport.Emit(FramePing, heartbeatPayload{SentAt: time.Now().UnixMilli()})
	if err != nil {
		m.logger.Debug("heartbeat send failed", "error", err)
	}
}

func (m *Manager) handleFrame(f Frame) {
	if f.Event == FramePong {
		// Acknowledgement is informational only.
		var p heartbeatPayload
		if err := json.Unmarshal(f.Data, &p); err == nil && p.SentAt > 0 {
			m.logger.Debug("heartbeat acknowledged", "rtt", time.Since(time.UnixMilli(p.SentAt)))
		}
		return
	}
	if m.State() != StateConnected {
		return
	}

	select {
	case m.events <- f:
	default:
		m.logger.Warn("realtime event buffer full, dropping", "event", f.Event)
	}
}

func (m *Manager) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	m.connected.Store(s == StateConnected)
	if prev == s {
		return
	}

	m.notifying.Store(true)
	for _, fn := range m.observers {
		fn(prev, s)
	}
	m.notifying.Store(false)

	m.subMu.Lock()
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
		}
	}
	m.subMu.Unlock()
}
