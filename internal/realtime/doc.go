// Package realtime implements the client side of the realtime connection.
//
// A Manager owns at most one Transport. It authenticates with a bearer
// credential supplied at construction, mirrors the transport's lifecycle
// into a small state machine and exposes a read-only connected signal:
//
//	Idle -> Connecting -> Connected -> Disconnected -> Connecting ...
//	any state -> TornDown (Close)
//
// Reconnection belongs to the transport and follows the ReconnectPolicy the
// manager hands it. While connected the manager sends a "ping" event on a
// fixed interval; the paired "pong" is logged and never changes state.
package realtime
