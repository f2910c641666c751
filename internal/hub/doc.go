// Package hub is the server end of the realtime transport.
//
// Clients authenticate with a bearer token (Authorization header or "token"
// query parameter) before the websocket upgrade. Each client gets one read
// and one write goroutine and a bounded send queue; a full queue drops the
// frame for that client only. Application "ping" frames are answered with a
// "pong" echoing the payload.
package hub
