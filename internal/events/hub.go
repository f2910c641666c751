package events

import "context"

// Broadcaster is implemented by the realtime hub.
type Broadcaster interface {
	Broadcast(event string, data any) (int, error)
}

// HubPublisher pushes events to connected realtime clients. The frame name is
// the event type and the payload is the whole event.
type HubPublisher struct {
	hub Broadcaster
}

// NewHubPublisher wraps b.
func NewHubPublisher(b Broadcaster) *HubPublisher {
	return &HubPublisher{hub: b}
}

// Publish broadcasts ev.
func (p *HubPublisher) Publish(_ context.Context, ev Event) error {
	_, err := p.hub.Broadcast(ev.Type, ev)
	return err
}
