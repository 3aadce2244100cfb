package liveevents

import (
	"context"

	"github.com/smallbiznis/pasarku/internal/events"
)

// Publisher is the live sink handed to the event dispatcher.
type Publisher struct {
	hub   *Hub
	relay *Relay
}

func NewPublisher(hub *Hub, relay *Relay) *Publisher {
	return &Publisher{hub: hub, relay: relay}
}

func (p *Publisher) Publish(ctx context.Context, evt events.OrderEvent) error {
	p.hub.Publish(evt)
	return p.relay.Publish(ctx, evt)
}

var _ events.LiveSink = (*Publisher)(nil)
