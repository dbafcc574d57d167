package liveserver

import (
	"context"

	"signal_gateway/internal/core"
)

// Publisher forwards pipeline output to the hub. It implements
// core.INotifier and core.IResultObserver.
type Publisher struct {
	hub *Hub
}

func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

func (p *Publisher) Notify(_ context.Context, ev core.Event) {
	p.hub.Broadcast(NewEventMessage(ev))
}

func (p *Publisher) OnResult(res core.ExecutionResult) {
	p.hub.Broadcast(NewResultMessage(res))
}
