package service

import (
	"context"
	"log"

	"github.com/deviceops/reports-back/internal/domain"
)

// Subscriber consumes committed domain events. Delivery is best effort:
// failures are the subscriber's to log, never the command's to see.
type Subscriber func(ctx context.Context, event domain.Event)

// Dispatcher fans committed events out to subscribers, in registration
// order, on the caller's goroutine. Commands drain their accumulator into
// Dispatch only after the transactional write succeeds, so subscribers never
// observe uncommitted state.
type Dispatcher struct {
	subscribers []Subscriber
	logger      *log.Logger
}

func NewDispatcher(logger *log.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

func (d *Dispatcher) Subscribe(subscriber Subscriber) {
	d.subscribers = append(d.subscribers, subscriber)
}

func (d *Dispatcher) Dispatch(ctx context.Context, events []domain.Event) {
	for _, event := range events {
		if d.logger != nil {
			d.logger.Printf("event %s dispatched", event.EventName())
		}
		for _, subscriber := range d.subscribers {
			subscriber(ctx, event)
		}
	}
}
