// Package events carries the domain events the core emits in place of
// store-level change listeners. Within a single errand, events are
// delivered to every subscriber in publish order.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types, also used as routing keys on the AMQP bridge.
const (
	TypeBidAccepted         = "bid.accepted"
	TypePaymentCompleted    = "payment.completed"
	TypePaymentFailed       = "payment.failed"
	TypeCompletionRequested = "completion.requested"
	TypeCompletionApproved  = "completion.approved"
	TypeDisputeRaised       = "dispute.raised"
)

type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	ErrandID   string         `json:"errand_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// New stamps an event with an id and occurrence time.
func New(eventType, errandID string, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ErrandID:   errandID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus is an in-process publisher with fan-out to subscriber channels.
// Publish holds the bus lock while sending, so one errand's events reach
// each subscriber in order; slow subscribers exert backpressure.
type Bus struct {
	mu     sync.Mutex
	subs   []chan Event
	closed bool
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(buffer int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, buffer)
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// Nop discards events; used when no bridge is configured in tests.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
