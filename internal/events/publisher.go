// Package events fans domain events out to the notification and audit collaborators.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/trogers1052/brokerage-ledger/internal/models"
)

// Publisher delivers committed domain events. Delivery and retry belong to the implementation.
type Publisher interface {
	Publish(ctx context.Context, events ...models.DomainEvent) error
}

// Emit publishes events after a commit. A failed publish is logged, never returned:
// the change it describes has already happened.
func Emit(ctx context.Context, log zerolog.Logger, pub Publisher, evs ...models.DomainEvent) {
	if pub == nil || len(evs) == 0 {
		return
	}
	if err := pub.Publish(ctx, evs...); err != nil {
		log.Warn().Err(err).Int("events", len(evs)).Str("event_type", evs[0].EventType).Msg("failed to publish domain events")
	}
}

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []models.DomainEvent
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, evs ...models.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
	return nil
}

// Events returns a copy of everything published so far
func (r *Recorder) Events() []models.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.DomainEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the event types in publish order
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}
