// Package events carries domain notifications (executed trades, price moves,
// leaderboard cycles) to subscribers such as Kafka and websocket clients.
package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	TypeTradeExecuted         = "trade.executed"
	TypePricesUpdated         = "prices.updated"
	TypeLeaderboardRecomputed = "leaderboard.recomputed"
)

type Event struct {
	Type    string    `json:"type"`
	Key     string    `json:"-"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

func New(typ, key string, payload any) Event {
	return Event{Type: typ, Key: key, At: time.Now().UTC(), Payload: payload}
}

// Publisher delivers an event. Delivery happens after the change it
// describes has committed; a failure never undoes that change.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

type noop struct{}

func (noop) Publish(context.Context, Event) error { return nil }

// Noop discards every event.
var Noop Publisher = noop{}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of one type in publish order.
func (r *Recorder) OfType(typ string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
