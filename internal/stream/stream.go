// Package stream fans applied-transaction events out to subscribers
// (SSE clients). Slow subscribers drop events rather than block the
// engine.
package stream

import (
	"context"
	"sync"
	"time"

	"paystream.org/internal/engine"
)

// Event describes one applied transaction.
type Event struct {
	Kind      engine.Kind     `json:"kind"`
	Client    engine.ClientID `json:"client"`
	Tx        engine.TxID     `json:"tx"`
	Amount    string          `json:"amount,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an event from an applied record.
func NewEvent(rec engine.Record) Event {
	evt := Event{
		Kind:      rec.Kind,
		Client:    rec.Client,
		Tx:        rec.Tx,
		Timestamp: time.Now().UTC(),
	}
	if rec.HasAmount {
		evt.Amount = rec.Amount.String()
	}
	return evt
}

// Stream fan-outs events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will
// receive events. The channel is closed when the context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
