package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Envelope is the wire form of every published event.
type Envelope struct {
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Encode wraps payload in an Envelope and marshals it.
func Encode(eventName string, payload any, occurredAt time.Time) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventName, err)
	}
	data, err := json.Marshal(Envelope{Event: eventName, Payload: body, OccurredAt: occurredAt.UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", eventName, err)
	}
	return data, nil
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

// Publish implements the publisher contract.
func (Nop) Publish(context.Context, string, any) error { return nil }

// Recorded is an event captured by a Recorder.
type Recorded struct {
	Name    string
	Payload any
}

// Recorder keeps published events in memory. Useful for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
	err    error
}

// NewRecorder returns a Recorder. A non-nil failWith is returned from every Publish call
// after the event has been recorded.
func NewRecorder(failWith error) *Recorder {
	return &Recorder{err: failWith}
}

// Publish records the event.
func (r *Recorder) Publish(_ context.Context, eventName string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Name: eventName, Payload: payload})
	return r.err
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}
