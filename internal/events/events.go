// Package events publishes appointment lifecycle notifications to
// downstream consumers.
package events

import (
	"context"
	"sync"
	"time"
)

// Event is the message body published for every committed appointment change.
type Event struct {
	Type                string    `json:"type"`
	AppointmentID       int64     `json:"appointmentId"`
	PatientID           int64     `json:"patientId"`
	ProviderID          int64     `json:"providerId"`
	Status              string    `json:"status"`
	AppointmentDateTime time.Time `json:"appointmentDateTime"`
	OccurredAt          time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type noop struct{}

// Noop discards every event.
func Noop() Publisher { return noop{} }

func (noop) Publish(context.Context, Event) error { return nil }
func (noop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
