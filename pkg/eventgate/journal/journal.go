// Package journal keeps a durable record of published domain events.
//
// A Journal is also an event.Publisher, so it can sit behind the dispatch
// policy directly or next to a transport in publish.Fanout. Appending the
// same event ID twice is a no-op.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/randalmurphal/eventgate/pkg/eventgate/event"
)

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("journal closed")

// Entry is one recorded event.
type Entry struct {
	Seq           int64     `json:"seq" yaml:"seq"`
	EventID       string    `json:"event_id" yaml:"event_id"`
	EventType     string    `json:"event_type" yaml:"event_type"`
	Source        string    `json:"source" yaml:"source"`
	CorrelationID string    `json:"correlation_id" yaml:"correlation_id"`
	CausationID   string    `json:"causation_id,omitempty" yaml:"causation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
	Version       int       `json:"version" yaml:"version"`
	Data          []byte    `json:"data,omitempty" yaml:"-"`
	RecordedAt    time.Time `json:"recorded_at" yaml:"recorded_at"`
}

// EntryFrom copies the fields of evt. Seq and RecordedAt are set by the journal.
func EntryFrom(evt event.Event) Entry {
	return Entry{
		EventID:       evt.ID(),
		EventType:     evt.Type(),
		Source:        evt.Source(),
		CorrelationID: evt.CorrelationID(),
		CausationID:   evt.CausationID(),
		Timestamp:     evt.Timestamp(),
		Version:       evt.Version(),
		Data:          evt.DataBytes(),
	}
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Type          string
	CorrelationID string
	Since         time.Time
	// Limit caps the result; zero or less means no limit.
	Limit int
}

func (f Filter) matches(e Entry) bool {
	if f.Type != "" && e.EventType != f.Type {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if !f.Since.IsZero() && e.RecordedAt.Before(f.Since) {
		return false
	}
	return true
}

// Journal records events and lists them back in append order.
type Journal interface {
	event.Publisher

	// Append records evt. Recording an ID that is already present does nothing.
	Append(ctx context.Context, evt event.Event) error

	// List returns matching entries, oldest first.
	List(ctx context.Context, f Filter) ([]Entry, error)

	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)

	// Close releases resources. Safe to call more than once.
	Close() error
}
