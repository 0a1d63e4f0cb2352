package event

import (
	"context"
	"fmt"
	"time"
)

// EventError represents an error while delivering an event.
type EventError struct {
	Event   Event  // The event that failed
	Handler string // Subscriber or transport that failed (if known)
	Message string
	Err     error
}

// Error implements error interface.
func (e *EventError) Error() string {
	id := "<nil>"
	if e.Event != nil {
		id = e.Event.ID()
	}
	if e.Err != nil {
		return fmt.Sprintf("event %s: %s: %v", id, e.Message, e.Err)
	}
	return fmt.Sprintf("event %s: %s", id, e.Message)
}

// Unwrap returns the underlying error.
func (e *EventError) Unwrap() error {
	return e.Err
}

// FailedEvent records an event whose publication failed.
type FailedEvent struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	EventData []byte         `json:"event_data"`
	Metadata  Metadata       `json:"metadata"`
	Error     string         `json:"error_message"`
	Publisher string         `json:"publisher,omitempty"`
	FailedAt  time.Time      `json:"failed_at"`
	Attrs     map[string]any `json:"attrs,omitempty"`

	original Event
}

// NewFailedEvent creates a FailedEvent from a publish error.
func NewFailedEvent(evt Event, err error, publisher string) *FailedEvent {
	return &FailedEvent{
		EventID:   evt.ID(),
		EventType: evt.Type(),
		EventData: evt.DataBytes(),
		Metadata:  MetadataOf(evt),
		Error:     err.Error(),
		Publisher: publisher,
		FailedAt:  time.Now(),
		original:  evt,
	}
}

// Event returns the original event when the record was created in-process.
func (f *FailedEvent) Event() Event {
	return f.original
}

// DeadLetterQueue stores events whose publication failed.
// Recording is for inspection; the dispatcher never re-publishes on its own.
type DeadLetterQueue interface {
	// Enqueue adds a failed event.
	Enqueue(ctx context.Context, failed *FailedEvent) error

	// Dequeue removes and returns up to limit failed events, oldest first.
	Dequeue(ctx context.Context, limit int) ([]*FailedEvent, error)

	// Count returns the number of queued events.
	Count(ctx context.Context) (int, error)
}
