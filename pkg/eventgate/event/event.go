package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a domain event produced by an aggregate.
// Events are immutable once created. The publication pipeline never looks
// inside an event; only transports and subscribers do.
type Event interface {
	// Identity
	ID() string     // Unique event identifier
	Type() string   // Event type (e.g., "order.placed")
	Source() string // Producing aggregate kind (e.g., "order")

	// Correlation for tracing a chain of events
	CorrelationID() string
	CausationID() string

	// Metadata
	Timestamp() time.Time
	Version() int // Schema version of the payload

	// Payload
	Data() any
	DataBytes() []byte
}

// Metadata contains common event metadata fields.
type Metadata struct {
	EventID       string    `json:"id"`
	EventType     string    `json:"type"`
	EventSource   string    `json:"source"`
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	SchemaVersion int       `json:"schema_version"`
}

// MetadataOf copies the metadata of any Event.
func MetadataOf(evt Event) Metadata {
	return Metadata{
		EventID:       evt.ID(),
		EventType:     evt.Type(),
		EventSource:   evt.Source(),
		CorrelationID: evt.CorrelationID(),
		CausationID:   evt.CausationID(),
		Timestamp:     evt.Timestamp(),
		SchemaVersion: evt.Version(),
	}
}

// BaseEvent is the generic Event implementation.
// T is the payload type.
type BaseEvent[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`

	cachedBytes []byte
}

// ID returns the unique event identifier.
func (e *BaseEvent[T]) ID() string { return e.Meta.EventID }

// Type returns the event type.
func (e *BaseEvent[T]) Type() string { return e.Meta.EventType }

// Source returns the event source.
func (e *BaseEvent[T]) Source() string { return e.Meta.EventSource }

// CorrelationID returns the correlation ID.
func (e *BaseEvent[T]) CorrelationID() string { return e.Meta.CorrelationID }

// CausationID returns the ID of the event that caused this one.
func (e *BaseEvent[T]) CausationID() string { return e.Meta.CausationID }

// Timestamp returns when the event occurred.
func (e *BaseEvent[T]) Timestamp() time.Time { return e.Meta.Timestamp }

// Version returns the schema version.
func (e *BaseEvent[T]) Version() int { return e.Meta.SchemaVersion }

// Data returns the event payload.
func (e *BaseEvent[T]) Data() any { return e.Payload }

// TypedData returns the strongly-typed payload.
func (e *BaseEvent[T]) TypedData() T { return e.Payload }

// DataBytes returns the JSON-encoded payload, computed once.
func (e *BaseEvent[T]) DataBytes() []byte {
	if e.cachedBytes == nil {
		// Payloads that cannot be encoded yield nil; transports report the failure.
		e.cachedBytes, _ = json.Marshal(e.Payload)
	}
	return e.cachedBytes
}

// MarshalJSON implements json.Marshaler.
func (e *BaseEvent[T]) MarshalJSON() ([]byte, error) {
	type alias BaseEvent[T]
	return json.Marshal((*alias)(e))
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *BaseEvent[T]) UnmarshalJSON(data []byte) error {
	type alias BaseEvent[T]
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}
	e.cachedBytes = nil
	return nil
}

// Option configures event creation.
type Option func(*eventConfig)

type eventConfig struct {
	id            string
	correlationID string
	causationID   string
	timestamp     time.Time
	version       int
}

// WithEventID sets a specific event ID (default: random UUID).
func WithEventID(id string) Option {
	return func(cfg *eventConfig) { cfg.id = id }
}

// WithCorrelationID sets the correlation ID.
func WithCorrelationID(id string) Option {
	return func(cfg *eventConfig) { cfg.correlationID = id }
}

// WithCausationID sets the ID of the causing event.
func WithCausationID(id string) Option {
	return func(cfg *eventConfig) { cfg.causationID = id }
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(cfg *eventConfig) { cfg.timestamp = t }
}

// WithSchemaVersion sets the schema version (default: 1).
func WithSchemaVersion(v int) Option {
	return func(cfg *eventConfig) { cfg.version = v }
}

// New creates an event with the given type, source and payload.
func New[T any](eventType, source string, payload T, opts ...Option) *BaseEvent[T] {
	cfg := &eventConfig{
		id:        uuid.NewString(),
		timestamp: time.Now(),
		version:   1,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	// A root event starts its own correlation chain.
	if cfg.correlationID == "" {
		cfg.correlationID = cfg.id
	}

	return &BaseEvent[T]{
		Meta: Metadata{
			EventID:       cfg.id,
			EventType:     eventType,
			EventSource:   source,
			CorrelationID: cfg.correlationID,
			CausationID:   cfg.causationID,
			Timestamp:     cfg.timestamp,
			SchemaVersion: cfg.version,
		},
		Payload: payload,
	}
}

// NewFromParent creates an event caused by parent, inheriting its correlation ID.
func NewFromParent[T any](parent Event, eventType, source string, payload T, opts ...Option) *BaseEvent[T] {
	parentOpts := []Option{
		WithCorrelationID(parent.CorrelationID()),
		WithCausationID(parent.ID()),
	}
	return New(eventType, source, payload, append(parentOpts, opts...)...)
}

// NewAny creates an event with an untyped payload.
func NewAny(eventType, source string, payload any, opts ...Option) *BaseEvent[any] {
	return New(eventType, source, payload, opts...)
}

// Publisher delivers a single event to subscribers.
// Implementations may fail; callers decide whether a failure matters.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, evt Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Handler consumes events delivered by a Bus.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Typed wraps a function that receives the decoded payload of T.
// Payloads of another Go type are re-decoded through JSON.
func Typed[T any](fn func(ctx context.Context, payload T, meta Metadata) error) Handler {
	return HandlerFunc(func(ctx context.Context, evt Event) error {
		var payload T
		switch d := evt.Data().(type) {
		case T:
			payload = d
		default:
			raw := evt.DataBytes()
			if raw == nil {
				return &EventError{Event: evt, Message: "payload is not encodable"}
			}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return &EventError{Event: evt, Message: "decode payload", Err: err}
			}
		}
		return fn(ctx, payload, MetadataOf(evt))
	})
}
