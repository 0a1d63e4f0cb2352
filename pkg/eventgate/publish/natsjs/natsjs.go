// Package natsjs publishes domain events to NATS JetStream.
//
// Every event is sent as a JSON envelope on "<prefix>.<event type>" with the
// event ID as the JetStream message ID, so the stream's duplicate window
// drops a re-sent event.
package natsjs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	egerrors "github.com/randalmurphal/eventgate/pkg/eventgate/errors"
	"github.com/randalmurphal/eventgate/pkg/eventgate/event"
)

// ErrNoSubject is returned for an event without a type.
var ErrNoSubject = errors.New("event has no type to derive a subject from")

// Stream is the part of jetstream.JetStream the publisher needs.
type Stream interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Config configures a Publisher.
type Config struct {
	// SubjectPrefix is prepended to the event type. Default: "events".
	SubjectPrefix string

	// Timeout bounds each publish. Default: 5s.
	Timeout time.Duration

	// Logger receives publish diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// Envelope is the wire form of an event.
type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds the wire form of evt.
func NewEnvelope(evt event.Event) Envelope {
	return Envelope{
		ID:            evt.ID(),
		Type:          evt.Type(),
		Source:        evt.Source(),
		CorrelationID: evt.CorrelationID(),
		CausationID:   evt.CausationID(),
		Timestamp:     evt.Timestamp(),
		Version:       evt.Version(),
		Data:          json.RawMessage(evt.DataBytes()),
	}
}

// Publisher is an event.Publisher backed by JetStream.
type Publisher struct {
	js      Stream
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
	conn    *nats.Conn
}

var _ event.Publisher = (*Publisher)(nil)

// New creates a Publisher on an existing JetStream handle.
func New(js Stream, cfg Config) *Publisher {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "events"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Publisher{
		js:      js,
		prefix:  cfg.SubjectPrefix,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// Connect dials url and returns a Publisher owning the connection.
func Connect(url string, cfg Config) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("eventgate"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := New(js, cfg)
	p.conn = conn
	p.logger.Info("NATS publisher connected",
		slog.String("url", url),
		slog.String("subject_prefix", p.prefix),
	)
	return p, nil
}

// EnsureStream creates or updates a stream capturing every subject under prefix.
func EnsureStream(ctx context.Context, js jetstream.StreamManager, name, prefix string, dupWindow time.Duration) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       name,
		Subjects:   []string{prefix + ".>"},
		Duplicates: dupWindow,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", name, err)
	}
	return nil
}

// Subject returns the subject evt is published on.
func (p *Publisher) Subject(evt event.Event) (string, error) {
	if evt.Type() == "" {
		return "", ErrNoSubject
	}
	return p.prefix + "." + evt.Type(), nil
}

// Publish sends evt and waits for the stream's acknowledgement.
// Timeouts and missing responders are reported as transient errors.
func (p *Publisher) Publish(ctx context.Context, evt event.Event) error {
	subject, err := p.Subject(evt)
	if err != nil {
		return egerrors.Permanent(err, "natsjs publish")
	}

	data, err := json.Marshal(NewEnvelope(evt))
	if err != nil {
		return egerrors.Permanent(fmt.Errorf("marshal envelope: %w", err), "natsjs publish")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(evt.ID()))
	if err != nil {
		return classify(fmt.Errorf("publish %s to %s: %w", evt.ID(), subject, err))
	}

	p.logger.Debug("published event to JetStream",
		slog.String("event_id", evt.ID()),
		slog.String("subject", subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("sequence", ack.Sequence),
		slog.Bool("duplicate", ack.Duplicate),
	)
	return nil
}

// Close closes the connection when the Publisher owns one.
func (p *Publisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, jetstream.ErrNoStreamResponse):
		return egerrors.Transient(err, "natsjs publish")
	default:
		return egerrors.Permanent(err, "natsjs publish")
	}
}
