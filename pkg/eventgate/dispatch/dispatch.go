// Package dispatch decides when harvested domain events are published.
//
// With no open transaction in the context, events are published right away.
// With one, publishing is deferred to the transaction's commit callback and
// dropped on rollback. Either way a failed publish never stops the rest of
// the batch and never reaches the caller: it is logged, counted, and
// optionally recorded in a dead letter queue.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/eventgate/pkg/eventgate/aggregate"
	"github.com/randalmurphal/eventgate/pkg/eventgate/event"
	"github.com/randalmurphal/eventgate/pkg/eventgate/observability"
	"github.com/randalmurphal/eventgate/pkg/eventgate/txn"
)

// Pending pairs an entity with the events read from it. Events are expected
// to come from Entity.PendingEvents.
type Pending struct {
	Entity aggregate.Entity
	Events []event.Event
}

// Collect reads the pending events of every entity that has any.
func Collect(entities []aggregate.Entity) []Pending {
	out := make([]Pending, 0, len(entities))
	for _, e := range entities {
		if aggregate.IsNil(e) || !e.HasPendingEvents() {
			continue
		}
		out = append(out, Pending{Entity: e, Events: e.PendingEvents()})
	}
	return out
}

// Outcome summarises a Dispatch call. Published and Failed stay zero for a
// deferred dispatch; the work happens at commit.
type Outcome struct {
	Events    int
	Deferred  bool
	Published int
	Failed    int
}

// Policy publishes events now or after commit.
type Policy struct {
	publisher event.Publisher
	name      string
	dlq       event.DeadLetterQueue
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
}

// Option configures a Policy.
type Option func(*Policy)

// WithDeadLetterQueue records failed publishes in dlq.
func WithDeadLetterQueue(dlq event.DeadLetterQueue) Option {
	return func(p *Policy) { p.dlq = dlq }
}

// WithPublisherName labels dead letters with the publisher's name.
func WithPublisherName(name string) Option {
	return func(p *Policy) { p.name = name }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) { p.logger = logger }
}

// WithMetrics sets the metrics recorder. Default: no-op.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(p *Policy) { p.metrics = m }
}

// WithSpanManager sets the span manager. Default: no-op.
func WithSpanManager(s observability.SpanManager) Option {
	return func(p *Policy) { p.spans = s }
}

// New creates a Policy that delivers through publisher.
func New(publisher event.Publisher, opts ...Option) *Policy {
	p := &Policy{publisher: publisher}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.metrics == nil {
		p.metrics = observability.NoopMetrics{}
	}
	if p.spans == nil {
		p.spans = observability.NoopSpanManager{}
	}
	return p
}

// Dispatch publishes the events of pending, or schedules them for commit
// when ctx carries an open transaction.
func (p *Policy) Dispatch(ctx context.Context, pending []Pending) Outcome {
	total := 0
	for _, pe := range pending {
		total += len(pe.Events)
	}
	if total == 0 {
		return Outcome{}
	}

	if tx := txn.FromContext(ctx); tx != nil && tx.Active() {
		observability.LogDispatch(p.logger, total, true)
		p.metrics.RecordDispatch(ctx, total, true)

		tx.Register(
			func(ctx context.Context) {
				p.publishAndClear(ctx, stillPending(pending), true)
			},
			func(ctx context.Context) {
				observability.LogDiscarded(p.logger, total)
				p.metrics.RecordDiscarded(ctx, total)
			},
		)
		return Outcome{Events: total, Deferred: true}
	}

	observability.LogDispatch(p.logger, total, false)
	p.metrics.RecordDispatch(ctx, total, false)
	published, failed := p.publishAndClear(ctx, pending, false)
	return Outcome{Events: total, Published: published, Failed: failed}
}

// publishAndClear publishes every event in order, then acknowledges each
// entity's events whatever the individual outcomes were.
func (p *Policy) publishAndClear(ctx context.Context, pending []Pending, deferred bool) (published, failed int) {
	events := flatten(pending)
	ctx, span := p.spans.StartDispatchSpan(ctx, len(events), deferred)

	for _, evt := range events {
		if err := p.publish(ctx, evt); err != nil {
			failed++
			observability.LogPublishError(p.logger, evt.ID(), evt.Type(), err)
			p.metrics.RecordPublish(ctx, evt.Type(), err)
			p.spans.AddSpanEvent(ctx, "publish failed",
				attribute.String("event.id", evt.ID()),
				attribute.String("event.type", evt.Type()),
			)
			p.deadLetter(ctx, evt, err)
			continue
		}
		published++
		p.metrics.RecordPublish(ctx, evt.Type(), nil)
	}

	for _, pe := range pending {
		aggregate.Acknowledge(pe.Entity, pe.Events)
	}

	var spanErr error
	if failed > 0 {
		spanErr = fmt.Errorf("%d of %d events failed to publish", failed, len(events))
	}
	p.spans.EndSpanWithError(span, spanErr)
	return published, failed
}

// publish isolates a single publish so a panicking transport counts as a
// failure of that event only.
func (p *Policy) publish(ctx context.Context, evt event.Event) (err error) {
	if p.publisher == nil {
		return fmt.Errorf("no publisher configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panicked: %v", r)
		}
	}()
	return p.publisher.Publish(ctx, evt)
}

func (p *Policy) deadLetter(ctx context.Context, evt event.Event, err error) {
	if p.dlq == nil {
		return
	}
	if dlqErr := p.dlq.Enqueue(ctx, event.NewFailedEvent(evt, err, p.name)); dlqErr != nil {
		p.logger.Warn("failed to record dead letter",
			slog.String("event_id", evt.ID()),
			slog.String("error", dlqErr.Error()),
		)
	}
}

func flatten(pending []Pending) []event.Event {
	var events []event.Event
	for _, pe := range pending {
		for _, evt := range pe.Events {
			if evt != nil {
				events = append(events, evt)
			}
		}
	}
	return events
}

// stillPending drops events an earlier commit callback already handled, so two
// operations in one transaction never publish the same event twice. Events are
// matched by identity; two events sharing an ID are still both delivered.
func stillPending(pending []Pending) []Pending {
	out := make([]Pending, 0, len(pending))
	for _, pe := range pending {
		if aggregate.IsNil(pe.Entity) {
			out = append(out, pe)
			continue
		}
		current := pe.Entity.PendingEvents()
		others := aggregate.Unmatched(current, pe.Events)
		kept := aggregate.Unmatched(current, others)
		out = append(out, Pending{Entity: pe.Entity, Events: kept})
	}
	return out
}
