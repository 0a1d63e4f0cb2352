package event

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Bus provides in-process pub/sub with fan-out to subscribers.
type Bus interface {
	Publisher

	// Subscribe creates a subscription for specific event types.
	Subscribe(types []string, handler Handler) Subscription

	// SubscribeAll subscribes to all events.
	SubscribeAll(handler Handler) Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// ID returns the subscription identifier.
	ID() string

	// Unsubscribe removes the subscription. Safe to call more than once.
	Unsubscribe()
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// BufferSize is the channel buffer size per subscription.
	// Default: 256
	BufferSize int

	// Synchronous delivers events inline from Publish, in subscription order.
	// Handler errors are returned from Publish, joined into an EventError.
	Synchronous bool

	// NonBlocking drops events when a subscriber buffer is full (async mode only).
	NonBlocking bool

	// DeduplicateTTL suppresses events whose ID was seen within the TTL.
	// Default: 0 (disabled)
	DeduplicateTTL time.Duration

	// OnDrop is called when an event is dropped in non-blocking mode.
	OnDrop func(evt Event, subscriberID string)

	// OnError is called when an async handler returns an error.
	OnError func(evt Event, subscriberID string, err error)

	// Logger receives delivery diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	BufferSize: 256,
}

// LocalBus is an in-memory Bus. It satisfies Publisher, so it can be handed
// directly to the dispatch policy.
type LocalBus struct {
	config BusConfig

	mu     sync.RWMutex
	subs   map[string]*subscription
	order  []string
	byType map[string]map[string]struct{}

	dedupeMu    sync.Mutex
	dedupeCache map[string]time.Time

	closed  atomic.Bool
	closeCh chan struct{}
}

// Compile-time interface check.
var _ Bus = (*LocalBus)(nil)

// NewBus creates a new local event bus.
func NewBus(config BusConfig) *LocalBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	bus := &LocalBus{
		config:  config,
		subs:    make(map[string]*subscription),
		byType:  make(map[string]map[string]struct{}),
		closeCh: make(chan struct{}),
	}

	if config.DeduplicateTTL > 0 {
		bus.dedupeCache = make(map[string]time.Time)
		go bus.cleanupDedupe()
	}

	return bus
}

type subscription struct {
	id      string
	types   []string // empty = all types
	handler Handler
	events  chan Event
	done    chan struct{}
	once    sync.Once
	bus     *LocalBus
}

// Publish delivers evt to all matching subscribers.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if evt == nil {
		return nil
	}
	if b.closed.Load() {
		return &EventError{Event: evt, Message: "bus is closed"}
	}

	if b.config.DeduplicateTTL > 0 && b.seen(evt) {
		return nil
	}

	subs := b.matching(evt.Type())

	if b.config.Synchronous {
		return b.deliverInline(ctx, evt, subs)
	}

	for _, sub := range subs {
		if b.config.NonBlocking {
			select {
			case sub.events <- evt:
			default:
				if b.config.OnDrop != nil {
					b.config.OnDrop(evt, sub.id)
				}
			}
			continue
		}

		select {
		case sub.events <- evt:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closeCh:
			return &EventError{Event: evt, Message: "bus closed during publish"}
		}
	}
	return nil
}

func (b *LocalBus) deliverInline(ctx context.Context, evt Event, subs []*subscription) error {
	var failures []error
	for _, sub := range subs {
		if err := sub.handler.Handle(ctx, evt); err != nil {
			b.config.Logger.Debug("subscriber failed",
				slog.String("subscription_id", sub.id),
				slog.String("event_type", evt.Type()),
				slog.String("error", err.Error()),
			)
			failures = append(failures, err)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &EventError{Event: evt, Message: "subscriber failed", Err: errors.Join(failures...)}
}

// Subscribe creates a subscription for specific event types.
// Returns nil when the bus is closed.
func (b *LocalBus) Subscribe(types []string, handler Handler) Subscription {
	if sub := b.subscribe(types, handler); sub != nil {
		return sub
	}
	return nil
}

// SubscribeAll subscribes to all events.
func (b *LocalBus) SubscribeAll(handler Handler) Subscription {
	return b.Subscribe(nil, handler)
}

func (b *LocalBus) subscribe(types []string, handler Handler) *subscription {
	if b.closed.Load() || handler == nil {
		return nil
	}

	sub := &subscription{
		id:      uuid.NewString(),
		types:   types,
		handler: handler,
		done:    make(chan struct{}),
		bus:     b,
	}
	if !b.config.Synchronous {
		sub.events = make(chan Event, b.config.BufferSize)
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.order = append(b.order, sub.id)
	for _, t := range types {
		if b.byType[t] == nil {
			b.byType[t] = make(map[string]struct{})
		}
		b.byType[t][sub.id] = struct{}{}
	}
	b.mu.Unlock()

	if !b.config.Synchronous {
		go sub.process()
	}
	return sub
}

// matching returns subscriptions for an event type in subscription order.
func (b *LocalBus) matching(eventType string) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	typed := b.byType[eventType]
	out := make([]*subscription, 0, len(b.order))
	for _, id := range b.order {
		sub, ok := b.subs[id]
		if !ok {
			continue
		}
		if len(sub.types) == 0 {
			out = append(out, sub)
			continue
		}
		if _, ok := typed[id]; ok {
			out = append(out, sub)
		}
	}
	return out
}

// Close shuts down the bus.
func (b *LocalBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.closeCh)

	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

func (s *subscription) process() {
	for {
		select {
		case evt := <-s.events:
			if err := s.handler.Handle(context.Background(), evt); err != nil && s.bus.config.OnError != nil {
				s.bus.config.OnError(evt, s.id, err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// ID returns the subscription identifier.
func (s *subscription) ID() string {
	return s.id
}

// Unsubscribe removes the subscription.
func (s *subscription) Unsubscribe() {
	b := s.bus
	b.mu.Lock()
	delete(b.subs, s.id)
	for i, id := range b.order {
		if id == s.id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	for _, t := range s.types {
		delete(b.byType[t], s.id)
	}
	b.mu.Unlock()

	s.stop()
}

// seen reports whether evt was published within the dedupe TTL, recording it otherwise.
func (b *LocalBus) seen(evt Event) bool {
	b.dedupeMu.Lock()
	defer b.dedupeMu.Unlock()

	if _, exists := b.dedupeCache[evt.ID()]; exists {
		return true
	}
	b.dedupeCache[evt.ID()] = time.Now()
	return false
}

func (b *LocalBus) cleanupDedupe() {
	ticker := time.NewTicker(b.config.DeduplicateTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.dedupeMu.Lock()
			cutoff := time.Now().Add(-b.config.DeduplicateTTL)
			for id, ts := range b.dedupeCache {
				if ts.Before(cutoff) {
					delete(b.dedupeCache, id)
				}
			}
			b.dedupeMu.Unlock()

		case <-b.closeCh:
			return
		}
	}
}
