package event

import (
	"context"
	"sync"
)

// InMemoryDLQ is an in-memory DeadLetterQueue.
// Suitable for testing and single-instance deployments.
type InMemoryDLQ struct {
	mu      sync.Mutex
	events  []*FailedEvent
	maxSize int
	dropped int64

	onEnqueue func(*FailedEvent)
}

// DLQConfig configures the dead letter queue.
type DLQConfig struct {
	// MaxSize limits the number of queued events. The oldest entry is
	// evicted when the queue is full.
	// Default: 10000
	MaxSize int

	// OnEnqueue is called after an event is added.
	OnEnqueue func(*FailedEvent)
}

// DefaultDLQConfig provides reasonable defaults.
var DefaultDLQConfig = DLQConfig{
	MaxSize: 10000,
}

// Compile-time interface check.
var _ DeadLetterQueue = (*InMemoryDLQ)(nil)

// NewInMemoryDLQ creates a new in-memory dead letter queue.
func NewInMemoryDLQ(cfg DLQConfig) *InMemoryDLQ {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultDLQConfig.MaxSize
	}
	return &InMemoryDLQ{
		maxSize:   cfg.MaxSize,
		onEnqueue: cfg.OnEnqueue,
	}
}

// Enqueue adds a failed event, evicting the oldest one if full.
func (d *InMemoryDLQ) Enqueue(_ context.Context, failed *FailedEvent) error {
	if failed == nil {
		return nil
	}

	d.mu.Lock()
	if len(d.events) >= d.maxSize {
		d.events = d.events[1:]
		d.dropped++
	}
	d.events = append(d.events, failed)
	d.mu.Unlock()

	if d.onEnqueue != nil {
		d.onEnqueue(failed)
	}
	return nil
}

// Dequeue removes and returns up to limit events, oldest first.
// A limit of zero or less returns everything.
func (d *InMemoryDLQ) Dequeue(_ context.Context, limit int) ([]*FailedEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if limit <= 0 || limit > len(d.events) {
		limit = len(d.events)
	}
	out := make([]*FailedEvent, limit)
	copy(out, d.events[:limit])
	d.events = d.events[limit:]
	return out, nil
}

// Count returns the number of queued events.
func (d *InMemoryDLQ) Count(_ context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events), nil
}

// Evicted returns how many events were evicted because the queue was full.
func (d *InMemoryDLQ) Evicted() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}
