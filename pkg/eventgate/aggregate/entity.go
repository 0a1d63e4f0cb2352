package aggregate

import (
	"reflect"
	"slices"

	"github.com/randalmurphal/eventgate/pkg/eventgate/event"
)

// Entity is a business object that buffers domain events until they are
// published. Types opt in by implementing the three methods, usually by
// embedding Root.
type Entity interface {
	// PendingEvents returns the buffered events in registration order.
	// Callers must not mutate the returned slice.
	PendingEvents() []event.Event

	// HasPendingEvents reports whether at least one event is buffered.
	HasPendingEvents() bool

	// ClearPendingEvents empties the buffer.
	ClearPendingEvents()
}

// Root is an embeddable event buffer that satisfies Entity.
//
//	type Order struct {
//	    aggregate.Root
//	    ID string
//	}
//
//	func (o *Order) Place() {
//	    o.RegisterEvent(event.New("order.placed", "order", OrderPlaced{ID: o.ID}))
//	}
//
// Root is not safe for concurrent mutation of the same instance.
type Root struct {
	pending []event.Event
}

// Compile-time interface checks.
var (
	_ Entity       = (*Root)(nil)
	_ Acknowledger = (*Root)(nil)
)

// RegisterEvent appends evt to the buffer. A nil event is ignored.
func (r *Root) RegisterEvent(evt event.Event) {
	if evt == nil {
		return
	}
	r.pending = append(r.pending, evt)
}

// PendingEvents returns a copy of the buffered events.
func (r *Root) PendingEvents() []event.Event {
	return slices.Clone(r.pending)
}

// HasPendingEvents reports whether any event is buffered.
func (r *Root) HasPendingEvents() bool {
	return len(r.pending) > 0
}

// PendingCount returns the number of buffered events.
func (r *Root) PendingCount() int {
	return len(r.pending)
}

// ClearPendingEvents drops the buffered events. Events registered after the
// call land in a fresh buffer, so a slice handed out earlier is unaffected.
func (r *Root) ClearPendingEvents() {
	r.pending = nil
}

// AcknowledgeEvents removes the given events from the buffer. Events are
// matched by identity, not by ID, so an event registered after they were read
// stays pending even when it reuses an ID.
func (r *Root) AcknowledgeEvents(events []event.Event) {
	if len(events) == 0 || len(r.pending) == 0 {
		return
	}
	kept := Unmatched(r.pending, events)
	if len(kept) == 0 {
		kept = nil
	}
	r.pending = kept
}

// SameEvent reports whether a and b are the same event value. Events of
// non-comparable dynamic types never match.
func SameEvent(a, b event.Event) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// Unmatched returns the events of from that are not in remove. Each entry of
// remove cancels at most one event, so duplicates are handled one for one.
func Unmatched(from, remove []event.Event) []event.Event {
	used := make([]bool, len(remove))
	out := make([]event.Event, 0, len(from))
next:
	for _, evt := range from {
		for i, rm := range remove {
			if !used[i] && SameEvent(evt, rm) {
				used[i] = true
				continue next
			}
		}
		out = append(out, evt)
	}
	return out
}

// Acknowledger is implemented by entities that can drop a specific set of
// events instead of clearing their whole buffer.
type Acknowledger interface {
	AcknowledgeEvents(events []event.Event)
}

// Acknowledge removes events from e once they have been handled. Entities
// without AcknowledgeEvents are cleared entirely.
func Acknowledge(e Entity, events []event.Event) {
	if IsNil(e) {
		return
	}
	if a, ok := e.(Acknowledger); ok {
		a.AcknowledgeEvents(events)
		return
	}
	e.ClearPendingEvents()
}

// Count returns the number of pending events of e, using PendingCount when
// the entity provides it.
func Count(e Entity) int {
	if c, ok := e.(interface{ PendingCount() int }); ok {
		return c.PendingCount()
	}
	return len(e.PendingEvents())
}
