package journal

import (
	"context"
	"sync"
	"time"

	"github.com/randalmurphal/eventgate/pkg/eventgate/event"
)

// MemoryJournal keeps entries in memory.
// Suitable for tests and single-process demos.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []Entry
	ids     map[string]struct{}
	closed  bool
}

var _ Journal = (*MemoryJournal)(nil)

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{ids: make(map[string]struct{})}
}

// Append implements Journal.
func (m *MemoryJournal) Append(_ context.Context, evt event.Event) error {
	if evt == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, dup := m.ids[evt.ID()]; dup {
		return nil
	}

	e := EntryFrom(evt)
	e.Seq = int64(len(m.entries) + 1)
	e.RecordedAt = time.Now().UTC()
	m.entries = append(m.entries, e)
	m.ids[e.EventID] = struct{}{}
	return nil
}

// Publish implements event.Publisher by appending.
func (m *MemoryJournal) Publish(ctx context.Context, evt event.Event) error {
	return m.Append(ctx, evt)
}

// List implements Journal.
func (m *MemoryJournal) List(_ context.Context, f Filter) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	var out []Entry
	for _, e := range m.entries {
		if !f.matches(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Count implements Journal.
func (m *MemoryJournal) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	return len(m.entries), nil
}

// Close implements Journal.
func (m *MemoryJournal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
