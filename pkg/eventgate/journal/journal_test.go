package journal_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventgate/pkg/eventgate/event"
	"github.com/randalmurphal/eventgate/pkg/eventgate/journal"
)

type placed struct {
	OrderID string `json:"order_id"`
}

// journals returns one fresh instance of every implementation.
func journals(t *testing.T) map[string]journal.Journal {
	t.Helper()

	sqlite, err := journal.NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]journal.Journal{
		"memory": journal.NewMemoryJournal(),
		"sqlite": sqlite,
	}
}

func TestJournal_AppendAndList(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := event.New("order.placed", "order", placed{OrderID: "o-1"})
			second := event.NewFromParent(first, "order.shipped", "order", placed{OrderID: "o-1"})

			require.NoError(t, j.Append(ctx, first))
			require.NoError(t, j.Publish(ctx, second))

			entries, err := j.List(ctx, journal.Filter{})
			require.NoError(t, err)
			require.Len(t, entries, 2)

			assert.Equal(t, first.ID(), entries[0].EventID)
			assert.Equal(t, "order.placed", entries[0].EventType)
			assert.JSONEq(t, `{"order_id":"o-1"}`, string(entries[0].Data))
			assert.True(t, entries[0].Timestamp.Equal(first.Timestamp()))
			assert.Less(t, entries[0].Seq, entries[1].Seq)

			assert.Equal(t, first.CorrelationID(), entries[1].CorrelationID)
			assert.Equal(t, first.ID(), entries[1].CausationID)
			assert.False(t, entries[1].RecordedAt.IsZero())
		})
	}
}

func TestJournal_DuplicateIDsIgnored(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			evt := event.NewAny("order.placed", "order", nil, event.WithEventID("evt-1"))

			require.NoError(t, j.Append(ctx, evt))
			require.NoError(t, j.Append(ctx, evt))
			require.NoError(t, j.Append(ctx, nil))

			n, err := j.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestJournal_Filter(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			root := event.NewAny("order.placed", "order", nil)
			require.NoError(t, j.Append(ctx, root))
			require.NoError(t, j.Append(ctx, event.NewAny("order.placed", "order", nil)))
			require.NoError(t, j.Append(ctx, event.NewFromParent[any](root, "order.shipped", "order", nil)))

			byType, err := j.List(ctx, journal.Filter{Type: "order.placed"})
			require.NoError(t, err)
			assert.Len(t, byType, 2)

			byCorrelation, err := j.List(ctx, journal.Filter{CorrelationID: root.CorrelationID()})
			require.NoError(t, err)
			assert.Len(t, byCorrelation, 2)

			limited, err := j.List(ctx, journal.Filter{Limit: 1})
			require.NoError(t, err)
			require.Len(t, limited, 1)
			assert.Equal(t, root.ID(), limited[0].EventID)

			future, err := j.List(ctx, journal.Filter{Since: time.Now().Add(time.Hour)})
			require.NoError(t, err)
			assert.Empty(t, future)

			past, err := j.List(ctx, journal.Filter{Since: time.Now().Add(-time.Hour)})
			require.NoError(t, err)
			assert.Len(t, past, 3)
		})
	}
}

func TestJournal_Closed(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, j.Close())
			require.NoError(t, j.Close(), "second close is a no-op")

			assert.ErrorIs(t, j.Append(ctx, event.NewAny("x", "y", nil)), journal.ErrClosed)
			_, err := j.List(ctx, journal.Filter{})
			assert.ErrorIs(t, err, journal.ErrClosed)
			_, err = j.Count(ctx)
			assert.ErrorIs(t, err, journal.ErrClosed)
		})
	}
}

func TestJournal_ConcurrentAppends(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, j.Append(ctx, event.NewAny("order.placed", "order", nil)))
				}()
			}
			wg.Wait()

			n, err := j.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 20, n)
		})
	}
}

func TestSQLiteJournal_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := journal.NewSQLiteJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, event.NewAny("order.placed", "order", nil)))
	require.NoError(t, j.Close())

	reopened, err := journal.NewSQLiteJournal(path)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
