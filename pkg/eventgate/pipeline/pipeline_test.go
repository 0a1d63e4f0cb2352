package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventgate/pkg/eventgate"
	"github.com/randalmurphal/eventgate/pkg/eventgate/aggregate"
	"github.com/randalmurphal/eventgate/pkg/eventgate/config"
	"github.com/randalmurphal/eventgate/pkg/eventgate/event"
	"github.com/randalmurphal/eventgate/pkg/eventgate/pipeline"
)

type ticket struct {
	aggregate.Root
	ID string
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(_ context.Context, evt event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fakeStream struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakeStream) Publish(_ context.Context, subject string, _ []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	return &jetstream.PubAck{Stream: "EVENTS", Sequence: uint64(len(f.subjects))}, nil
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func openTicket(t *testing.T, p *pipeline.Pipeline) {
	t.Helper()
	tk := &ticket{ID: "t-1"}
	_, err := eventgate.Run(context.Background(), p.Boundary, "TicketService.Open",
		func(context.Context) (*ticket, error) {
			tk.RegisterEvent(event.NewAny("ticket.opened", "ticket", tk.ID))
			return tk, nil
		}, tk)
	require.NoError(t, err)
	assert.False(t, tk.HasPendingEvents())
}

func TestNew_Defaults(t *testing.T) {
	rec := &recorder{}
	p, err := pipeline.New(config.DefaultSettings(), pipeline.WithPublisher(rec), pipeline.WithLogger(quiet))
	require.NoError(t, err)
	defer p.Close()

	assert.True(t, p.Boundary.Enabled())
	assert.Equal(t, eventgate.StrategyCooperative, p.Boundary.Strategy())
	assert.Nil(t, p.Journal)
	assert.Nil(t, p.Registry)
	require.NotNil(t, p.Capture)

	openTicket(t, p)
	assert.Equal(t, 1, rec.len())
}

func TestNew_NoPublisherLogsEvents(t *testing.T) {
	p, err := pipeline.New(config.DefaultSettings(), pipeline.WithLogger(quiet))
	require.NoError(t, err)
	defer p.Close()

	openTicket(t, p)
	n, err := p.DeadLetters.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNew_InvalidSettings(t *testing.T) {
	s := config.DefaultSettings()
	s.Strategy = "psychic"

	_, err := pipeline.New(s)
	assert.ErrorIs(t, err, config.ErrInvalidSettings)
}

func TestNew_JournalAndStream(t *testing.T) {
	s := config.DefaultSettings()
	s.Strategy = config.StrategyDirect
	s.Journal.Path = filepath.Join(t.TempDir(), "events.db")
	s.NATS.SubjectPrefix = "tickets"

	rec := &recorder{}
	stream := &fakeStream{}
	p, err := pipeline.New(s,
		pipeline.WithStream(stream),
		pipeline.WithPublisher(rec),
		pipeline.WithLogger(quiet),
	)
	require.NoError(t, err)
	defer p.Close()

	require.NotNil(t, p.Journal)
	assert.Equal(t, eventgate.StrategyDirect, p.Boundary.Strategy())

	openTicket(t, p)

	n, err := p.Journal.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"tickets.ticket.opened"}, stream.subjects)
	assert.Equal(t, 1, rec.len())
}

func TestNew_Prometheus(t *testing.T) {
	s := config.DefaultSettings()
	s.Metrics = config.MetricsPrometheus

	p, err := pipeline.New(s, pipeline.WithPublisher(&recorder{}), pipeline.WithLogger(quiet))
	require.NoError(t, err)
	defer p.Close()
	require.NotNil(t, p.Registry)

	openTicket(t, p)

	families, err := p.Registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "eventgate_operations_total")
	assert.Contains(t, names, "eventgate_events_published_total")

	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "eventgate_operations_total")
}

func TestWatch_AppliesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy: cooperative\n"), 0o600))

	p, err := pipeline.FromFile(path, pipeline.WithPublisher(&recorder{}), pipeline.WithLogger(quiet))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Watch(ctx, path, config.WithDebounce(20*time.Millisecond)))
	assert.Error(t, p.Watch(ctx, path), "second watch")

	require.NoError(t, os.WriteFile(path, []byte("strategy: diff\nenabled: false\n"), 0o600))
	assert.Eventually(t, func() bool {
		return p.Boundary.Strategy() == eventgate.StrategyDiff && !p.Boundary.Enabled()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Close())
	assert.NoError(t, p.Close(), "close is idempotent")
}
