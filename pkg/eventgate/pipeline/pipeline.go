// Package pipeline assembles a ready-to-use eventgate setup from Settings:
// boundary, capture layer, dispatch policy, publishers and metrics.
//
//	p, err := pipeline.FromFile("eventgate.yaml")
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	svc := orders.NewService(p.Boundary, p.Capture)
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/randalmurphal/eventgate/pkg/eventgate"
	"github.com/randalmurphal/eventgate/pkg/eventgate/config"
	"github.com/randalmurphal/eventgate/pkg/eventgate/dispatch"
	egerrors "github.com/randalmurphal/eventgate/pkg/eventgate/errors"
	"github.com/randalmurphal/eventgate/pkg/eventgate/event"
	"github.com/randalmurphal/eventgate/pkg/eventgate/journal"
	"github.com/randalmurphal/eventgate/pkg/eventgate/observability"
	"github.com/randalmurphal/eventgate/pkg/eventgate/publish"
	"github.com/randalmurphal/eventgate/pkg/eventgate/publish/natsjs"
)

// Pipeline holds the components built from one Settings value.
type Pipeline struct {
	Boundary *eventgate.Boundary
	Capture  *eventgate.Capture
	Policy   *dispatch.Policy

	// DeadLetters records events whose publication failed.
	DeadLetters *event.InMemoryDLQ

	// Journal is nil unless journal.path is set.
	Journal journal.Journal

	// Registry is nil unless metrics is "prometheus".
	Registry *prom.Registry

	logger  *slog.Logger
	closers []func() error
	watcher *config.Watcher
}

type options struct {
	logger     *slog.Logger
	publishers []event.Publisher
	stream     natsjs.Stream
	retry      egerrors.RetryConfig
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPublisher adds a publisher alongside the configured ones.
func WithPublisher(p event.Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publishers = append(o.publishers, p)
		}
	}
}

// WithStream publishes to js instead of dialing nats.url.
func WithStream(js natsjs.Stream) Option {
	return func(o *options) { o.stream = js }
}

// WithRetry sets the retry used for the NATS publisher. Default: egerrors.DefaultRetry.
func WithRetry(cfg egerrors.RetryConfig) Option {
	return func(o *options) { o.retry = cfg }
}

// FromFile loads settings from path and builds a pipeline.
func FromFile(path string, opts ...Option) (*Pipeline, error) {
	s, err := config.LoadSettings(path)
	if err != nil {
		return nil, err
	}
	return New(s, opts...)
}

// New builds a pipeline. Events go to every configured publisher: the
// journal when journal.path is set, NATS when nats.url is set or WithStream
// is given, and any WithPublisher additions. With none configured, events
// are logged.
func New(s config.Settings, opts ...Option) (*Pipeline, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default(), retry: egerrors.DefaultRetry}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pipeline{logger: o.logger}

	metrics := p.buildMetrics(s.Metrics)
	var spans observability.SpanManager = observability.NoopSpanManager{}
	if s.Tracing {
		spans = observability.NewSpanManager()
	}

	publisher, err := p.buildPublisher(s, o)
	if err != nil {
		return nil, errors.Join(err, p.Close())
	}

	p.DeadLetters = event.NewInMemoryDLQ(event.DefaultDLQConfig)
	p.Policy = dispatch.New(publisher,
		dispatch.WithDeadLetterQueue(p.DeadLetters),
		dispatch.WithLogger(o.logger),
		dispatch.WithMetrics(metrics),
		dispatch.WithSpanManager(spans),
	)
	p.Boundary = eventgate.NewBoundary(p.Policy,
		eventgate.WithLogger(o.logger),
		eventgate.WithMetrics(metrics),
		eventgate.WithSpanManager(spans),
	)
	if err := p.Boundary.Apply(s); err != nil {
		return nil, errors.Join(err, p.Close())
	}
	p.Capture = eventgate.NewCapture(
		eventgate.WithCaptureDepth(s.Scan.CaptureDepth),
		eventgate.WithCaptureLogger(o.logger),
	)
	return p, nil
}

func (p *Pipeline) buildMetrics(backend string) observability.MetricsRecorder {
	switch backend {
	case config.MetricsOTel:
		return observability.NewMetricsRecorder()
	case config.MetricsPrometheus:
		p.Registry = prom.NewRegistry()
		return observability.NewPrometheusRecorder(p.Registry)
	default:
		return observability.NoopMetrics{}
	}
}

func (p *Pipeline) buildPublisher(s config.Settings, o options) (event.Publisher, error) {
	publishers := make([]event.Publisher, 0, len(o.publishers)+2)

	if s.Journal.Path != "" {
		j, err := journal.NewSQLiteJournal(s.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		p.Journal = j
		p.closers = append(p.closers, j.Close)
		publishers = append(publishers, j)
	}

	cfg := natsjs.Config{
		SubjectPrefix: s.NATS.SubjectPrefix,
		Timeout:       s.NATS.Timeout,
		Logger:        o.logger,
	}
	var js *natsjs.Publisher
	switch {
	case o.stream != nil:
		js = natsjs.New(o.stream, cfg)
	case s.NATS.URL != "":
		var err error
		js, err = natsjs.Connect(s.NATS.URL, cfg)
		if err != nil {
			return nil, err
		}
	}
	if js != nil {
		p.closers = append(p.closers, js.Close)
		publishers = append(publishers, publish.WithRetry(js, o.retry))
	}

	publishers = append(publishers, o.publishers...)
	if len(publishers) == 0 {
		return publish.Logging(o.logger, nil), nil
	}
	if len(publishers) == 1 {
		return publishers[0], nil
	}
	return publish.Fanout(publishers...), nil
}

// Watch re-applies the settings file at path to the boundary whenever it
// changes, until ctx is done or Close is called. Publisher and metrics
// settings are fixed at New; only the boundary follows the file.
func (p *Pipeline) Watch(ctx context.Context, path string, opts ...config.WatcherOption) error {
	if p.watcher != nil {
		return errors.New("pipeline is already watching a settings file")
	}
	opts = append([]config.WatcherOption{config.WithWatcherLogger(p.logger)}, opts...)
	w, err := config.NewWatcher(path, func(s config.Settings) {
		if err := p.Boundary.Apply(s); err != nil {
			p.logger.Warn("settings change rejected", slog.Any("error", err))
		}
	}, opts...)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	p.watcher = w
	return nil
}

// MetricsHandler serves the Prometheus registry, or the default gatherer
// when metrics is not "prometheus".
func (p *Pipeline) MetricsHandler() http.Handler {
	return observability.HTTPHandler(p.Registry)
}

// Close stops the watcher and releases publishers. Events deferred to a
// transaction that has not finished yet are still delivered to the closed
// publishers and fail.
func (p *Pipeline) Close() error {
	var errs []error
	if p.watcher != nil {
		errs = append(errs, p.watcher.Stop())
		p.watcher = nil
	}
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	p.closers = nil
	return errors.Join(errs...)
}
