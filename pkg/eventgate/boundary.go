package eventgate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/eventgate/pkg/eventgate/aggregate"
	"github.com/randalmurphal/eventgate/pkg/eventgate/config"
	"github.com/randalmurphal/eventgate/pkg/eventgate/dispatch"
	"github.com/randalmurphal/eventgate/pkg/eventgate/observability"
	"github.com/randalmurphal/eventgate/pkg/eventgate/scan"
	"github.com/randalmurphal/eventgate/pkg/eventgate/tracking"
)

// Dispatcher receives the events harvested from a successful operation.
// *dispatch.Policy is the standard implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, pending []dispatch.Pending) dispatch.Outcome
}

// runtime holds the settings that may change while the Boundary serves calls.
type runtime struct {
	enabled   bool
	strategy  Strategy
	logTiming bool
	policy    tracking.NestedPolicy
	scanner   *scan.Scanner
}

// Boundary is the publication boundary: it opens a tracking scope around an
// operation and, when the operation succeeds, dispatches the events of the
// entities it touched.
//
// A Boundary is safe for concurrent use. Each call gets its own registry
// unless the context already carries one.
type Boundary struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	spans      observability.SpanManager

	rt atomic.Pointer[runtime]
}

// BoundaryOption configures a Boundary.
type BoundaryOption func(*Boundary, *runtime)

// WithStrategy sets the discovery strategy. Default: StrategyCooperative.
func WithStrategy(s Strategy) BoundaryOption {
	return func(_ *Boundary, rt *runtime) { rt.strategy = s }
}

// WithScanner sets the scanner used by StrategyDirect and StrategyDiff.
func WithScanner(s *scan.Scanner) BoundaryOption {
	return func(_ *Boundary, rt *runtime) {
		if s != nil {
			rt.scanner = s
		}
	}
}

// WithLogTiming logs every completed operation at info level with its duration.
func WithLogTiming(enabled bool) BoundaryOption {
	return func(_ *Boundary, rt *runtime) { rt.logTiming = enabled }
}

// WithNestedPolicy sets how a boundary entered inside another behaves.
// Default: tracking.RejectNested.
func WithNestedPolicy(p tracking.NestedPolicy) BoundaryOption {
	return func(_ *Boundary, rt *runtime) { rt.policy = p }
}

// WithEnabled turns the boundary on or off. Default: on.
func WithEnabled(enabled bool) BoundaryOption {
	return func(_ *Boundary, rt *runtime) { rt.enabled = enabled }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) BoundaryOption {
	return func(b *Boundary, _ *runtime) { b.logger = logger }
}

// WithMetrics sets the metrics recorder. Default: no-op.
func WithMetrics(m observability.MetricsRecorder) BoundaryOption {
	return func(b *Boundary, _ *runtime) { b.metrics = m }
}

// WithSpanManager sets the span manager. Default: no-op.
func WithSpanManager(s observability.SpanManager) BoundaryOption {
	return func(b *Boundary, _ *runtime) { b.spans = s }
}

// NewBoundary creates a Boundary that hands harvested events to dispatcher,
// which must not be nil.
func NewBoundary(dispatcher Dispatcher, opts ...BoundaryOption) *Boundary {
	b := &Boundary{dispatcher: dispatcher}
	rt := &runtime{
		enabled:  true,
		strategy: StrategyCooperative,
		policy:   tracking.RejectNested,
	}
	for _, opt := range opts {
		opt(b, rt)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.metrics == nil {
		b.metrics = observability.NoopMetrics{}
	}
	if b.spans == nil {
		b.spans = observability.NoopSpanManager{}
	}
	if rt.scanner == nil {
		rt.scanner = scan.New(scan.WithLogger(b.logger))
	}
	b.rt.Store(rt)
	return b
}

// Apply switches the boundary to s. Calls already running finish with the
// settings they started with.
func (b *Boundary) Apply(s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	strategy, err := ParseStrategy(s.Strategy)
	if err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}

	b.rt.Store(&runtime{
		enabled:   s.Enabled,
		strategy:  strategy,
		logTiming: s.LogTiming,
		policy:    s.Policy(),
		scanner: scan.New(
			scan.WithMaxDepth(s.Scan.MaxDepth),
			scan.WithExcludedPackages(s.Scan.ExcludedPackages...),
			scan.WithLogger(b.logger),
		),
	})
	b.logger.Info("boundary settings applied",
		slog.Bool("enabled", s.Enabled),
		slog.String("strategy", strategy.String()),
		slog.Bool("log_timing", s.LogTiming),
	)
	return nil
}

// SetEnabled turns the boundary on or off without touching other settings.
func (b *Boundary) SetEnabled(enabled bool) {
	for {
		cur := b.rt.Load()
		next := *cur
		next.enabled = enabled
		if b.rt.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// Enabled reports whether the boundary is on.
func (b *Boundary) Enabled() bool {
	return b.rt.Load().enabled
}

// Strategy returns the current discovery strategy.
func (b *Boundary) Strategy() Strategy {
	return b.rt.Load().strategy
}

// Middleware returns the boundary as a Middleware for Chain.
func (b *Boundary) Middleware() Middleware {
	return b.Wrap
}

// Wrap returns next wrapped in the boundary.
func (b *Boundary) Wrap(next Handler) Handler {
	return func(ctx context.Context, inv Invocation) (any, error) {
		return b.invoke(ctx, inv, next)
	}
}

func (b *Boundary) invoke(ctx context.Context, inv Invocation, next Handler) (result any, err error) {
	rt := b.rt.Load()
	if !rt.enabled {
		return next(ctx, inv)
	}

	reg := tracking.FromContext(ctx)
	if reg == nil {
		reg = tracking.NewRegistry(
			tracking.WithNestedPolicy(rt.policy),
			tracking.WithLogger(b.logger),
		)
		ctx = tracking.WithRegistry(ctx, reg)
	}
	if startErr := reg.Start(); startErr != nil {
		return nil, &ScopeError{Operation: inv.Operation, Err: startErr}
	}

	// Covers panics as well as the error path.
	closed := false
	defer func() {
		if !closed {
			reg.ForceCleanup()
		}
	}()

	logger := observability.EnrichLogger(b.logger, inv.Operation, reg.ScopeID())
	ctx, span := b.spans.StartOperationSpan(ctx, inv.Operation, reg.ScopeID())
	defer func() { b.spans.EndSpanWithError(span, err) }()

	var before *aggregate.Snapshot
	if rt.strategy == StrategyDiff {
		before = aggregate.TakeSnapshot(rt.scanner.Scan(roots(inv, nil)...).Items())
	}

	started := time.Now()
	elapsed := observability.TimedOperation()
	observability.LogOperationStart(logger, inv.Operation)

	result, err = next(ctx, inv)
	if err != nil {
		reg.ForceCleanup()
		closed = true
		observability.LogOperationError(logger, inv.Operation, err, elapsed())
		b.metrics.RecordOperation(ctx, inv.Operation, time.Since(started), err)
		return result, err
	}

	if e, ok := result.(aggregate.Entity); ok {
		reg.Include(e)
	}
	touched := aggregate.NewSet(reg.HarvestAndStop()...)
	closed = true

	switch rt.strategy {
	case StrategyParameters:
		touched.AddAll(rt.scanner.Shallow(withResult(inv.Args, result)...))
	case StrategyDirect:
		touched.AddAll(rt.scanner.Scan(roots(inv, result)...))
	case StrategyDiff:
		for _, e := range rt.scanner.Scan(roots(inv, result)...).Items() {
			if before.Advanced(e) {
				touched.Add(e)
			}
		}
	}

	pending := dispatch.Collect(touched.Pending())
	var outcome dispatch.Outcome
	if len(pending) > 0 {
		outcome = b.dispatcher.Dispatch(ctx, pending)
	}

	b.metrics.RecordOperation(ctx, inv.Operation, time.Since(started), nil)
	if rt.logTiming {
		observability.LogOperationComplete(logger, inv.Operation, elapsed(), len(pending), outcome.Events)
	}
	return result, nil
}

// roots returns args and result for the deep strategies, plus the target
// when one is set. The caller's slice is left alone.
func roots(inv Invocation, result any) []any {
	out := withResult(inv.Args, result)
	if inv.Target != nil {
		out = append(out, inv.Target)
	}
	return out
}

func withResult(args []any, result any) []any {
	out := slices.Clone(args)
	if result != nil {
		out = append(out, result)
	}
	return out
}
