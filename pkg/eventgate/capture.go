package eventgate

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/eventgate/pkg/eventgate/scan"
	"github.com/randalmurphal/eventgate/pkg/eventgate/tracking"
)

// DefaultCaptureDepth is how far Capture looks into arguments and results.
// One level covers an entity, a slice or map of entities, or a struct
// holding them directly.
const DefaultCaptureDepth = 1

// Capture is the capture layer. Wrapped around collaborators such as
// repositories, it registers the entities flowing through them with the
// tracking scope of the enclosing Boundary. Outside a Boundary it does
// nothing.
type Capture struct {
	scanner *scan.Scanner
	logger  *slog.Logger
}

// CaptureOption configures a Capture.
type CaptureOption func(*captureConfig)

type captureConfig struct {
	depth   int
	scanner *scan.Scanner
	logger  *slog.Logger
}

// WithCaptureDepth sets the scan depth. Default: DefaultCaptureDepth.
func WithCaptureDepth(depth int) CaptureOption {
	return func(c *captureConfig) { c.depth = depth }
}

// WithCaptureScanner replaces the scanner, ignoring WithCaptureDepth.
func WithCaptureScanner(s *scan.Scanner) CaptureOption {
	return func(c *captureConfig) { c.scanner = s }
}

// WithCaptureLogger sets the logger. Default: slog.Default().
func WithCaptureLogger(logger *slog.Logger) CaptureOption {
	return func(c *captureConfig) { c.logger = logger }
}

// NewCapture creates a capture layer.
func NewCapture(opts ...CaptureOption) *Capture {
	cfg := captureConfig{depth: DefaultCaptureDepth}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.scanner == nil {
		cfg.scanner = scan.New(scan.WithMaxDepth(cfg.depth), scan.WithLogger(cfg.logger))
	}
	return &Capture{scanner: cfg.scanner, logger: cfg.logger}
}

// Middleware returns the capture layer as a Middleware. Arguments are
// registered before the call and the result after it succeeds.
func (c *Capture) Middleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, inv Invocation) (any, error) {
			reg := tracking.FromContext(ctx)
			if reg == nil || !reg.Active() {
				return next(ctx, inv)
			}

			c.register(reg, inv.Args...)
			result, err := next(ctx, inv)
			if err == nil {
				c.register(reg, result)
			}
			return result, err
		}
	}
}

// Track registers the entities reachable from values with the scope in ctx.
// Use it where a collaborator is called directly rather than through a Handler.
func (c *Capture) Track(ctx context.Context, values ...any) {
	reg := tracking.FromContext(ctx)
	if reg == nil || !reg.Active() {
		return
	}
	c.register(reg, values...)
}

func (c *Capture) register(reg *tracking.Registry, values ...any) {
	for _, v := range values {
		if !c.scanner.MightContain(v) {
			continue
		}
		for _, e := range c.scanner.Scan(v).Items() {
			reg.Register(e)
		}
	}
}
