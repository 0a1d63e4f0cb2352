package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records pipeline metrics.
// Use NewMetricsRecorder() for OTel metrics, NewPrometheusRecorder for
// Prometheus, or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordOperation records an intercepted operation with its duration and error status.
	RecordOperation(ctx context.Context, operation string, duration time.Duration, err error)

	// RecordDispatch records a batch handed to the dispatch policy.
	RecordDispatch(ctx context.Context, events int, deferred bool)

	// RecordPublish records a single publish attempt.
	RecordPublish(ctx context.Context, eventType string, err error)

	// RecordDiscarded records events dropped on rollback.
	RecordDiscarded(ctx context.Context, events int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	operations       metric.Int64Counter
	operationLatency metric.Float64Histogram
	operationErrors  metric.Int64Counter
	dispatched       metric.Int64Counter
	published        metric.Int64Counter
	publishErrors    metric.Int64Counter
	discarded        metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventgate")

	operations, err := meter.Int64Counter("eventgate.operation.count",
		metric.WithDescription("Number of intercepted operations"),
	)
	if err != nil {
		return nil, err
	}

	operationLatency, err := meter.Float64Histogram("eventgate.operation.latency_ms",
		metric.WithDescription("Intercepted operation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	operationErrors, err := meter.Int64Counter("eventgate.operation.errors",
		metric.WithDescription("Number of intercepted operations that failed"),
	)
	if err != nil {
		return nil, err
	}

	dispatched, err := meter.Int64Counter("eventgate.events.dispatched",
		metric.WithDescription("Number of events handed to the dispatch policy"),
	)
	if err != nil {
		return nil, err
	}

	published, err := meter.Int64Counter("eventgate.events.published",
		metric.WithDescription("Number of events published"),
	)
	if err != nil {
		return nil, err
	}

	publishErrors, err := meter.Int64Counter("eventgate.events.publish_errors",
		metric.WithDescription("Number of events whose publish failed"),
	)
	if err != nil {
		return nil, err
	}

	discarded, err := meter.Int64Counter("eventgate.events.discarded",
		metric.WithDescription("Number of events discarded on rollback"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		operations:       operations,
		operationLatency: operationLatency,
		operationErrors:  operationErrors,
		dispatched:       dispatched,
		published:        published,
		publishErrors:    publishErrors,
		discarded:        discarded,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	m.operations.Add(ctx, 1, attrs)
	m.operationLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.operationErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordDispatch(ctx context.Context, events int, deferred bool) {
	m.dispatched.Add(ctx, int64(events), metric.WithAttributes(attribute.Bool("deferred", deferred)))
}

func (m *otelMetrics) RecordPublish(ctx context.Context, eventType string, err error) {
	attrs := metric.WithAttributes(attribute.String("event_type", eventType))
	if err != nil {
		m.publishErrors.Add(ctx, 1, attrs)
		return
	}
	m.published.Add(ctx, 1, attrs)
}

func (m *otelMetrics) RecordDiscarded(ctx context.Context, events int) {
	m.discarded.Add(ctx, int64(events))
}
