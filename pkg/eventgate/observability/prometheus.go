package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements MetricsRecorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	operations       *prom.CounterVec
	operationLatency *prom.HistogramVec
	dispatched       *prom.CounterVec
	published        *prom.CounterVec
	discarded        prom.Counter
}

// Compile-time interface check.
var _ MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
// A nil registry gets a fresh one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.operations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "eventgate",
			Name:      "operations_total",
			Help:      "Intercepted operations by outcome",
		}, []string{"operation", "result"})
		pr.operationLatency = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "eventgate",
			Name:      "operation_duration_seconds",
			Help:      "Duration of intercepted operations",
			Buckets:   prom.DefBuckets,
		}, []string{"operation"})
		pr.dispatched = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "eventgate",
			Name:      "events_dispatched_total",
			Help:      "Events handed to the dispatch policy",
		}, []string{"mode"})
		pr.published = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "eventgate",
			Name:      "events_published_total",
			Help:      "Publish attempts by event type and result",
		}, []string{"event_type", "result"})
		pr.discarded = prom.NewCounter(prom.CounterOpts{
			Namespace: "eventgate",
			Name:      "events_discarded_total",
			Help:      "Events discarded because their transaction rolled back",
		})
		reg.MustRegister(pr.operations, pr.operationLatency, pr.dispatched, pr.published, pr.discarded)
	})
	return pr
}

func (p *PrometheusRecorder) RecordOperation(_ context.Context, operation string, d time.Duration, err error) {
	if p == nil || p.operations == nil {
		return
	}
	p.operations.WithLabelValues(operation, result(err)).Inc()
	p.operationLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func (p *PrometheusRecorder) RecordDispatch(_ context.Context, events int, deferred bool) {
	if p == nil || p.dispatched == nil {
		return
	}
	mode := "immediate"
	if deferred {
		mode = "after_commit"
	}
	p.dispatched.WithLabelValues(mode).Add(float64(events))
}

func (p *PrometheusRecorder) RecordPublish(_ context.Context, eventType string, err error) {
	if p == nil || p.published == nil {
		return
	}
	p.published.WithLabelValues(eventType, result(err)).Inc()
}

func (p *PrometheusRecorder) RecordDiscarded(_ context.Context, events int) {
	if p == nil || p.discarded == nil {
		return
	}
	p.discarded.Add(float64(events))
}

func result(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// HTTPHandler returns an http.Handler that serves the metrics of reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
