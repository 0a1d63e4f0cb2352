// Package observability provides structured logging, metrics, and tracing
// for the publication pipeline.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry or Prometheus
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds pipeline context to a logger.
// Returns a new logger with operation and scope_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "OrderService.Place", scopeID)
//	enriched.Info("dispatching") // includes operation, scope_id
func EnrichLogger(logger *slog.Logger, operation, scopeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("operation", operation),
		slog.String("scope_id", scopeID),
	)
}

// LogOperationStart logs the start of an intercepted operation.
func LogOperationStart(logger *slog.Logger, operation string) {
	if logger == nil {
		return
	}
	logger.Debug("operation starting",
		slog.String("operation", operation),
	)
}

// LogOperationComplete logs a completed operation and what it produced.
func LogOperationComplete(logger *slog.Logger, operation string, durationMs float64, entities, events int) {
	if logger == nil {
		return
	}
	logger.Info("operation completed",
		slog.String("operation", operation),
		slog.Float64("duration_ms", durationMs),
		slog.Int("entities", entities),
		slog.Int("events", events),
	)
}

// LogOperationError logs an operation that failed. No events are published for it.
func LogOperationError(logger *slog.Logger, operation string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("operation failed, tracking discarded",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogDispatch logs a batch handed to the dispatch policy.
func LogDispatch(logger *slog.Logger, events int, deferred bool) {
	if logger == nil {
		return
	}
	msg := "publishing domain events"
	if deferred {
		msg = "deferring domain events until commit"
	}
	logger.Debug(msg,
		slog.Int("events", events),
		slog.Bool("deferred", deferred),
	)
}

// LogPublishError logs a single failed publish (non-fatal).
func LogPublishError(logger *slog.Logger, eventID, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Error("failed to publish domain event",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogDiscarded logs events dropped because their transaction rolled back.
func LogDiscarded(logger *slog.Logger, events int) {
	if logger == nil {
		return
	}
	logger.Debug("transaction rolled back, discarding domain events",
		slog.Int("events", events),
	)
}

// LogScanSkip logs a value the scanner could not read.
func LogScanSkip(logger *slog.Logger, typeName, field string, reason any) {
	if logger == nil {
		return
	}
	logger.Debug("could not scan field",
		slog.String("type", typeName),
		slog.String("field", field),
		slog.Any("reason", reason),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
