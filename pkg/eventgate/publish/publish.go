// Package publish composes event.Publisher implementations.
//
// The dispatch policy takes a single Publisher. These adapters build that
// one Publisher out of several transports, add retries, or log what goes
// through.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	egerrors "github.com/randalmurphal/eventgate/pkg/eventgate/errors"
	"github.com/randalmurphal/eventgate/pkg/eventgate/event"
)

// Fanout publishes each event to every publisher in order. All publishers
// are tried; their errors are joined.
func Fanout(publishers ...event.Publisher) event.Publisher {
	return event.PublisherFunc(func(ctx context.Context, evt event.Event) error {
		var errs []error
		for i, p := range publishers {
			if p == nil {
				continue
			}
			if err := p.Publish(ctx, evt); err != nil {
				errs = append(errs, fmt.Errorf("publisher %d: %w", i, err))
			}
		}
		return errors.Join(errs...)
	})
}

// Logging logs every event at info level before handing it to next.
// A nil next makes it a pure logging sink.
func Logging(logger *slog.Logger, next event.Publisher) event.Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return event.PublisherFunc(func(ctx context.Context, evt event.Event) error {
		logger.InfoContext(ctx, "domain event",
			slog.String("event_id", evt.ID()),
			slog.String("event_type", evt.Type()),
			slog.String("source", evt.Source()),
			slog.String("correlation_id", evt.CorrelationID()),
		)
		if next == nil {
			return nil
		}
		return next.Publish(ctx, evt)
	})
}

// WithRetry retries transient publish failures according to cfg.
func WithRetry(next event.Publisher, cfg egerrors.RetryConfig) event.Publisher {
	return event.PublisherFunc(func(ctx context.Context, evt event.Event) error {
		res := egerrors.WithRetryContext(ctx, cfg, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, next.Publish(ctx, evt)
		})
		return res.Err
	})
}

// Filter passes only events whose type is in types to next.
func Filter(next event.Publisher, types ...string) event.Publisher {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return event.PublisherFunc(func(ctx context.Context, evt event.Event) error {
		if _, ok := allowed[evt.Type()]; !ok {
			return nil
		}
		return next.Publish(ctx, evt)
	})
}
