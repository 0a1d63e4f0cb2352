// Package event provides the domain event primitives used by eventgate.
//
// # Overview
//
//   - Event interface with correlation and causation tracking
//   - BaseEvent[T] as the generic implementation
//   - Publisher, the single capability the dispatch policy needs
//   - LocalBus for in-process fan-out to subscribers
//   - InMemoryDLQ for recording events whose publication failed
//
// # Creating Events
//
//	type OrderPlaced struct {
//	    OrderID string `json:"order_id"`
//	    Total   int    `json:"total"`
//	}
//
//	evt := event.New("order.placed", "order", OrderPlaced{OrderID: "o-1", Total: 42})
//
// Child events inherit the correlation chain of their parent:
//
//	shipped := event.NewFromParent(evt, "order.shipped", "order", payload)
//	// shipped.CorrelationID() == evt.CorrelationID()
//	// shipped.CausationID() == evt.ID()
//
// # Bus
//
// LocalBus implements Publisher, so it can be handed straight to the
// dispatch policy:
//
//	bus := event.NewBus(event.BusConfig{BufferSize: 64})
//	defer bus.Close()
//
//	sub := bus.Subscribe([]string{"order.placed"}, event.Typed(
//	    func(ctx context.Context, p OrderPlaced, meta event.Metadata) error {
//	        return mailer.Confirm(ctx, p.OrderID)
//	    }))
//	defer sub.Unsubscribe()
//
// Set BusConfig.Synchronous to deliver inline from Publish; subscriber
// errors are then returned to the publisher.
package event
