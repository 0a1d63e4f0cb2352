package eventgate

import "context"

// Invocation describes one call passing through the pipeline.
type Invocation struct {
	// Operation names the call, e.g. "OrderService.Place". Used in logs,
	// metrics and spans.
	Operation string

	// Args are the call's arguments. Middleware may scan them for entities
	// but must not replace them.
	Args []any

	// Target is the receiver of the call, typically the service. When set,
	// StrategyDirect and StrategyDiff scan its fields too.
	Target any
}

// Handler runs an invocation.
type Handler func(ctx context.Context, inv Invocation) (any, error)

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

// Chain wraps h with mws. The first middleware is the outermost: it sees the
// call first and the result last.
//
// Example:
//
//	h := eventgate.Chain(place, boundary.Middleware(), audit)
//	// boundary -> audit -> place
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// Predicate decides whether a middleware applies to an invocation.
type Predicate func(inv Invocation) bool

// When applies mw only to invocations accepted by pred. Others go straight
// to the next handler.
func When(pred Predicate, mw Middleware) Middleware {
	if pred == nil || mw == nil {
		return mw
	}
	return func(next Handler) Handler {
		wrapped := mw(next)
		return func(ctx context.Context, inv Invocation) (any, error) {
			if pred(inv) {
				return wrapped(ctx, inv)
			}
			return next(ctx, inv)
		}
	}
}

// Operations returns a Predicate accepting the named operations.
func Operations(names ...string) Predicate {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(inv Invocation) bool {
		_, ok := set[inv.Operation]
		return ok
	}
}
