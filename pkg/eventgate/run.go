package eventgate

import "context"

// Run calls fn inside b as the operation named operation. args are what the
// Direct and Diff strategies scan; pass the entities fn works on.
//
// Example:
//
//	order, err := eventgate.Run(ctx, boundary, "OrderService.Place",
//	    func(ctx context.Context) (*Order, error) {
//	        return svc.Place(ctx, cmd)
//	    }, cmd)
func Run[T any](ctx context.Context, b *Boundary, operation string, fn func(ctx context.Context) (T, error), args ...any) (T, error) {
	h := b.Wrap(func(ctx context.Context, _ Invocation) (any, error) {
		return fn(ctx)
	})
	out, err := h(ctx, Invocation{Operation: operation, Args: args})
	v, _ := out.(T)
	return v, err
}

// Exec is Run for operations without a result.
func Exec(ctx context.Context, b *Boundary, operation string, fn func(ctx context.Context) error, args ...any) error {
	h := b.Wrap(func(ctx context.Context, _ Invocation) (any, error) {
		return nil, fn(ctx)
	})
	_, err := h(ctx, Invocation{Operation: operation, Args: args})
	return err
}

var defaultCapture = NewCapture()

// Observe registers the entities in v with the tracking scope in ctx and
// returns v unchanged. It is the inline form of the capture layer:
//
//	order := eventgate.Observe(ctx, repo.Find(ctx, id))
func Observe[T any](ctx context.Context, v T) T {
	defaultCapture.Track(ctx, v)
	return v
}
