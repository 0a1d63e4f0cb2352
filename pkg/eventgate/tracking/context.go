package tracking

import (
	"context"

	"github.com/randalmurphal/eventgate/pkg/eventgate/aggregate"
)

type registryKey struct{}

// WithRegistry returns a context carrying reg.
func WithRegistry(ctx context.Context, reg *Registry) context.Context {
	return context.WithValue(ctx, registryKey{}, reg)
}

// FromContext returns the registry carried by ctx, or nil.
func FromContext(ctx context.Context) *Registry {
	if ctx == nil {
		return nil
	}
	reg, _ := ctx.Value(registryKey{}).(*Registry)
	return reg
}

// Register records e in the registry carried by ctx.
// Without a registry, or with an inactive one, it does nothing.
func Register(ctx context.Context, entities ...aggregate.Entity) {
	reg := FromContext(ctx)
	if reg == nil {
		return
	}
	for _, e := range entities {
		reg.Register(e)
	}
}

// Active reports whether ctx carries an active registry.
func Active(ctx context.Context) bool {
	reg := FromContext(ctx)
	return reg != nil && reg.Active()
}
