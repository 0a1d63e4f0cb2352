// Package tracking provides the execution-scoped registry that records which
// entities an operation touched.
//
// A Registry belongs to exactly one logical operation. It travels with the
// operation through its context.Context rather than living in global state,
// so goroutines that inherit the context keep feeding the same scope while
// unrelated operations never see it.
//
//	reg := tracking.NewRegistry()
//	ctx = tracking.WithRegistry(ctx, reg)
//	if err := reg.Start(); err != nil {
//	    return err
//	}
//	defer reg.ForceCleanup()
//	... // collaborators call tracking.Register(ctx, entity)
//	touched := reg.HarvestAndStop()
package tracking

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventgate/pkg/eventgate/aggregate"
)

// State is the lifecycle state of a Registry.
type State int

const (
	// StateInactive registries ignore Register calls.
	StateInactive State = iota
	// StateActive registries record entities with pending events.
	StateActive
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// NestedPolicy decides what Start does on a registry that is already active.
type NestedPolicy int

const (
	// RejectNested makes a second Start fail with ErrScopeActive.
	RejectNested NestedPolicy = iota
	// ResetNested discards the current scope and starts a fresh one.
	ResetNested
)

// String returns the policy name.
func (p NestedPolicy) String() string {
	switch p {
	case RejectNested:
		return "reject"
	case ResetNested:
		return "reset"
	default:
		return "unknown"
	}
}

// ParseNestedPolicy converts a configuration string into a NestedPolicy.
func ParseNestedPolicy(s string) (NestedPolicy, error) {
	switch s {
	case "", "reject":
		return RejectNested, nil
	case "reset":
		return ResetNested, nil
	default:
		return RejectNested, ErrUnknownPolicy
	}
}

// Sentinel errors.
var (
	// ErrScopeActive is returned by Start when a scope is already open and
	// the registry rejects nesting.
	ErrScopeActive = errors.New("tracking scope already active")

	// ErrUnknownPolicy is returned for an unrecognised nested policy name.
	ErrUnknownPolicy = errors.New("unknown nested policy")
)

// Registry records the entities observed during one operation.
//
// The mutex only guards against goroutines that the operation itself spawns
// with the same context; two operations never share a Registry.
type Registry struct {
	mu       sync.Mutex
	state    State
	scopeID  string
	observed *aggregate.Set

	policy NestedPolicy
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithNestedPolicy sets the behavior of Start on an active registry.
func WithNestedPolicy(p NestedPolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an inactive registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Start opens a tracking scope.
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateActive {
		if r.policy == RejectNested {
			return ErrScopeActive
		}
		r.logger.Debug("resetting active tracking scope",
			slog.String("scope_id", r.scopeID),
			slog.Int("discarded", r.observed.Len()),
		)
	}

	r.observed = aggregate.NewSet()
	r.scopeID = uuid.NewString()
	r.state = StateActive
	return nil
}

// Register records e if the scope is active and e has pending events.
// It is a silent no-op otherwise.
func (r *Registry) Register(e aggregate.Entity) {
	if aggregate.IsNil(e) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateActive || !e.HasPendingEvents() {
		return
	}
	r.observed.Add(e)
}

// Include records e while the scope is active, whether or not it has events yet.
func (r *Registry) Include(e aggregate.Entity) {
	if aggregate.IsNil(e) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateActive {
		return
	}
	r.observed.Add(e)
}

// HarvestAndStop returns the observed entities and closes the scope.
// Harvesting an inactive registry returns an empty slice.
func (r *Registry) HarvestAndStop() []aggregate.Entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateActive {
		return []aggregate.Entity{}
	}
	harvested := r.observed.Items()
	r.reset()
	return harvested
}

// ForceCleanup closes the scope unconditionally, dropping what it observed.
func (r *Registry) ForceCleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

func (r *Registry) reset() {
	r.observed = nil
	r.scopeID = ""
	r.state = StateInactive
}

// Active reports whether a scope is open.
func (r *Registry) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateActive
}

// State returns the current state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ScopeID returns the identifier of the open scope, or "" when inactive.
func (r *Registry) ScopeID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scopeID
}

// Len returns the number of observed entities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.observed.Len()
}
