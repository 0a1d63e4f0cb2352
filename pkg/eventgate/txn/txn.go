// Package txn exposes the ambient transaction hook the dispatch policy
// reacts to.
//
// A Synchronization is whatever unit of work surrounds an operation. It
// reports whether it is still open and accepts callbacks to run once it
// commits or rolls back. The pipeline never drives the transaction itself.
//
// Two implementations are provided: Local, a plain in-memory unit of work,
// and Tx, which wraps a database/sql transaction.
package txn

import (
	"context"
	"errors"
	"sync"
)

// ErrTxDone is returned when committing or rolling back a finished unit of work.
var ErrTxDone = errors.New("transaction already completed")

// Callback runs when a unit of work finishes.
type Callback func(ctx context.Context)

// Synchronization is the capability an ambient transaction exposes.
type Synchronization interface {
	// Active reports whether the transaction is still open.
	Active() bool

	// Register schedules callbacks for commit and rollback. Either may be nil.
	// Callbacks run in registration order.
	Register(onCommit, onRollback Callback)
}

type syncKey struct{}

// WithSynchronization returns a context carrying s.
func WithSynchronization(ctx context.Context, s Synchronization) context.Context {
	return context.WithValue(ctx, syncKey{}, s)
}

// FromContext returns the synchronization carried by ctx, or nil.
func FromContext(ctx context.Context) Synchronization {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(syncKey{}).(Synchronization)
	return s
}

// Active reports whether ctx carries an open transaction.
func Active(ctx context.Context) bool {
	s := FromContext(ctx)
	return s != nil && s.Active()
}

type state int

const (
	open state = iota
	committed
	rolledBack
)

// Local is an in-memory unit of work. The zero value is open and ready to use.
type Local struct {
	mu         sync.Mutex
	state      state
	onCommit   []Callback
	onRollback []Callback
}

// Compile-time interface check.
var _ Synchronization = (*Local)(nil)

// NewLocal creates an open unit of work.
func NewLocal() *Local {
	return &Local{}
}

// Active reports whether the unit of work is still open.
func (l *Local) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == open
}

// Register schedules callbacks. Registrations after completion are dropped.
func (l *Local) Register(onCommit, onRollback Callback) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != open {
		return
	}
	if onCommit != nil {
		l.onCommit = append(l.onCommit, onCommit)
	}
	if onRollback != nil {
		l.onRollback = append(l.onRollback, onRollback)
	}
}

// Commit closes the unit of work and runs the commit callbacks.
func (l *Local) Commit(ctx context.Context) error {
	callbacks, err := l.finish(committed)
	if err != nil {
		return err
	}
	run(ctx, callbacks)
	return nil
}

// Rollback closes the unit of work and runs the rollback callbacks.
func (l *Local) Rollback(ctx context.Context) error {
	callbacks, err := l.finish(rolledBack)
	if err != nil {
		return err
	}
	run(ctx, callbacks)
	return nil
}

// finish flips the state before any callback runs, so callbacks observe an
// inactive transaction.
func (l *Local) finish(to state) ([]Callback, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != open {
		return nil, ErrTxDone
	}
	l.state = to

	callbacks := l.onCommit
	if to == rolledBack {
		callbacks = l.onRollback
	}
	l.onCommit, l.onRollback = nil, nil
	return callbacks, nil
}

// Pending returns the number of commit callbacks waiting to run.
func (l *Local) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.onCommit)
}

func run(ctx context.Context, callbacks []Callback) {
	for _, cb := range callbacks {
		cb(ctx)
	}
}

// RunLocal runs fn inside a fresh Local unit of work, committing when fn
// succeeds and rolling back when it fails or panics.
func RunLocal(ctx context.Context, fn func(ctx context.Context) error) error {
	l := NewLocal()
	txCtx := WithSynchronization(ctx, l)

	defer func() {
		if r := recover(); r != nil {
			_ = l.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		_ = l.Rollback(ctx)
		return err
	}
	return l.Commit(ctx)
}
