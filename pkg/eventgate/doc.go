/*
Package eventgate publishes the domain events of a unit of work exactly when
that unit of work succeeds.

Business entities buffer events as they change (see package aggregate). An
operation wrapped in a Boundary runs inside a tracking scope; when it returns
without error, the Boundary collects every touched entity that holds events
and hands them to a Dispatcher, normally a *dispatch.Policy. If the
operation fails or panics, the scope is dropped and nothing is published.

# Pipeline

The pipeline is a chain of Middleware around a Handler:

	policy := dispatch.New(bus)
	boundary := eventgate.NewBoundary(policy)
	capture := eventgate.NewCapture()

	save := eventgate.Chain(repo.SaveHandler, capture.Middleware())
	place := eventgate.Chain(svc.PlaceHandler, boundary.Middleware())

Capture is placed around collaborators (repositories, gateways). It feeds the
entities they receive and return into the scope the Boundary opened higher up
the call chain. The scope travels in the context, so collaborators must be
called with the context the Boundary passed down.

For plain functions, Run and Exec wrap a single call, and Observe registers
a value inline:

	order, err := eventgate.Run(ctx, boundary, "Place", func(ctx context.Context) (*Order, error) {
	    o := eventgate.Observe(ctx, repo.Find(ctx, id))
	    o.Confirm()
	    return o, nil
	})

# Strategies

StrategyCooperative uses what Capture registered plus an entity result.
StrategyDirect also deep-scans the arguments and result after the call.
StrategyDiff snapshots event counts reachable from the arguments before the
call and adds entities whose count grew, or that were not reachable before.
StrategyParameters checks only the arguments and result themselves, one level
deep. Every strategy publishes what Capture registered. Direct and Diff also
scan Invocation.Target when the caller sets it.

# Transactions

When the context carries an active txn.Synchronization, the dispatch policy
defers publishing to the commit callback. A rollback discards the events and
leaves the entity buffers untouched.

# Nesting

A Boundary entered under another shares its registry. By default the inner
start is rejected with a *ScopeError wrapping tracking.ErrScopeActive and the
inner operation does not run; WithNestedPolicy(tracking.ResetNested) makes
the inner boundary reset the scope instead.
*/
package eventgate
