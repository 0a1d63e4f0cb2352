package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Tx is a database/sql transaction that runs callbacks after it finishes.
//
// Commit callbacks run only after the database commit succeeds. If the
// commit fails, the rollback callbacks run instead.
type Tx struct {
	tx    *sql.Tx
	local Local
}

// Compile-time interface check.
var _ Synchronization = (*Tx)(nil)

// Begin starts a transaction on db.
func Begin(ctx context.Context, db *sql.DB, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// SQL returns the underlying transaction for queries.
func (t *Tx) SQL() *sql.Tx {
	return t.tx
}

// Active reports whether the transaction is still open.
func (t *Tx) Active() bool {
	return t.local.Active()
}

// Register schedules callbacks for commit and rollback.
func (t *Tx) Register(onCommit, onRollback Callback) {
	t.local.Register(onCommit, onRollback)
}

// Commit commits the database transaction, then runs the commit callbacks.
func (t *Tx) Commit(ctx context.Context) error {
	if !t.local.Active() {
		return ErrTxDone
	}
	if err := t.tx.Commit(); err != nil {
		_ = t.local.Rollback(ctx)
		return fmt.Errorf("commit transaction: %w", err)
	}
	return t.local.Commit(ctx)
}

// Rollback aborts the database transaction and runs the rollback callbacks.
// The callbacks run even if the database rollback reports an error.
func (t *Tx) Rollback(ctx context.Context) error {
	if !t.local.Active() {
		return ErrTxDone
	}
	err := t.tx.Rollback()
	_ = t.local.Rollback(ctx)
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// RunInTx runs fn inside a transaction on db. The context passed to fn
// carries the transaction as its Synchronization, so operations inside fn
// defer their events until commit.
//
// fn returning an error, or panicking, rolls the transaction back. A panic is
// re-raised after the rollback.
func RunInTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := Begin(ctx, db, nil)
	if err != nil {
		return err
	}
	txCtx := WithSynchronization(ctx, tx)

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(txCtx, tx.SQL()); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}
