package main

import (
	"context"
	"database/sql"
	"time"

	"custodian/internal/workflow"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	txcontext "custodian/pkg/platform/tx"
)

const defaultActionTxTimeout = 5 * time.Second

// actionPostgresTx runs per-action units of work inside a database
// transaction. Serialization comes from row locks (GetActionForUpdate inside
// fn), so the actionID parameter is only part of the interface contract here.
type actionPostgresTx struct {
	db      *sql.DB
	store   workflow.Store
	timeout time.Duration
}

func newActionPostgresTx(db *sql.DB, store workflow.Store) *actionPostgresTx {
	return &actionPostgresTx{db: db, store: store}
}

func (t *actionPostgresTx) RunInTx(ctx context.Context, _ id.ActionID, fn func(ctx context.Context, store workflow.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultActionTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), t.store); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}
