package services

import (
	"context"
	"fmt"

	"github.com/openhumans/loggather/repositories"
)

// WithTransaction runs fn inside a transaction. It commits when fn returns
// nil and rolls back otherwise, including when fn panics.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	_, err := WithTransactionResult(ctx, txMgr, func(ctx context.Context, tx repositories.Transaction) (struct{}, error) {
		return struct{}{}, fn(ctx, tx)
	})
	return err
}

// WithTransactionResult is WithTransaction for functions that produce a
// value. Begin and commit failures are reported as internal errors; errors
// from fn are returned as is so their domain type survives.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (result T, err error) {
	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return result, WrapInternal("failed to begin transaction", err)
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		// Reached on error or panic; a panic keeps unwinding after this.
		if rbErr := tx.Rollback(); rbErr != nil && err != nil {
			err = fmt.Errorf("%w (rollback error: %v)", err, rbErr)
		}
	}()

	result, err = fn(ctx, tx)
	if err != nil {
		return result, err
	}

	finished = true
	if err := tx.Commit(); err != nil {
		return result, WrapInternal("failed to commit transaction", err)
	}
	return result, nil
}
