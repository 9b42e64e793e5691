package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner starts transactions. *pgxpool.Pool satisfies it; an open pgx.Tx
// does not, so a store bound to a transaction cannot nest another one.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx executes fn within a transaction at level. Any error returned by fn
// rolls the whole unit of work back. Units of work that serialise on advisory
// or row locks need ReadCommitted so statements issued after the lock is
// granted see rows committed while waiting.
func WithTx(ctx context.Context, b TxBeginner, level pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	if b == nil {
		return fmt.Errorf("platform/db: pool not initialised")
	}
	tx, err := b.BeginTx(ctx, pgx.TxOptions{IsoLevel: level})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
