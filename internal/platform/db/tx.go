package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so queries can run on either.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrCommitUnknown is returned when COMMIT was sent but its result never came back.
// The transaction may or may not have been applied.
var ErrCommitUnknown = errors.New("platform/db: commit outcome unknown")

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
// Used for multi-query reads that must see one snapshot.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return withOptions(ctx, pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
}

// WithLockingTx executes fn in a ReadCommitted transaction. Callers take row locks with
// SELECT ... FOR UPDATE so a blocked writer re-reads the latest committed row instead of
// failing with a serialization error.
func WithLockingTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return withOptions(ctx, pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func withOptions(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
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
		if commitRejected(err) {
			return fmt.Errorf("platform/db: commit tx: %w", err)
		}
		return fmt.Errorf("%w: %w", ErrCommitUnknown, err)
	}

	return nil
}

// commitRejected reports whether the server definitely did not apply the commit.
func commitRejected(err error) bool {
	if errors.Is(err, pgx.ErrTxCommitRollback) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
