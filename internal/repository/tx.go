// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ErrTxConflict is returned when a transaction kept losing races with
// concurrent writers and the retry budget ran out.
var ErrTxConflict = errors.New("transaction conflict: retries exhausted")

// Executor matches both *pgxpool.Pool and pgx.Tx.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// executor returns the transaction carried by ctx, or the pool.
func executor(ctx context.Context, pool *pgxpool.Pool) Executor {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(pgx.Tx)
	return ok
}

// Transactor runs functions inside serializable transactions and re-runs
// them when Postgres aborts the transaction because of a concurrent writer.
type Transactor struct {
	pool       *pgxpool.Pool
	maxRetries int
	backoff    time.Duration
}

// NewTransactor creates a new Transactor. maxRetries is the number of extra
// attempts after the first one.
func NewTransactor(pool *pgxpool.Pool, maxRetries int) *Transactor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Transactor{
		pool:       pool,
		maxRetries: maxRetries,
		backoff:    10 * time.Millisecond,
	}
}

// RunAtomic executes fn within one transaction. Repository calls made with
// the context passed to fn use that transaction. fn may run more than once
// and must not have side effects outside the database. A call made while a
// transaction is already open joins it.
func (t *Transactor) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	for attempt := 0; ; attempt++ {
		err := t.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt >= t.maxRetries {
			return fmt.Errorf("%w: %v", ErrTxConflict, err)
		}

		log.Debug().
			Int("attempt", attempt+1).
			Err(err).
			Msg("Retrying transaction after conflict")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.backoff * time.Duration(attempt+1)):
		}
	}
}

func (t *Transactor) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// no-op after a successful commit
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
