package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
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

// IsRetryable reports whether err is a serialization failure or a deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

// WithRetry runs attempt until it succeeds, fails with a non-retryable error,
// or maxRetries additional attempts have been spent. Exhaustion surfaces as shared.ErrConflict;
// sales.Service.CreateSale reports it to callers as shared.ErrInsufficientStock.
func WithRetry(ctx context.Context, logger *slog.Logger, maxRetries int, attempt func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	var err error
	for i := 0; i <= maxRetries; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = attempt(ctx)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if logger != nil {
			logger.WarnContext(ctx, "retrying unit of work", slog.Int("attempt", i+1), slog.Any("error", err))
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts: %v", shared.ErrConflict, maxRetries+1, err)
}
