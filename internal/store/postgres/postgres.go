// Package postgres persists lots, the ledger and sales records in PostgreSQL.
// Every unit of work is one REPEATABLE READ transaction, retried on
// serialization failures and deadlocks.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/sales"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store"
)

const sqlStateUniqueViolation = "23505"

// Store runs units of work against a pgx pool.
type Store struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	maxRetries int
}

// New constructs Store.
func New(pool *pgxpool.Pool, logger *slog.Logger, maxRetries int) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger, maxRetries: maxRetries}
}

// Run implements store.Runner.
func (s *Store) Run(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres store not initialised")
	}
	return db.WithRetry(ctx, s.logger, s.maxRetries, func(ctx context.Context) error {
		return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
			return fn(ctx, &unit{tx: tx})
		})
	})
}

var _ store.Runner = (*Store)(nil)

type unit struct {
	tx pgx.Tx
}

func (u *unit) Ledger() ledger.TxRepository       { return ledgerRepo{u.tx} }
func (u *unit) Inventory() inventory.TxRepository { return inventoryRepo{u.tx} }
func (u *unit) Sales() sales.TxRepository         { return salesRepo{u.tx} }

func notFound(what string, id any) error {
	return fmt.Errorf("%w: %s %v", shared.ErrNotFound, what, id)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullLimit(v int) any {
	if v <= 0 {
		return nil
	}
	return v
}

func utc(t time.Time) time.Time {
	return t.UTC()
}
