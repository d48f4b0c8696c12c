// Package store defines the unit of work that spans lots, the ledger and
// sales records, and adapts it to the ports each domain package declares.
package store

import (
	"context"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/sales"
)

// Tx exposes every repository bound to one transaction.
type Tx interface {
	Ledger() ledger.TxRepository
	Inventory() inventory.TxRepository
	Sales() sales.TxRepository
}

// Runner executes fn as one atomic unit of work. Returning an error from fn
// discards everything fn wrote.
type Runner interface {
	Run(ctx context.Context, fn func(context.Context, Tx) error) error
}

// LedgerUnit adapts a Runner to ledger.UnitOfWork.
type LedgerUnit struct{ Runner Runner }

// WithTx implements ledger.UnitOfWork.
func (u LedgerUnit) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return u.Runner.Run(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, tx.Ledger())
	})
}

// InventoryUnit adapts a Runner to inventory.UnitOfWork.
type InventoryUnit struct{ Runner Runner }

// WithTx implements inventory.UnitOfWork.
func (u InventoryUnit) WithTx(ctx context.Context, fn func(context.Context, inventory.Tx) error) error {
	return u.Runner.Run(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, tx)
	})
}

// SalesUnit adapts a Runner to sales.UnitOfWork.
type SalesUnit struct{ Runner Runner }

// WithTx implements sales.UnitOfWork.
func (u SalesUnit) WithTx(ctx context.Context, fn func(context.Context, sales.Tx) error) error {
	return u.Runner.Run(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, tx)
	})
}

var (
	_ ledger.UnitOfWork    = LedgerUnit{}
	_ inventory.UnitOfWork = InventoryUnit{}
	_ sales.UnitOfWork     = SalesUnit{}
)
