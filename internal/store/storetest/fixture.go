// Package storetest wires the domain services over the memory store for tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/sales"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
	_ "github.com/odyssey-erp/stockledger/testing"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Options tweaks the fixture wiring.
type Options struct {
	Cache       *cache.Versioned
	Idempotency *shared.IdempotencyStore
	Events      sales.EventRecorder
}

// Fixture bundles a memory store with services bound to it.
type Fixture struct {
	Store     *memory.Store
	Ledger    *ledger.Service
	Inventory *inventory.Service
	Sales     *sales.Service
	Clock     *Clock
}

// New builds a fixture with the system chart of accounts in place.
func New(t testing.TB) *Fixture {
	return NewWithOptions(t, Options{})
}

// NewWithOptions builds a fixture with optional collaborators.
func NewWithOptions(t testing.TB, opts Options) *Fixture {
	t.Helper()
	st := memory.New()
	clock := &Clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}

	ledgerSvc := ledger.NewService(store.LedgerUnit{Runner: st}, nil, nil)
	ledgerSvc.WithNow(clock.Now)
	invSvc := inventory.NewService(store.InventoryUnit{Runner: st}, inventory.ServiceDeps{
		Cache:       opts.Cache,
		Idempotency: opts.Idempotency,
		Events:      opts.Events,
	})
	invSvc.WithNow(clock.Now)
	salesSvc := sales.NewService(store.SalesUnit{Runner: st}, sales.ServiceDeps{
		Stock:       invSvc,
		Idempotency: opts.Idempotency,
		Events:      opts.Events,
	})
	salesSvc.WithNow(clock.Now)

	require.NoError(t, ledgerSvc.EnsureChart(context.Background()))
	return &Fixture{Store: st, Ledger: ledgerSvc, Inventory: invSvc, Sales: salesSvc, Clock: clock}
}

// Dec parses a decimal literal.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Receive records a one-line delivery a minute after the previous one.
func (f *Fixture) Receive(t testing.TB, productID, size string, quantity int64, unitCost string) inventory.StockEntry {
	t.Helper()
	f.Clock.Advance(time.Minute)
	entry, err := f.Inventory.Receive(context.Background(), inventory.StockEntryInput{
		Supplier:      "Acme Textiles",
		InvoiceNumber: "INV-" + productID,
		Lines: []inventory.StockEntryLineInput{
			{ProductID: productID, Size: size, Quantity: quantity, UnitCost: Dec(unitCost)},
		},
	}, "")
	require.NoError(t, err)
	return entry
}

// Balance returns the balance of the account with code.
func (f *Fixture) Balance(t testing.TB, code string) decimal.Decimal {
	t.Helper()
	return f.Balances(t)[code]
}

// Balances returns every account balance keyed by account code.
func (f *Fixture) Balances(t testing.TB) map[string]decimal.Decimal {
	t.Helper()
	accounts, err := f.Ledger.ListAccounts(context.Background(), ledger.AccountFilter{})
	require.NoError(t, err)
	out := make(map[string]decimal.Decimal, len(accounts))
	for _, acc := range accounts {
		out[acc.Code] = acc.Balance
	}
	return out
}

// Available returns the quantity on hand for product+size.
func (f *Fixture) Available(t testing.TB, productID, size string) int64 {
	t.Helper()
	levels, err := f.Inventory.QueryInventory(context.Background(), productID, size)
	require.NoError(t, err)
	var total int64
	for _, level := range levels {
		total += level.QuantityAvailable
	}
	return total
}

// Lots returns the lots of product+size in FIFO order.
func (f *Fixture) Lots(t testing.TB, productID, size string) []inventory.Lot {
	t.Helper()
	var lots []inventory.Lot
	err := f.Store.Run(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		lots, err = tx.Inventory().ListLots(ctx, inventory.LotFilter{ProductID: productID, Size: size})
		return err
	})
	require.NoError(t, err)
	return lots
}

// RequireConsistent asserts both replays agree with the cached state.
func (f *Fixture) RequireConsistent(t testing.TB) {
	t.Helper()
	ctx := context.Background()
	ledgerDrift, err := f.Ledger.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, ledgerDrift)
	lotDrift, err := f.Inventory.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, lotDrift)

	entries, err := f.Ledger.ListJournal(ctx, ledger.JournalFilter{})
	require.NoError(t, err)
	for _, entry := range entries {
		require.True(t, entry.Debit.Amount.Equal(entry.Credit.Amount), "entry %d unbalanced", entry.ID)
		require.True(t, entry.Debit.Amount.IsPositive(), "entry %d not positive", entry.ID)
	}
}
