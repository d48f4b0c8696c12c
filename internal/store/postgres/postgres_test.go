package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/sales"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store"
	"github.com/odyssey-erp/stockledger/internal/store/postgres"
)

type services struct {
	ledger    *ledger.Service
	inventory *inventory.Service
	sales     *sales.Service
}

func setup(t *testing.T) services {
	t.Helper()
	dsn := os.Getenv("STOCKLEDGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("STOCKLEDGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, db.Migrate(dsn, "../../../migrations", nil))
	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	truncate(t, pool)

	st := postgres.New(pool, nil, 5)
	svc := services{
		ledger:    ledger.NewService(store.LedgerUnit{Runner: st}, nil, nil),
		inventory: inventory.NewService(store.InventoryUnit{Runner: st}, inventory.ServiceDeps{}),
	}
	svc.sales = sales.NewService(store.SalesUnit{Runner: st}, sales.ServiceDeps{Stock: svc.inventory})
	require.NoError(t, svc.ledger.EnsureChart(ctx))
	return svc
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE audit_logs, sales_return_releases, sales_return_items, sales_returns,
sales_line_consumptions, sales_transaction_lines, sales_transactions, lot_movements, stock_entry_lines,
inventory_lots, stock_entries, journal_entries, accounts RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func balances(t *testing.T, svc services) map[string]decimal.Decimal {
	t.Helper()
	accounts, err := svc.ledger.ListAccounts(context.Background(), ledger.AccountFilter{})
	require.NoError(t, err)
	out := make(map[string]decimal.Decimal, len(accounts))
	for _, acc := range accounts {
		out[acc.Code] = acc.Balance
	}
	return out
}

func receive(t *testing.T, svc services, qty int64, cost string) {
	t.Helper()
	_, err := svc.inventory.Receive(context.Background(), inventory.StockEntryInput{
		Supplier: "Acme",
		Lines:    []inventory.StockEntryLineInput{{ProductID: "tee", Size: "M", Quantity: qty, UnitCost: decimal.RequireFromString(cost)}},
	}, "")
	require.NoError(t, err)
}

func TestPostgresSaleReturnReverseRoundTrip(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	receive(t, svc, 5, "10")
	receive(t, svc, 3, "12")
	before := balances(t, svc)

	txn, err := svc.sales.CreateSale(ctx, sales.SaleInput{
		PaymentMethod: sales.PaymentCard,
		Items:         []sales.LineInput{{ProductID: "tee", Size: "M", Quantity: 8, SellingPrice: decimal.NewFromInt(20)}},
	})
	require.NoError(t, err)
	require.True(t, txn.TotalProfit.Equal(decimal.NewFromInt(74)))

	got, err := svc.sales.Get(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	require.Len(t, got.Lines[0].Consumptions, 2)

	ret, err := svc.sales.CreateReturn(ctx, sales.ReturnInput{
		TransactionID: txn.ID,
		Items:         []sales.ReturnLineInput{{ProductID: "tee", Size: "M", Quantity: 3, Reason: "faded"}},
	})
	require.NoError(t, err)
	require.True(t, ret.ReturnedCost.Equal(decimal.NewFromInt(30)))

	_, err = svc.sales.Reverse(ctx, txn.ID)
	require.NoError(t, err)
	_, err = svc.sales.Reverse(ctx, txn.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	after := balances(t, svc)
	for code, balance := range before {
		require.True(t, balance.Equal(after[code]), "account %s", code)
	}
	ledgerDrift, err := svc.ledger.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, ledgerDrift)
	lotDrift, err := svc.inventory.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, lotDrift)

	history, err := svc.sales.ReturnsByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Len(t, history[0].Items[0].Releases, 1)
}

func TestPostgresConcurrentSalesForLastUnits(t *testing.T) {
	svc := setup(t)
	receive(t, svc, 3, "10")

	var sold atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := svc.sales.CreateSale(ctx, sales.SaleInput{
				PaymentMethod: sales.PaymentCash,
				Items:         []sales.LineInput{{ProductID: "tee", Size: "M", Quantity: 1, SellingPrice: decimal.NewFromInt(20)}},
			})
			switch {
			case err == nil:
				sold.Add(1)
			case errors.Is(err, shared.ErrInsufficientStock), errors.Is(err, shared.ErrConflict):
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.LessOrEqual(t, sold.Load(), int32(3))

	levels, err := svc.inventory.QueryInventory(context.Background(), "tee", "M")
	require.NoError(t, err)
	var left int64
	for _, level := range levels {
		left += level.QuantityAvailable
	}
	require.Equal(t, int64(3)-int64(sold.Load()), left)
}
