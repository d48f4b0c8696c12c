package inventory_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/sales"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/storetest"
)

var dec = storetest.Dec

func TestReceiveCreatesLotsAndPostsPayable(t *testing.T) {
	f := storetest.New(t)
	ctx := shared.ContextWithActor(context.Background(), "clerk")

	entry, err := f.Inventory.Receive(ctx, inventory.StockEntryInput{
		Supplier:      "Acme Textiles",
		InvoiceNumber: "INV-100",
		Location:      "Back room",
		Lines: []inventory.StockEntryLineInput{
			{ProductID: "tee", Size: "M", Quantity: 10, UnitCost: dec("4.50")},
			{ProductID: "tee", Size: "L", Quantity: 4, UnitCost: dec("5")},
		},
	}, "")
	require.NoError(t, err)
	require.Equal(t, inventory.StockEntryActive, entry.Status)
	require.Equal(t, "clerk", entry.CreatedBy)
	require.Len(t, entry.Lines, 2)
	require.NotZero(t, entry.Lines[0].LotID)

	require.True(t, f.Balance(t, ledger.CodeInventory).Equal(dec("65")))
	require.True(t, f.Balance(t, ledger.CodeAccountsPayable).Equal(dec("65")))
	require.Equal(t, int64(10), f.Available(t, "tee", "M"))
	require.Equal(t, int64(4), f.Available(t, "tee", "L"))

	levels, err := f.Inventory.QueryInventory(ctx, "tee", "")
	require.NoError(t, err)
	require.Equal(t, []inventory.StockLevel{
		{ProductID: "tee", Size: "L", QuantityAvailable: 4},
		{ProductID: "tee", Size: "M", QuantityAvailable: 10},
	}, levels)

	got, err := f.Inventory.GetStockEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, entry.Lines, got.Lines)
	f.RequireConsistent(t)
}

func TestReceiveValidatesInput(t *testing.T) {
	f := storetest.New(t)
	ctx := context.Background()
	cases := []inventory.StockEntryInput{
		{Lines: []inventory.StockEntryLineInput{{ProductID: "tee", Size: "M", Quantity: 1, UnitCost: dec("1")}}},
		{Supplier: "Acme"},
		{Supplier: "Acme", Lines: []inventory.StockEntryLineInput{{ProductID: "tee", Size: "M", Quantity: 0, UnitCost: dec("1")}}},
		{Supplier: "Acme", Lines: []inventory.StockEntryLineInput{{ProductID: "tee", Size: "", Quantity: 1, UnitCost: dec("1")}}},
		{Supplier: "Acme", Lines: []inventory.StockEntryLineInput{{ProductID: "tee", Size: "M", Quantity: 1, UnitCost: dec("-1")}}},
	}
	for i, input := range cases {
		_, err := f.Inventory.Receive(ctx, input, "")
		require.ErrorIs(t, err, shared.ErrValidation, "case %d", i)
	}
	entries, err := f.Inventory.ListStockEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFIFOCostDoesNotMutateLots(t *testing.T) {
	f := storetest.New(t)
	ctx := context.Background()
	f.Receive(t, "tee", "M", 5, "10")
	f.Receive(t, "tee", "M", 5, "12")

	alloc, err := f.Inventory.FIFOCost(ctx, "tee", "M", 8)
	require.NoError(t, err)
	require.True(t, alloc.UnitCost.Equal(dec("10.75")))
	require.Equal(t, int64(10), f.Available(t, "tee", "M"))

	_, err = f.Inventory.FIFOCost(ctx, "tee", "M", 11)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	_, err = f.Inventory.FIFOCost(ctx, "", "M", 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestVoidStockEntryOnlyWhileUntouched(t *testing.T) {
	f := storetest.New(t)
	ctx := context.Background()
	untouched := f.Receive(t, "tee", "M", 5, "10")
	touched := f.Receive(t, "cap", "OS", 3, "7")

	_, err := f.Sales.CreateSale(ctx, sales.SaleInput{
		PaymentMethod: sales.PaymentCash,
		Items:         []sales.LineInput{{ProductID: "cap", Size: "OS", Quantity: 1, SellingPrice: dec("15")}},
	})
	require.NoError(t, err)

	_, err = f.Inventory.VoidStockEntry(ctx, touched.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, int64(2), f.Available(t, "cap", "OS"))

	voided, err := f.Inventory.VoidStockEntry(ctx, untouched.ID)
	require.NoError(t, err)
	require.Equal(t, inventory.StockEntryVoid, voided.Status)
	require.Zero(t, f.Available(t, "tee", "M"))
	require.Len(t, f.Lots(t, "tee", "M"), 1, "voided lots are retained")

	require.True(t, f.Balance(t, ledger.CodeAccountsPayable).Equal(dec("21")))
	require.True(t, f.Balance(t, ledger.CodeInventory).Equal(dec("14")))

	_, err = f.Inventory.VoidStockEntry(ctx, untouched.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.Inventory.VoidStockEntry(ctx, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
	f.RequireConsistent(t)
}

func TestQueryInventoryCacheIsInvalidatedBySales(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := storetest.NewWithOptions(t, storetest.Options{Cache: cache.NewVersioned(client, "inventory", time.Minute)})
	ctx := context.Background()
	f.Receive(t, "tee", "M", 5, "10")
	require.Equal(t, int64(5), f.Available(t, "tee", "M"))
	require.Equal(t, int64(5), f.Available(t, "tee", "M"))

	_, err := f.Sales.CreateSale(ctx, sales.SaleInput{
		PaymentMethod: sales.PaymentCard,
		Items:         []sales.LineInput{{ProductID: "tee", Size: "M", Quantity: 2, SellingPrice: dec("20")}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), f.Available(t, "tee", "M"))

	version, err := client.Get(ctx, "inventory:version").Int64()
	require.NoError(t, err)
	require.Equal(t, int64(2), version)
}

func TestReceiveIdempotencyKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := storetest.NewWithOptions(t, storetest.Options{Idempotency: shared.NewIdempotencyStore(client, time.Hour)})
	ctx := context.Background()
	input := inventory.StockEntryInput{
		Supplier: "Acme",
		Lines:    []inventory.StockEntryLineInput{{ProductID: "tee", Size: "M", Quantity: 2, UnitCost: dec("3")}},
	}
	_, err := f.Inventory.Receive(ctx, input, "delivery-1")
	require.NoError(t, err)
	_, err = f.Inventory.Receive(ctx, input, "delivery-1")
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, int64(2), f.Available(t, "tee", "M"))

	bad := input
	bad.Supplier = ""
	_, err = f.Inventory.Receive(ctx, bad, "delivery-2")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.Inventory.Receive(ctx, input, "delivery-2")
	require.NoError(t, err)
}

func TestReconcileFlagsNothingAfterMixedActivity(t *testing.T) {
	f := storetest.New(t)
	ctx := context.Background()
	f.Receive(t, "tee", "M", 5, "10")
	f.Receive(t, "tee", "M", 5, "12")
	txn, err := f.Sales.CreateSale(ctx, sales.SaleInput{
		PaymentMethod: sales.PaymentCash,
		Items:         []sales.LineInput{{ProductID: "tee", Size: "M", Quantity: 7, SellingPrice: dec("20")}},
	})
	require.NoError(t, err)
	_, err = f.Sales.CreateReturn(ctx, sales.ReturnInput{TransactionID: txn.ID, Items: []sales.ReturnLineInput{{ProductID: "tee", Size: "M", Quantity: 2, Reason: "too small"}}})
	require.NoError(t, err)
	_, err = f.Sales.Reverse(ctx, txn.ID)
	require.NoError(t, err)

	drift, err := f.Inventory.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, drift)
	require.Equal(t, int64(10), f.Available(t, "tee", "M"))
}
