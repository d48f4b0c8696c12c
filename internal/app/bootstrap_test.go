package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
	"github.com/odyssey-erp/stockledger/internal/store/storetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStoreMemory(t *testing.T) {
	backend, err := OpenStore(context.Background(), &Config{StoreDriver: StoreMemory}, discardLogger())
	require.NoError(t, err)
	defer backend.Close()
	require.Nil(t, backend.Pool)
	require.IsType(t, &memory.Store{}, backend.Runner)
}

func TestOpenRedis(t *testing.T) {
	logger := discardLogger()
	require.Nil(t, OpenRedis(context.Background(), &Config{}, logger))

	mr := miniredis.RunT(t)
	client := OpenRedis(context.Background(), &Config{RedisAddr: mr.Addr()}, logger)
	require.NotNil(t, client)
	require.NoError(t, client.Close())

	addr := mr.Addr()
	mr.Close()
	require.Nil(t, OpenRedis(context.Background(), &Config{RedisAddr: addr}, logger))
}

func TestNewServicesWithRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := &Config{StoreDriver: StoreMemory, RedisAddr: mr.Addr()}
	logger := discardLogger()

	backend, err := OpenStore(ctx, cfg, logger)
	require.NoError(t, err)
	client := OpenRedis(ctx, cfg, logger)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	svc, err := NewServices(ctx, cfg, backend, client, observability.NewMetrics(), logger)
	require.NoError(t, err)

	accounts, err := svc.Ledger.ListAccounts(ctx, ledger.AccountFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, accounts)

	_, err = svc.Inventory.Receive(ctx, inventory.StockEntryInput{
		Supplier: "Acme Textiles",
		Lines:    []inventory.StockEntryLineInput{{ProductID: "tee", Size: "M", Quantity: 4, UnitCost: storetest.Dec("10")}},
	}, "delivery-1")
	require.NoError(t, err)

	levels, err := svc.Inventory.QueryInventory(ctx, "tee", "M")
	require.NoError(t, err)
	require.Len(t, levels, 1)
	require.EqualValues(t, 4, levels[0].QuantityAvailable)
	require.NotEmpty(t, mr.Keys())
}
