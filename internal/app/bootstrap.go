package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/sales"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
	"github.com/odyssey-erp/stockledger/internal/store/postgres"
)

// Backend is the selected store plus the pool behind it, if any.
type Backend struct {
	Runner store.Runner
	Pool   *pgxpool.Pool
}

// Close releases the pool.
func (b Backend) Close() {
	if b.Pool != nil {
		b.Pool.Close()
	}
}

// OpenStore connects the store named by STORE_DRIVER, migrating Postgres first
// when MIGRATE_ON_START is set.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (Backend, error) {
	if !cfg.UsesPostgres() {
		logger.Warn("using in-memory store, data is lost on restart")
		return Backend{Runner: memory.New()}, nil
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN, cfg.MigrationsPath, logger); err != nil {
			return Backend{}, err
		}
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return Backend{}, err
	}
	return Backend{Runner: postgres.New(pool, logger, cfg.StoreMaxRetries), Pool: pool}, nil
}

// OpenRedis returns a connected client, or nil when Redis is disabled or
// unreachable. Redis only backs optional features.
func OpenRedis(ctx context.Context, cfg *Config, logger *slog.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, cache and idempotency disabled", slog.Any("error", err))
		return nil
	}
	return client
}

// Services bundles the domain services bound to one store.
type Services struct {
	Ledger    *ledger.Service
	Inventory *inventory.Service
	Sales     *sales.Service
}

// NewServices wires the domain services. redisClient and metrics may be nil.
func NewServices(ctx context.Context, cfg *Config, backend Backend, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) (*Services, error) {
	audit := shared.NewAuditLogger(backend.Pool, logger)

	var (
		inventoryCache *cache.Versioned
		idempotency    *shared.IdempotencyStore
	)
	if redisClient != nil {
		inventoryCache = cache.NewVersioned(redisClient, "stockledger:inventory", cfg.InventoryCacheTTL)
		idempotency = shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)
	}

	ledgerSvc := ledger.NewService(store.LedgerUnit{Runner: backend.Runner}, audit, logger)
	inventorySvc := inventory.NewService(store.InventoryUnit{Runner: backend.Runner}, inventory.ServiceDeps{
		Cache:       inventoryCache,
		Audit:       audit,
		Idempotency: idempotency,
		Events:      metrics,
		Logger:      logger,
	})
	salesSvc := sales.NewService(store.SalesUnit{Runner: backend.Runner}, sales.ServiceDeps{
		Stock:       inventorySvc,
		Audit:       audit,
		Idempotency: idempotency,
		Events:      metrics,
		Logger:      logger,
	})

	if err := ledgerSvc.EnsureChart(ctx); err != nil {
		return nil, err
	}
	return &Services{Ledger: ledgerSvc, Inventory: inventorySvc, Sales: salesSvc}, nil
}
