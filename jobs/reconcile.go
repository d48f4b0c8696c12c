package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/ledger"
)

// LedgerReconciler replays the journal and reports drifted accounts.
type LedgerReconciler interface {
	Reconcile(ctx context.Context) ([]ledger.Discrepancy, error)
}

// InventoryReconciler replays lot movements and reports drifted lots.
type InventoryReconciler interface {
	Reconcile(ctx context.Context) ([]inventory.Discrepancy, error)
}

// ReconcileJob verifies that cached balances and lot quantities still match
// their append-only history. It never repairs anything.
type ReconcileJob struct {
	Ledger    LedgerReconciler
	Inventory InventoryReconciler
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconcile handlers.
func NewReconcileJob(ledgerSvc LedgerReconciler, inventorySvc InventoryReconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Ledger: ledgerSvc, Inventory: inventorySvc, Logger: logger, Metrics: metrics}
}

// Handlers lists the task handlers this job serves.
func (j *ReconcileJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskLedgerReconcile, Handler: j.HandleLedger},
		{Type: TaskInventoryReconcile, Handler: j.HandleInventory},
	}
}

// HandleLedger executes TaskLedgerReconcile.
func (j *ReconcileJob) HandleLedger(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger reconcile: handler not configured")
	}
	payload, ok := decodePayload(t)
	if !ok {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskLedgerReconcile)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	logger := j.logger().With(slog.String("job", TaskLedgerReconcile), slog.Time("requested_at", payload.RequestedAt))
	drift, err := j.Ledger.Reconcile(ctx)
	if err != nil {
		logger.Error("ledger reconcile failed", slog.Any("error", err))
		return err
	}
	for _, d := range drift {
		logger.Error("account balance drifted",
			slog.Int64("account_id", d.AccountID),
			slog.String("code", d.Code),
			slog.String("cached", d.Cached.String()),
			slog.String("replayed", d.Replayed.String()),
		)
	}
	j.Metrics.AddDiscrepancies("account", len(drift))
	logger.Info("completed ledger reconcile", slog.Int("discrepancies", len(drift)), slog.Duration("duration", time.Since(start)))
	if len(drift) > 0 {
		return fmt.Errorf("ledger reconcile: %d accounts drifted: %w", len(drift), asynq.SkipRetry)
	}
	return nil
}

// HandleInventory executes TaskInventoryReconcile.
func (j *ReconcileJob) HandleInventory(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Inventory == nil {
		return errors.New("inventory reconcile: handler not configured")
	}
	payload, ok := decodePayload(t)
	if !ok {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskInventoryReconcile)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	logger := j.logger().With(slog.String("job", TaskInventoryReconcile), slog.Time("requested_at", payload.RequestedAt))
	drift, err := j.Inventory.Reconcile(ctx)
	if err != nil {
		logger.Error("inventory reconcile failed", slog.Any("error", err))
		return err
	}
	for _, d := range drift {
		logger.Error("lot quantity drifted", slog.Int64("lot_id", d.LotID), slog.Int64("cached", d.Cached), slog.Int64("replayed", d.Replayed))
	}
	j.Metrics.AddDiscrepancies("lot", len(drift))
	logger.Info("completed inventory reconcile", slog.Int("discrepancies", len(drift)), slog.Duration("duration", time.Since(start)))
	if len(drift) > 0 {
		return fmt.Errorf("inventory reconcile: %d lots drifted: %w", len(drift), asynq.SkipRetry)
	}
	return nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func decodePayload(t *asynq.Task) (ReconcilePayload, bool) {
	var payload ReconcilePayload
	if len(t.Payload()) == 0 {
		return payload, true
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, false
	}
	return payload, true
}

// DefaultSchedule runs both checks hourly, offset from each other.
func DefaultSchedule() ([]CronRegistration, error) {
	ledgerTask, err := NewLedgerReconcileTask(time.Time{})
	if err != nil {
		return nil, err
	}
	inventoryTask, err := NewInventoryReconcileTask(time.Time{})
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: "15 * * * *", Task: ledgerTask},
		{Spec: "45 * * * *", Task: inventoryTask},
	}, nil
}
