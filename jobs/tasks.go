package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile replays the journal against cached account balances.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskInventoryReconcile replays lot movements against cached lot quantities.
	TaskInventoryReconcile = "inventory:reconcile"
)

// ReconcilePayload carries scheduling metadata.
type ReconcilePayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// NewLedgerReconcileTask constructs an Asynq task for the ledger check.
func NewLedgerReconcileTask(at time.Time) (*asynq.Task, error) {
	return newReconcileTask(TaskLedgerReconcile, at)
}

// NewInventoryReconcileTask constructs an Asynq task for the lot check.
func NewInventoryReconcileTask(at time.Time) (*asynq.Task, error) {
	return newReconcileTask(TaskInventoryReconcile, at)
}

func newReconcileTask(typ string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcilePayload{RequestedAt: at.UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
