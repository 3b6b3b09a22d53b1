package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile posts ledger transactions missing for invoices and payments.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskLedgerVerifyBalances compares stored balances with the transaction log.
	TaskLedgerVerifyBalances = "ledger:verify_balances"
)

// ReconcilePayload configures a reconcile run.
type ReconcilePayload struct {
	DryRun bool `json:"dry_run"`
	Limit  int  `json:"limit,omitempty"`
}

// VerifyBalancesPayload carries scheduling metadata.
type VerifyBalancesPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReconcileTask constructs an Asynq task for ledger reconciliation.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewVerifyBalancesTask constructs an Asynq task for the balance check.
func NewVerifyBalancesTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(VerifyBalancesPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerVerifyBalances, body, asynq.Queue(QueueDefault)), nil
}
