package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-resort/internal/billing"
	jobmetrics "github.com/odyssey-erp/odyssey-resort/internal/jobs"
)

// Reconciler posts missing billing transactions.
type Reconciler interface {
	Reconcile(ctx context.Context, opts billing.ReconcileOptions) (billing.ReconcileReport, error)
}

// ReconcileJob handles TaskLedgerReconcile.
type ReconcileJob struct {
	Billing Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconcile handler.
func NewReconcileJob(billing Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Billing: billing, Logger: logger, Metrics: metrics}
}

// Handle executes the reconcile run. Per-entity failures fail the task so
// asynq retries it; entities already posted are skipped on the retry.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Billing == nil {
		return errors.New("ledger reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger reconcile payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.Metrics.Track(TaskLedgerReconcile)
	defer func() {
		err = tracker.End(err)
	}()

	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskLedgerReconcile), slog.Bool("dry_run", payload.DryRun))
	report, err := j.Billing.Reconcile(ctx, billing.ReconcileOptions{DryRun: payload.DryRun, Limit: payload.Limit})
	if err != nil {
		logger.Error("reconcile failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskLedgerReconcile, "posted", report.InvoicesPosted+report.PaymentsPosted)
	j.Metrics.AddItems(TaskLedgerReconcile, "skipped", report.Skipped)
	j.Metrics.AddItems(TaskLedgerReconcile, "failed", report.Failed)
	for _, msg := range report.Errors {
		logger.Warn("reconcile entity failed", slog.String("detail", msg))
	}
	if report.Failed > 0 {
		return fmt.Errorf("ledger reconcile: %d entities failed", report.Failed)
	}
	return nil
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
