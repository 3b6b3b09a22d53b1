package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-resort/internal/jobs"
	"github.com/odyssey-erp/odyssey-resort/internal/ledger"
)

// BalanceVerifier recomputes account balances from the transaction log.
type BalanceVerifier interface {
	VerifyBalances(ctx context.Context) ([]ledger.BalanceDrift, error)
}

// VerifyBalancesJob handles TaskLedgerVerifyBalances. Drift is reported, never
// repaired: a drifted balance needs a human decision.
type VerifyBalancesJob struct {
	Ledger  BalanceVerifier
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewVerifyBalancesJob initialises the balance check handler.
func NewVerifyBalancesJob(ledger BalanceVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *VerifyBalancesJob {
	return &VerifyBalancesJob{Ledger: ledger, Logger: logger, Metrics: metrics}
}

// Handle executes the balance check.
func (j *VerifyBalancesJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger verify: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLedgerVerifyBalances)
	defer func() {
		err = tracker.End(err)
	}()

	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskLedgerVerifyBalances))
	drifts, err := j.Ledger.VerifyBalances(ctx)
	if err != nil {
		logger.Error("verify balances failed", slog.Any("error", err))
		return err
	}
	j.Metrics.SetBalanceDrift(len(drifts))
	for _, d := range drifts {
		logger.Error("account balance drift",
			slog.String("account", d.Code),
			slog.String("stored", d.Stored.StringFixed(2)),
			slog.String("computed", d.Computed.StringFixed(2)))
	}
	if len(drifts) == 0 {
		logger.Info("ledger balances verified")
	}
	return nil
}
