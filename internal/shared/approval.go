package shared

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// ApprovalAction is one step in a two-level approval chain.
type ApprovalAction string

const (
	ApprovalSubmit  ApprovalAction = "SUBMIT"
	ApprovalStation ApprovalAction = "STATION_APPROVE"
	ApprovalAdmin   ApprovalAction = "ADMIN_APPROVE"
	ApprovalReject  ApprovalAction = "REJECT"
)

// ErrApprovalIncomplete rejects entries lacking a module, reference or action.
var ErrApprovalIncomplete = Classify("approval: module, ref id and action are required", ErrValidation)

// ApprovalLog is a row of the approvals table.
type ApprovalLog struct {
	ID     int64          `json:"id"`
	Module string         `json:"module"`
	RefID  int64          `json:"ref_id"`
	Actor  string         `json:"actor"`
	Action ApprovalAction `json:"action"`
	Note   string         `json:"note,omitempty"`
	At     time.Time      `json:"at"`
}

// Querier is the read side of a pgx pool or transaction.
type Querier interface {
	Execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ApprovalRecorder keeps the decision history of approvable records.
type ApprovalRecorder struct {
	db     Querier
	logger *slog.Logger
}

func NewApprovalRecorder(db Querier, logger *slog.Logger) *ApprovalRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalRecorder{db: db, logger: logger}
}

// Record appends a decision. A blank actor is taken from the request context.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("approval %s: recorder not configured", log.Action)
	}
	if log.Module == "" || log.RefID == 0 || log.Action == "" {
		return ErrApprovalIncomplete
	}
	if log.Actor == "" {
		log.Actor = ActorFromContext(ctx)
	}
	var at *time.Time
	if !log.At.IsZero() {
		utc := log.At.UTC()
		at = &utc
	}
	_, err := r.db.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.Module, log.RefID, log.Actor, string(log.Action), log.Note, at)
	if err != nil {
		r.logger.Error("record approval",
			slog.String("module", log.Module),
			slog.Int64("ref_id", log.RefID),
			slog.Any("error", err))
		return fmt.Errorf("approval %s: %w", log.Action, err)
	}
	return nil
}

// List returns the history of module/ref, oldest first.
func (r *ApprovalRecorder) List(ctx context.Context, module string, ref int64) ([]ApprovalLog, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("approval history %s/%d: recorder not configured", module, ref)
	}
	rows, err := r.db.Query(ctx, `SELECT id, module, ref_id, actor, action, note, at
FROM approvals WHERE module = $1 AND ref_id = $2 ORDER BY at, id`, module, ref)
	if err != nil {
		return nil, err
	}
	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ApprovalLog, error) {
		var l ApprovalLog
		var action string
		err := row.Scan(&l.ID, &l.Module, &l.RefID, &l.Actor, &action, &l.Note, &l.At)
		l.Action = ApprovalAction(action)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("approval history %s/%d: %w", module, ref, err)
	}
	if logs == nil {
		logs = []ApprovalLog{}
	}
	return logs, nil
}
