package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrAuditIncomplete rejects audit entries without an action or a target.
var ErrAuditIncomplete = Classify("audit: action, entity and entity id are required", ErrValidation)

// AuditLog is one row of audit_logs. Every state change in the resort
// (postings, stock moves, order transitions, invoice updates) leaves one.
type AuditLog struct {
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger appends records to audit_logs.
type AuditLogger struct {
	db Execer
}

func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

const insertAudit = `INSERT INTO audit_logs (actor, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`

// Record stores log. A blank actor is taken from the request context.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("audit %s: logger not configured", log.Action)
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return ErrAuditIncomplete
	}
	if log.Actor == "" {
		log.Actor = ActorFromContext(ctx)
	}
	if log.Meta == nil {
		log.Meta = map[string]any{}
	}
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return fmt.Errorf("audit %s: encode meta: %w", log.Action, err)
	}
	var at *time.Time
	if !log.At.IsZero() {
		utc := log.At.UTC()
		at = &utc
	}
	if _, err := l.db.Exec(ctx, insertAudit, log.Actor, log.Action, log.Entity, log.EntityID, meta, at); err != nil {
		return fmt.Errorf("audit %s: %w", log.Action, err)
	}
	return nil
}
