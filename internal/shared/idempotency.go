package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrIdempotencyConflict reports a key that was already claimed.
	ErrIdempotencyConflict = Classify("idempotent request already processed", ErrConflict)
	// ErrIdempotencyKey rejects blank keys or scopes.
	ErrIdempotencyKey = Classify("idempotency key and scope are required", ErrValidation)
)

const uniqueViolation = "23505"

// IdempotencyStore claims client supplied request keys in idempotency_keys
// so a retried stock movement is applied once.
type IdempotencyStore struct {
	db  Execer
	now func() time.Time
}

func NewIdempotencyStore(db Execer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

// CheckAndInsert claims key within scope. A second claim fails with
// ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, scope string) error {
	if s == nil || s.db == nil {
		return nil
	}
	key, scope = strings.TrimSpace(key), strings.TrimSpace(scope)
	if key == "" || scope == "" {
		return ErrIdempotencyKey
	}
	_, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, scope, s.now().UTC())
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &pgErr) && pgErr.Code == uniqueViolation:
		return fmt.Errorf("%w: %s", ErrIdempotencyConflict, key)
	default:
		return fmt.Errorf("idempotency claim %s: %w", key, err)
	}
}

// Delete releases a claim after the guarded work failed.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, strings.TrimSpace(key))
	return err
}
