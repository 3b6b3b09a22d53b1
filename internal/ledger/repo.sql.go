package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/platform/db"
)

// Repository persists ledger entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository exposes ledger row operations on a transaction owned by another module.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const accountColumns = `id, code, name, type, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// GetAccount loads an account by code.
func (r *Repository) GetAccount(ctx context.Context, code string) (Account, error) {
	account, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
		}
		return Account{}, err
	}
	return account, nil
}

// ListAccounts returns every account ordered by code.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ListTransactions returns postings newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := `SELECT t.id, t.debit_account_id, d.code, t.credit_account_id, c.code, t.amount, t.description,
       t.source_module, t.source_id, t.posted_at
FROM ledger_transactions t
JOIN accounts d ON d.id = t.debit_account_id
JOIN accounts c ON c.id = t.credit_account_id`
	args := []any{}
	if filter.AccountCode != "" {
		query += ` WHERE d.code = $1 OR c.code = $1`
		args = append(args, filter.AccountCode)
	}
	query += fmt.Sprintf(` ORDER BY t.id DESC LIMIT %d`, filter.Limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var (
			t        Transaction
			sourceID *uuid.UUID
		)
		if err := rows.Scan(&t.ID, &t.DebitAccountID, &t.DebitCode, &t.CreditAccountID, &t.CreditCode, &t.Amount,
			&t.Description, &t.SourceModule, &sourceID, &t.PostedAt); err != nil {
			return nil, err
		}
		if sourceID != nil {
			t.SourceID = *sourceID
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ComputeBalances sums debits minus credits per account code from the transaction log.
func (r *Repository) ComputeBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.code,
       COALESCE((SELECT SUM(amount) FROM ledger_transactions WHERE debit_account_id = a.id), 0)
     - COALESCE((SELECT SUM(amount) FROM ledger_transactions WHERE credit_account_id = a.id), 0)
FROM accounts a`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			code string
			sum  decimal.Decimal
		)
		if err := rows.Scan(&code, &sum); err != nil {
			return nil, err
		}
		out[code] = sum
	}
	return out, rows.Err()
}

func (r *txRepository) GetAccountsForUpdate(ctx context.Context, codes []string) (map[string]Account, error) {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)
	out := make(map[string]Account, len(sorted))
	for _, code := range sorted {
		if _, seen := out[code]; seen {
			continue
		}
		account, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1 FOR UPDATE`, code))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, err
		}
		out[code] = account
	}
	return out, nil
}

func (r *txRepository) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrAccountNotFound, accountID)
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, rec TransactionRecord) (Transaction, error) {
	var sourceID any
	if rec.SourceID != uuid.Nil {
		sourceID = rec.SourceID
	}
	txn := Transaction{
		DebitAccountID:  rec.DebitAccountID,
		CreditAccountID: rec.CreditAccountID,
		Amount:          rec.Amount,
		Description:     rec.Description,
		SourceModule:    rec.SourceModule,
		SourceID:        rec.SourceID,
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO ledger_transactions (debit_account_id, credit_account_id, amount, description, source_module, source_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, posted_at`,
		rec.DebitAccountID, rec.CreditAccountID, rec.Amount, rec.Description, rec.SourceModule, sourceID, rec.PostedAt,
	).Scan(&txn.ID, &txn.PostedAt)
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, txID int64) error {
	tag, err := r.tx.Exec(ctx, `INSERT INTO ledger_source_links (module, ref_id, transaction_id) VALUES ($1,$2,$3)
ON CONFLICT ON CONSTRAINT uq_ledger_source_links DO NOTHING`, module, ref, txID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceConflict
	}
	return nil
}

func (r *txRepository) InsertAccount(ctx context.Context, in AccountInput) (Account, error) {
	tag, err := r.tx.Exec(ctx, `INSERT INTO accounts (code, name, type) VALUES ($1,$2,$3)
ON CONFLICT ON CONSTRAINT uq_accounts_code DO NOTHING`, in.Code, in.Name, in.Type)
	if err != nil {
		return Account{}, err
	}
	if tag.RowsAffected() == 0 {
		return Account{}, fmt.Errorf("%w: %s", ErrDuplicateAccount, in.Code)
	}
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, in.Code))
}

func (r *txRepository) CountAccountReferences(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_transactions WHERE debit_account_id=$1 OR credit_account_id=$1`, accountID).Scan(&n)
	return n, err
}

func (r *txRepository) DeleteAccount(ctx context.Context, accountID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, accountID)
	if err != nil && db.IsForeignKeyViolation(err) {
		return ErrAccountInUse
	}
	return err
}
