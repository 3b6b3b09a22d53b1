package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, code string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	ComputeBalances(ctx context.Context) (map[string]decimal.Decimal, error)
}

// TxRepository exposes the row-level operations a posting needs. Other packages
// embed it so postings can share their database transaction.
type TxRepository interface {
	// GetAccountsForUpdate locks the accounts in ascending code order and returns
	// those that exist, keyed by code.
	GetAccountsForUpdate(ctx context.Context, codes []string) (map[string]Account, error)
	AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error
	InsertTransaction(ctx context.Context, rec TransactionRecord) (Transaction, error)
	// LinkSource claims (module, ref) for txID. It returns ErrSourceConflict when
	// the pair is already linked, without aborting the database transaction.
	LinkSource(ctx context.Context, module string, ref uuid.UUID, txID int64) error
	InsertAccount(ctx context.Context, in AccountInput) (Account, error)
	CountAccountReferences(ctx context.Context, accountID int64) (int64, error)
	DeleteAccount(ctx context.Context, accountID int64) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the chart of accounts and transaction posting.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Apply posts in within an existing transaction: it locks both accounts, writes
// the transaction row, claims the optional source link and moves both balances.
// Callers own commit and rollback, so either everything lands or nothing does.
func Apply(ctx context.Context, tx TxRepository, in PostingInput, at time.Time) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	accounts, err := tx.GetAccountsForUpdate(ctx, []string{in.DebitCode, in.CreditCode})
	if err != nil {
		return Transaction{}, err
	}
	debit, ok := accounts[in.DebitCode]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %s", ErrUnknownAccount, in.DebitCode)
	}
	credit, ok := accounts[in.CreditCode]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %s", ErrUnknownAccount, in.CreditCode)
	}
	if at.IsZero() {
		at = time.Now()
	}
	amount := in.Amount.Round(2)
	txn, err := tx.InsertTransaction(ctx, TransactionRecord{
		DebitAccountID:  debit.ID,
		CreditAccountID: credit.ID,
		Amount:          amount,
		Description:     in.Description,
		SourceModule:    in.SourceModule,
		SourceID:        in.SourceID,
		PostedAt:        at,
	})
	if err != nil {
		return Transaction{}, err
	}
	if in.SourceModule != "" {
		if err := tx.LinkSource(ctx, in.SourceModule, in.SourceID, txn.ID); err != nil {
			if errors.Is(err, ErrSourceConflict) {
				return Transaction{}, ErrSourceAlreadyLinked
			}
			return Transaction{}, err
		}
	}
	if err := tx.AdjustBalance(ctx, debit.ID, amount); err != nil {
		return Transaction{}, err
	}
	if err := tx.AdjustBalance(ctx, credit.ID, amount.Neg()); err != nil {
		return Transaction{}, err
	}
	txn.DebitCode = debit.Code
	txn.CreditCode = credit.Code
	return txn, nil
}

// Post validates and applies a transaction in its own database transaction.
func (s *Service) Post(ctx context.Context, in PostingInput) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posted, err := Apply(ctx, tx, in, s.now())
		if err != nil {
			return err
		}
		txn = posted
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, shared.AuditLog{
		Actor:    in.Actor,
		Action:   "ledger.post",
		Entity:   "ledger_transaction",
		EntityID: fmt.Sprintf("%d", txn.ID),
		Meta: map[string]any{
			"debit":  txn.DebitCode,
			"credit": txn.CreditCode,
			"amount": txn.Amount.StringFixed(2),
		},
	})
	return txn, nil
}

// GetBalance returns the running balance of an account.
func (s *Service) GetBalance(ctx context.Context, code string) (decimal.Decimal, error) {
	account, err := s.repo.GetAccount(ctx, strings.TrimSpace(code))
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// GetAccount returns a single account.
func (s *Service) GetAccount(ctx context.Context, code string) (Account, error) {
	return s.repo.GetAccount(ctx, strings.TrimSpace(code))
}

// ListAccounts returns the chart ordered by code.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// ListTransactions returns postings newest first, optionally for one account.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.AccountCode != "" {
		if _, err := s.repo.GetAccount(ctx, filter.AccountCode); err != nil {
			return nil, err
		}
	}
	return s.repo.ListTransactions(ctx, filter)
}

// CreateAccount adds an account with a zero balance.
func (s *Service) CreateAccount(ctx context.Context, in AccountInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertAccount(ctx, in)
		if err != nil {
			return err
		}
		account = created
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, shared.AuditLog{
		Action:   "ledger.account.create",
		Entity:   "account",
		EntityID: account.Code,
		Meta:     map[string]any{"type": string(account.Type)},
	})
	return account, nil
}

// DeleteAccount removes an account that no transaction references.
func (s *Service) DeleteAccount(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		accounts, err := tx.GetAccountsForUpdate(ctx, []string{code})
		if err != nil {
			return err
		}
		account, ok := accounts[code]
		if !ok {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, code)
		}
		refs, err := tx.CountAccountReferences(ctx, account.ID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: %s has %d transactions", ErrAccountInUse, code, refs)
		}
		return tx.DeleteAccount(ctx, account.ID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, shared.AuditLog{Action: "ledger.account.delete", Entity: "account", EntityID: code})
	return nil
}

// SeedChart inserts the accounts of DefaultChart that do not exist yet and
// returns how many were created. Running it again is a no-op.
func (s *Service) SeedChart(ctx context.Context) (int, error) {
	created := 0
	for _, in := range DefaultChart {
		if _, err := s.repo.GetAccount(ctx, in.Code); err == nil {
			continue
		} else if !errors.Is(err, ErrAccountNotFound) {
			return created, err
		}
		if _, err := s.CreateAccount(ctx, in); err != nil {
			if errors.Is(err, ErrDuplicateAccount) {
				continue
			}
			return created, err
		}
		created++
	}
	s.logger.Info("chart of accounts seeded", slog.Int("created", created))
	return created, nil
}

// CheckRoles ensures every role resolves to an existing account.
func (s *Service) CheckRoles(ctx context.Context, roles Roles) error {
	if err := roles.Validate(); err != nil {
		return err
	}
	for _, code := range roles.codes() {
		if _, err := s.repo.GetAccount(ctx, code); err != nil {
			return fmt.Errorf("ledger: role account %s: %w", code, err)
		}
	}
	return nil
}

// VerifyBalances recomputes every balance from the transaction log and returns
// the accounts whose stored balance drifted, ordered by code.
func (s *Service) VerifyBalances(ctx context.Context) ([]BalanceDrift, error) {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	computed, err := s.repo.ComputeBalances(ctx)
	if err != nil {
		return nil, err
	}
	var drifts []BalanceDrift
	for _, account := range accounts {
		sum := computed[account.Code]
		if !account.Balance.Equal(sum) {
			drifts = append(drifts, BalanceDrift{Code: account.Code, Stored: account.Balance, Computed: sum})
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].Code < drifts[j].Code })
	return drifts, nil
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if log.At.IsZero() {
		log.At = s.now()
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("ledger audit", slog.String("action", log.Action), slog.Any("error", err))
	}
}
