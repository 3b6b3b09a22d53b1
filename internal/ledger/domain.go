// Package ledger keeps the resort chart of accounts and applies double-entry
// transactions to account balances.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// IsValid checks if the account type is known.
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	default:
		return false
	}
}

// Account models a chart of accounts node with its running balance.
// Balance is the signed sum of transactions: + as debit, - as credit.
type Account struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is an immutable double-entry posting.
type Transaction struct {
	ID              int64           `json:"id"`
	DebitAccountID  int64           `json:"debit_account_id"`
	DebitCode       string          `json:"debit_account"`
	CreditAccountID int64           `json:"credit_account_id"`
	CreditCode      string          `json:"credit_account"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	SourceModule    string          `json:"source_module,omitempty"`
	SourceID        uuid.UUID       `json:"source_id,omitempty"`
	PostedAt        time.Time       `json:"posted_at"`
}

// AccountInput creates an account.
type AccountInput struct {
	Code string      `json:"code" validate:"required,max=10"`
	Name string      `json:"name" validate:"required,max=100"`
	Type AccountType `json:"type" validate:"required"`
}

// Validate ensures the account input is usable.
func (in AccountInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.Name) == "" {
		return ErrInvalidAccount
	}
	if !in.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAccount, in.Type)
	}
	return nil
}

// PostingInput groups the fields required to post a transaction. SourceModule and
// SourceID are optional but must come together; when present the posting is
// recorded at most once per (module, id).
type PostingInput struct {
	DebitCode    string
	CreditCode   string
	Amount       decimal.Decimal
	Description  string
	SourceModule string
	SourceID     uuid.UUID
	Actor        string
}

// Validate ensures posting input meets minimum criteria.
func (in PostingInput) Validate() error {
	if strings.TrimSpace(in.DebitCode) == "" || strings.TrimSpace(in.CreditCode) == "" {
		return fmt.Errorf("%w: debit and credit accounts required", ErrInvalidTransaction)
	}
	if in.DebitCode == in.CreditCode {
		return fmt.Errorf("%w: debit and credit accounts must differ", ErrInvalidTransaction)
	}
	if !in.Amount.Round(2).IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}
	if (in.SourceModule == "") != (in.SourceID == uuid.Nil) {
		return fmt.Errorf("%w: source module and id must be set together", ErrInvalidTransaction)
	}
	return nil
}

// TransactionRecord is the persisted shape of a validated posting.
type TransactionRecord struct {
	DebitAccountID  int64
	CreditAccountID int64
	Amount          decimal.Decimal
	Description     string
	SourceModule    string
	SourceID        uuid.UUID
	PostedAt        time.Time
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	AccountCode string
	Limit       int
}

// BalanceDrift reports an account whose stored balance differs from the sum of its transactions.
type BalanceDrift struct {
	Code     string          `json:"code"`
	Stored   decimal.Decimal `json:"stored"`
	Computed decimal.Decimal `json:"computed"`
}
