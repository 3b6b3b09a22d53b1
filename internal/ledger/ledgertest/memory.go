// Package ledgertest provides an in-memory ledger store for tests of packages
// that post transactions.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/ledger"
)

// Store is a goroutine-safe in-memory ledger. WithTx snapshots the state and
// restores it when fn fails, so tests can assert all-or-nothing behaviour.
type Store struct {
	mu           sync.Mutex
	accounts     map[string]*ledger.Account
	transactions []ledger.Transaction
	links        map[string]int64
	nextAccount  int64
	nextTx       int64
}

// NewStore returns a store pre-loaded with accounts.
func NewStore(accounts ...ledger.AccountInput) *Store {
	s := &Store{accounts: make(map[string]*ledger.Account), links: make(map[string]int64)}
	for _, in := range accounts {
		s.nextAccount++
		s.accounts[in.Code] = &ledger.Account{ID: s.nextAccount, Code: in.Code, Name: in.Name, Type: in.Type}
	}
	return s
}

// NewChartStore returns a store seeded with ledger.DefaultChart.
func NewChartStore() *Store {
	return NewStore(ledger.DefaultChart...)
}

type snapshot struct {
	accounts     map[string]ledger.Account
	transactions int
	links        map[string]int64
	nextAccount  int64
	nextTx       int64
}

// Snapshot captures the current state. Callers must hold no lock.
func (s *Store) snapshot() snapshot {
	snap := snapshot{
		accounts:     make(map[string]ledger.Account, len(s.accounts)),
		transactions: len(s.transactions),
		links:        make(map[string]int64, len(s.links)),
		nextAccount:  s.nextAccount,
		nextTx:       s.nextTx,
	}
	for code, a := range s.accounts {
		snap.accounts[code] = *a
	}
	for k, v := range s.links {
		snap.links[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.accounts = make(map[string]*ledger.Account, len(snap.accounts))
	for code, a := range snap.accounts {
		a := a
		s.accounts[code] = &a
	}
	s.transactions = s.transactions[:snap.transactions]
	s.links = snap.links
	s.nextAccount = snap.nextAccount
	s.nextTx = snap.nextTx
}

// Begin locks the store and returns a commit func; pass the error of the unit of
// work to it. Packages embedding the ledger in their own memory repositories use
// this to join one all-or-nothing scope.
func (s *Store) Begin() func(err error) {
	s.mu.Lock()
	snap := s.snapshot()
	return func(err error) {
		if err != nil {
			s.restore(snap)
		}
		s.mu.Unlock()
	}
}

// WithTx implements ledger.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	done := s.Begin()
	err := fn(ctx, Tx{s})
	done(err)
	return err
}

// GetAccount implements ledger.RepositoryPort.
func (s *Store) GetAccount(ctx context.Context, code string) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[code]
	if !ok {
		return ledger.Account{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, code)
	}
	return *a, nil
}

// ListAccounts implements ledger.RepositoryPort.
func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ListTransactions implements ledger.RepositoryPort.
func (s *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if filter.AccountCode != "" && t.DebitCode != filter.AccountCode && t.CreditCode != filter.AccountCode {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// ComputeBalances implements ledger.RepositoryPort.
func (s *Store) ComputeBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(s.accounts))
	for code := range s.accounts {
		out[code] = decimal.Zero
	}
	for _, t := range s.transactions {
		out[t.DebitCode] = out[t.DebitCode].Add(t.Amount)
		out[t.CreditCode] = out[t.CreditCode].Sub(t.Amount)
	}
	return out, nil
}

// Transactions returns every posting in insertion order.
func (s *Store) Transactions() []ledger.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Transaction(nil), s.transactions...)
}

// Balance returns the stored balance of code, zero when unknown.
func (s *Store) Balance(code string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[code]; ok {
		return a.Balance
	}
	return decimal.Zero
}

// Tx implements ledger.TxRepository against a Store whose lock is held.
type Tx struct {
	s *Store
}

// NewTx exposes the row operations of s. The caller must hold the scope opened by Begin.
func NewTx(s *Store) Tx {
	return Tx{s}
}

func (t Tx) GetAccountsForUpdate(ctx context.Context, codes []string) (map[string]ledger.Account, error) {
	out := make(map[string]ledger.Account, len(codes))
	for _, code := range codes {
		if a, ok := t.s.accounts[code]; ok {
			out[code] = *a
		}
	}
	return out, nil
}

func (t Tx) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	for _, a := range t.s.accounts {
		if a.ID == accountID {
			a.Balance = a.Balance.Add(delta)
			return nil
		}
	}
	return fmt.Errorf("%w: id %d", ledger.ErrAccountNotFound, accountID)
}

func (t Tx) InsertTransaction(ctx context.Context, rec ledger.TransactionRecord) (ledger.Transaction, error) {
	t.s.nextTx++
	txn := ledger.Transaction{
		ID:              t.s.nextTx,
		DebitAccountID:  rec.DebitAccountID,
		CreditAccountID: rec.CreditAccountID,
		Amount:          rec.Amount,
		Description:     rec.Description,
		SourceModule:    rec.SourceModule,
		SourceID:        rec.SourceID,
		PostedAt:        rec.PostedAt,
	}
	if txn.PostedAt.IsZero() {
		txn.PostedAt = time.Now()
	}
	for _, a := range t.s.accounts {
		switch a.ID {
		case rec.DebitAccountID:
			txn.DebitCode = a.Code
		case rec.CreditAccountID:
			txn.CreditCode = a.Code
		}
	}
	t.s.transactions = append(t.s.transactions, txn)
	return txn, nil
}

func (t Tx) LinkSource(ctx context.Context, module string, ref uuid.UUID, txID int64) error {
	key := module + ":" + ref.String()
	if _, ok := t.s.links[key]; ok {
		return ledger.ErrSourceConflict
	}
	t.s.links[key] = txID
	return nil
}

func (t Tx) InsertAccount(ctx context.Context, in ledger.AccountInput) (ledger.Account, error) {
	if _, ok := t.s.accounts[in.Code]; ok {
		return ledger.Account{}, fmt.Errorf("%w: %s", ledger.ErrDuplicateAccount, in.Code)
	}
	t.s.nextAccount++
	a := &ledger.Account{ID: t.s.nextAccount, Code: in.Code, Name: in.Name, Type: in.Type}
	t.s.accounts[in.Code] = a
	return *a, nil
}

func (t Tx) CountAccountReferences(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	for _, txn := range t.s.transactions {
		if txn.DebitAccountID == accountID || txn.CreditAccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (t Tx) DeleteAccount(ctx context.Context, accountID int64) error {
	for code, a := range t.s.accounts {
		if a.ID == accountID {
			delete(t.s.accounts, code)
			return nil
		}
	}
	return ledger.ErrAccountNotFound
}

// Linked reports whether (module, ref) has been posted.
func (s *Store) Linked(module string, ref uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.links[module+":"+ref.String()]
	return ok
}
