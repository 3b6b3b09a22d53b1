package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-resort/internal/ledger"
	"github.com/odyssey-erp/odyssey-resort/internal/ledger/ledgertest"
	"github.com/odyssey-erp/odyssey-resort/internal/shared"
)

func newService(t *testing.T) (*ledger.Service, *ledgertest.Store) {
	t.Helper()
	store := ledgertest.NewChartStore()
	svc := ledger.NewService(store, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) })
	return svc, store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPostMovesBothBalances(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	txn, err := svc.Post(ctx, ledger.PostingInput{DebitCode: "1100", CreditCode: "4000", Amount: dec("25.00"), Description: "Room charge"})
	require.NoError(t, err)
	require.Equal(t, "1100", txn.DebitCode)
	require.Equal(t, "4000", txn.CreditCode)

	ar, err := svc.GetBalance(ctx, "1100")
	require.NoError(t, err)
	require.Equal(t, "25.00", ar.StringFixed(2))
	revenue, err := svc.GetBalance(ctx, "4000")
	require.NoError(t, err)
	require.Equal(t, "-25.00", revenue.StringFixed(2))
}

func TestPostRejectsInvalidInput(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	cases := []ledger.PostingInput{
		{DebitCode: "1100", CreditCode: "4000", Amount: decimal.Zero},
		{DebitCode: "1100", CreditCode: "4000", Amount: dec("-3")},
		{DebitCode: "1100", CreditCode: "1100", Amount: dec("10")},
		{DebitCode: "", CreditCode: "4000", Amount: dec("10")},
		{DebitCode: "1100", CreditCode: "4000", Amount: dec("10"), SourceModule: "X"},
	}
	for _, in := range cases {
		_, err := svc.Post(ctx, in)
		require.ErrorIs(t, err, ledger.ErrInvalidTransaction)
		require.ErrorIs(t, err, shared.ErrValidation)
	}
	require.Empty(t, store.Transactions())
}

func TestPostUnknownAccountLeavesBalances(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.Post(ctx, ledger.PostingInput{DebitCode: "1100", CreditCode: "9999", Amount: dec("5")})
	require.ErrorIs(t, err, ledger.ErrUnknownAccount)
	require.ErrorIs(t, err, ledger.ErrInvalidTransaction)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.True(t, store.Balance("1100").IsZero())
	require.Empty(t, store.Transactions())
}

func TestPostWithSourceIsExactlyOnce(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	in := ledger.PostingInput{
		DebitCode:    "1000",
		CreditCode:   "1100",
		Amount:       dec("12.50"),
		SourceModule: "BILLING.PAYMENT",
		SourceID:     uuid.NewSHA1(uuid.Nil, []byte("PAYMENT:7")),
	}
	_, err := svc.Post(ctx, in)
	require.NoError(t, err)
	_, err = svc.Post(ctx, in)
	require.ErrorIs(t, err, ledger.ErrSourceAlreadyLinked)

	require.Len(t, store.Transactions(), 1)
	require.Equal(t, "12.50", store.Balance("1000").StringFixed(2))
	require.Equal(t, "-12.50", store.Balance("1100").StringFixed(2))
}

func TestBalancesMatchTransactionLog(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	postings := []ledger.PostingInput{
		{DebitCode: "1100", CreditCode: "4100", Amount: dec("25.00")},
		{DebitCode: "1000", CreditCode: "1100", Amount: dec("15.00")},
		{DebitCode: "1000", CreditCode: "1100", Amount: dec("10.00")},
		{DebitCode: "1100", CreditCode: "4300", Amount: dec("40.333")},
		{DebitCode: "5000", CreditCode: "1200", Amount: dec("7.10")},
	}
	for _, in := range postings {
		_, err := svc.Post(ctx, in)
		require.NoError(t, err)
	}
	drifts, err := svc.VerifyBalances(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)

	recreation, err := svc.GetBalance(ctx, "4300")
	require.NoError(t, err)
	require.Equal(t, "-40.33", recreation.StringFixed(2))
}

func TestListTransactionsFiltersByAccount(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Post(ctx, ledger.PostingInput{DebitCode: "1100", CreditCode: "4100", Amount: dec("8")})
	require.NoError(t, err)
	_, err = svc.Post(ctx, ledger.PostingInput{DebitCode: "1000", CreditCode: "4400", Amount: dec("3")})
	require.NoError(t, err)

	txns, err := svc.ListTransactions(ctx, ledger.TransactionFilter{AccountCode: "4100"})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, "1100", txns[0].DebitCode)

	all, err := svc.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "4400", all[0].CreditCode)

	_, err = svc.ListTransactions(ctx, ledger.TransactionFilter{AccountCode: "0000"})
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestAccountLifecycle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, ledger.AccountInput{Code: " 4500 ", Name: "Spa Revenue", Type: ledger.AccountTypeRevenue})
	require.NoError(t, err)
	require.Equal(t, "4500", account.Code)
	require.True(t, account.Balance.IsZero())

	_, err = svc.CreateAccount(ctx, ledger.AccountInput{Code: "4500", Name: "Again", Type: ledger.AccountTypeRevenue})
	require.ErrorIs(t, err, ledger.ErrDuplicateAccount)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreateAccount(ctx, ledger.AccountInput{Code: "4600", Name: "Odd", Type: "INCOME"})
	require.ErrorIs(t, err, ledger.ErrInvalidAccount)

	_, err = svc.Post(ctx, ledger.PostingInput{DebitCode: "1000", CreditCode: "4500", Amount: dec("60")})
	require.NoError(t, err)
	err = svc.DeleteAccount(ctx, "4500")
	require.ErrorIs(t, err, ledger.ErrAccountInUse)

	require.NoError(t, svc.DeleteAccount(ctx, "5300"))
	_, err = svc.GetAccount(ctx, "5300")
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	require.ErrorIs(t, svc.DeleteAccount(ctx, "5300"), ledger.ErrAccountNotFound)
}

func TestSeedChartIsIdempotent(t *testing.T) {
	store := ledgertest.NewStore()
	svc := ledger.NewService(store, nil, nil)
	ctx := context.Background()

	created, err := svc.SeedChart(ctx)
	require.NoError(t, err)
	require.Equal(t, len(ledger.DefaultChart), created)

	created, err = svc.SeedChart(ctx)
	require.NoError(t, err)
	require.Zero(t, created)

	accounts, err := svc.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, len(ledger.DefaultChart))
	require.Equal(t, "1000", accounts[0].Code)
	require.NoError(t, svc.CheckRoles(ctx, ledger.DefaultRoles()))
}

func TestCheckRolesDetectsGaps(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	roles := ledger.DefaultRoles()
	roles.DiningRevenue = ""
	require.ErrorIs(t, svc.CheckRoles(ctx, roles), ledger.ErrRoleUnmapped)

	roles = ledger.DefaultRoles()
	roles.RecreationRevenue = "4999"
	require.ErrorIs(t, svc.CheckRoles(ctx, roles), ledger.ErrAccountNotFound)

	roles = ledger.DefaultRoles()
	roles.AccountsReceivable = roles.Cash
	require.ErrorIs(t, svc.CheckRoles(ctx, roles), ledger.ErrRoleUnmapped)
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func TestPostRecordsAudit(t *testing.T) {
	audit := &recordingAudit{}
	svc := ledger.NewService(ledgertest.NewChartStore(), audit, nil)
	_, err := svc.Post(context.Background(), ledger.PostingInput{DebitCode: "1100", CreditCode: "4000", Amount: dec("1"), Actor: "front-desk"})
	require.NoError(t, err)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "ledger.post", audit.logs[0].Action)
	require.Equal(t, "front-desk", audit.logs[0].Actor)
	require.False(t, audit.logs[0].At.IsZero())
}
