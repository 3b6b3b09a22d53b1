package ledger_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-resort/internal/ledger"
	"github.com/odyssey-erp/odyssey-resort/internal/ledger/ledgertest"
)

func newRouter(t *testing.T) (http.Handler, *ledgertest.Store) {
	t.Helper()
	store := ledgertest.NewChartStore()
	svc := ledger.NewService(store, nil, slog.Default())
	r := chi.NewRouter()
	ledger.NewHandler(slog.Default(), svc).MountRoutes(r)
	return r, store
}

func TestHandlerPostTransactionWithIdempotencyKey(t *testing.T) {
	router, store := newRouter(t)
	body := `{"debit_account":"1100","credit_account":"4000","amount":"25.00","description":"walk-in"}`

	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/ledger/transactions", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "abc-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, "attempt %d: %s", i, rec.Body.String())
	}
	require.Len(t, store.Transactions(), 1)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger/accounts/1100/balance", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Code    string `json:"code"`
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "25", resp.Balance)
}

func TestHandlerRejectsSameAccounts(t *testing.T) {
	router, _ := newRouter(t)
	body := `{"debit_account":"1100","credit_account":"1100","amount":"5"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ledger/transactions", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerUnknownAccountBalance(t *testing.T) {
	router, _ := newRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger/accounts/0001/balance", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
