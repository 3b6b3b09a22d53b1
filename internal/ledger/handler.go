package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-resort/internal/shared"
)

// SourceManual tags postings submitted through the API with an Idempotency-Key.
const SourceManual = "MANUAL"

// Handler exposes ledger endpoints as JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/accounts", h.listAccounts)
		r.Post("/accounts", h.createAccount)
		r.Delete("/accounts/{code}", h.deleteAccount)
		r.Get("/accounts/{code}/balance", h.getBalance)
		r.Get("/transactions", h.listTransactions)
		r.Post("/transactions", h.postTransaction)
	})
}

type postingRequest struct {
	DebitAccount  string          `json:"debit_account" validate:"required,max=10"`
	CreditAccount string          `json:"credit_account" validate:"required,max=10,nefield=DebitAccount"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"max=255"`
}

type balanceResponse struct {
	Code    string          `json:"code"`
	Balance decimal.Decimal `json:"balance"`
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, "list accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountInput
	if err := httpx.Decode(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), req)
	if err != nil {
		h.fail(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAccount(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.fail(w, "delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	balance, err := h.service.GetBalance(r.Context(), code)
	if err != nil {
		h.fail(w, "get balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{Code: code, Balance: balance})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	filter := TransactionFilter{AccountCode: strings.TrimSpace(r.URL.Query().Get("account"))}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			httpx.RespondError(w, httpx.ErrBadRequest)
			return
		}
		filter.Limit = n
	}
	txns, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.fail(w, "list transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, txns)
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	var req postingRequest
	if err := httpx.Decode(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := PostingInput{
		DebitCode:   req.DebitAccount,
		CreditCode:  req.CreditAccount,
		Amount:      req.Amount,
		Description: req.Description,
		Actor:       shared.ActorFromContext(r.Context()),
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		in.SourceModule = SourceManual
		in.SourceID = uuid.NewSHA1(uuid.Nil, []byte(SourceManual+":"+key))
	}
	txn, err := h.service.Post(r.Context(), in)
	if err != nil {
		h.fail(w, "post transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn("ledger request failed", slog.String("op", op), slog.Any("error", err))
	httpx.RespondError(w, err)
}
