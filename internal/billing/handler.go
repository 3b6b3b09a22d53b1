package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-resort/internal/shared"
)

// Handler exposes invoice and payment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the billing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/bookings", h.createForBooking)
		r.Post("/passes", h.createForPassSale)
		r.Get("/by-number/{number}", h.getByNumber)
		r.Get("/{id}", h.get)
		r.Post("/{id}/payments", h.recordPayment)
	})
}

type paymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Mode           string          `json:"payment_mode" validate:"max=20"`
	TransactionRef string          `json:"transaction_ref" validate:"max=100"`
}

func (h *Handler) createForBooking(w http.ResponseWriter, r *http.Request) {
	var req BookingInvoiceInput
	if err := httpx.Decode(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.CreateForBooking(r.Context(), req)
	if err != nil {
		h.fail(w, "create booking invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) createForPassSale(w http.ResponseWriter, r *http.Request) {
	var req PassSaleInvoiceInput
	if err := httpx.Decode(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.CreateForPassSale(r.Context(), req)
	if err != nil {
		h.fail(w, "create pass invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) getByNumber(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetInvoiceByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.fail(w, "get invoice by number", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if err := httpx.Decode(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.RecordPayment(r.Context(), PaymentInput{
		InvoiceID:      id,
		Amount:         req.Amount,
		Mode:           req.Mode,
		TransactionRef: req.TransactionRef,
		Actor:          shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn("billing request failed", slog.String("op", op), slog.Any("error", err))
	httpx.RespondError(w, err)
}
