package stock

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-resort/internal/shared"
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/stock", func(r chi.Router) {
		r.Post("/items", h.createItem)
		r.Get("/items/{id}", h.getStock)
		r.Post("/transfers", h.transfer)
	})
}

type transferRequest struct {
	ItemID      int64           `json:"item_id" validate:"required,gt=0"`
	From        string          `json:"from_department" validate:"required"`
	To          string          `json:"to_department" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	PerformedBy string          `json:"performed_by" validate:"max=100"`
}

type stockResponse struct {
	Item   Item    `json:"item"`
	Stocks []Stock `json:"stocks"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req ItemInput
	if err := httpx.Decode(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), req)
	if err != nil {
		h.logger.Warn("create stock item", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stocks, err := h.service.GetStock(r.Context(), id)
	if err != nil {
		h.logger.Error("get stock", slog.Int64("item_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if stocks == nil {
		stocks = []Stock{}
	}
	httpx.JSON(w, http.StatusOK, stockResponse{Item: item, Stocks: stocks})
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.Decode(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := ParseDepartment(req.From)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := ParseDepartment(req.To)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	performedBy := req.PerformedBy
	if performedBy == "" {
		performedBy = shared.ActorFromContext(r.Context())
	}
	transfer, err := h.service.Transfer(r.Context(), TransferInput{
		ItemID:      req.ItemID,
		From:        from,
		To:          to,
		Quantity:    req.Quantity,
		PerformedBy: performedBy,
		Reference:   r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Warn("stock transfer", slog.Int64("item_id", req.ItemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}
