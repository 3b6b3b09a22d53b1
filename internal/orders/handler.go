package orders

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-resort/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-resort/internal/shared"
)

// Handler wires HTTP endpoints for orders and returns.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the orders handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers order and return routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/active", h.listActive)
		r.Get("/stats", h.salesStats)
		r.Get("/{id}", h.get)
		r.Post("/{id}/status", h.transition)
		r.Post("/{id}/returns", h.requestReturn)
	})
	r.Route("/returns", func(r chi.Router) {
		r.Get("/{id}", h.getReturn)
		r.Get("/{id}/history", h.returnHistory)
		r.Post("/{id}/approve-station", h.approveStation)
		r.Post("/{id}/approve-admin", h.approveAdmin)
		r.Post("/{id}/reject", h.reject)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.Decode(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListActive(r.Context(), ActiveFilter{Room: r.URL.Query().Get("room")})
	if err != nil {
		h.fail(w, "list active orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) salesStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.SalesStats(r.Context())
	if err != nil {
		h.fail(w, "sales stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req StatusRequest
	if err := httpx.Decode(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	target := Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	res, err := h.service.TransitionStatus(r.Context(), id, target)
	if err != nil {
		h.fail(w, "transition order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) requestReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ReturnRequest
	if err := httpx.Decode(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.RequestReturn(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, "request return", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.GetReturn(r.Context(), id)
	if err != nil {
		h.fail(w, "get return", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) returnHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	logs, err := h.service.ReturnHistory(r.Context(), id)
	if err != nil {
		h.fail(w, "return history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) approveStation(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "approve return (station)", h.service.ApproveStation)
}

func (h *Handler) approveAdmin(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "approve return (admin)", h.service.ApproveAdmin)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "reject return", h.service.RejectReturn)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, int64, string) (Return, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn("orders request failed", slog.String("op", op), slog.Any("error", err))
	httpx.RespondError(w, err)
}
