package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantlab/papertrader/internal/domain"
)

// LimitOrderService defines the methods the limit order handler requires from
// the account ledger.
type LimitOrderService interface {
	ListLimitOrders(ctx context.Context, opts domain.ListOpts) ([]domain.LimitOrder, error)
	CancelLimit(ctx context.Context, id string) error
}

// LimitOrderHandler serves resting limit order endpoints.
type LimitOrderHandler struct {
	limits LimitOrderService
	logger *slog.Logger
}

// NewLimitOrderHandler creates a LimitOrderHandler.
func NewLimitOrderHandler(limits LimitOrderService, logger *slog.Logger) *LimitOrderHandler {
	return &LimitOrderHandler{limits: limits, logger: logger}
}

// listLimitOrdersResponse wraps the limit order list response.
type listLimitOrdersResponse struct {
	Orders []domain.LimitOrder `json:"orders"`
}

// List returns limit orders, pending first.
// GET /api/limit-orders?limit=50&offset=0
func (h *LimitOrderHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.limits.ListLimitOrders(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list limit orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list limit orders")
		return
	}
	if orders == nil {
		orders = []domain.LimitOrder{}
	}
	writeJSON(w, http.StatusOK, listLimitOrdersResponse{Orders: orders})
}

// Cancel cancels a pending limit order by its ID.
// DELETE /api/limit-orders/{id}
func (h *LimitOrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing limit order id")
		return
	}

	if err := h.limits.CancelLimit(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "limit order not found or not pending")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cancel limit order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel limit order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": id,
	})
}
