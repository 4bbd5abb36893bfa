package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/quantlab/papertrader/internal/domain"
)

// OrderService defines the methods the order handler requires from the
// account ledger.
type OrderService interface {
	ExecuteMarket(ctx context.Context, side domain.OrderSide, symbol string, quantity decimal.Decimal) (domain.Order, error)
	PlaceLimit(ctx context.Context, side domain.OrderSide, symbol string, quantity, limitPrice decimal.Decimal) (domain.LimitOrder, error)
	ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error)
}

// OrderHandler serves order placement and history endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// placeOrderRequest is a manual order submission. Market orders fill
// immediately at the current quote; limit orders rest until the matcher sees
// a crossing price.
type placeOrderRequest struct {
	Symbol     string           `json:"symbol"`
	Side       domain.OrderSide `json:"side"`
	Quantity   decimal.Decimal  `json:"quantity"`
	OrderType  string           `json:"order_type"` // "market" (default) or "limit"
	LimitPrice *decimal.Decimal `json:"limit_price"`
}

// PlaceOrder executes a market order or rests a limit order.
// POST /api/order
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	switch req.OrderType {
	case "", "market":
		order, err := h.orders.ExecuteMarket(r.Context(), req.Side, req.Symbol, req.Quantity)
		if err != nil {
			h.writeOrderError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, order)
	case "limit":
		if req.LimitPrice == nil {
			writeError(w, http.StatusBadRequest, "limit_price is required for limit orders")
			return
		}
		lo, err := h.orders.PlaceLimit(r.Context(), req.Side, req.Symbol, req.Quantity, *req.LimitPrice)
		if err != nil {
			h.writeOrderError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, lo)
	default:
		writeError(w, http.StatusBadRequest, `order_type must be "market" or "limit"`)
	}
}

func (h *OrderHandler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, domain.ErrInsufficientShares):
		writeError(w, http.StatusUnprocessableEntity, "insufficient shares")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusBadGateway, "no quote available for symbol")
	case errors.Is(err, domain.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, "market data provider unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "handler: place order failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to place order")
	}
}

// listOrdersResponse wraps the order history response.
type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// ListOrders returns executed orders, newest first.
// GET /api/orders?limit=50&offset=0&since=...&until=...
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}
