package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/quantlab/papertrader/internal/domain"
	"github.com/quantlab/papertrader/internal/ledger"
)

// PortfolioService defines the methods the portfolio handler requires from
// the account ledger.
type PortfolioService interface {
	Snapshot(ctx context.Context) (ledger.Snapshot, error)
	Deposit(ctx context.Context, amount decimal.Decimal) (domain.Account, error)
	Withdraw(ctx context.Context, amount decimal.Decimal) (domain.Account, error)
	Reset(ctx context.Context) error
}

// PortfolioHandler serves account and position endpoints.
type PortfolioHandler struct {
	portfolio PortfolioService
	quotes    ledger.Quoter
	logger    *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler. The quoter is used to mark
// open positions to market; it may be nil, in which case derived P&L fields
// are omitted.
func NewPortfolioHandler(portfolio PortfolioService, quotes ledger.Quoter, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolio: portfolio, quotes: quotes, logger: logger}
}

// positionView is an open position marked to market. Price fields are nil
// when no quote was available.
type positionView struct {
	domain.Position
	CurrentPrice     *decimal.Decimal `json:"current_price"`
	MarketValue      *decimal.Decimal `json:"market_value"`
	UnrealizedPnLPct *decimal.Decimal `json:"unrealized_pnl_pct"`
}

// portfolioResponse is the full account view: balances, marked positions,
// recent orders, and portfolio-level P&L versus the initial balance.
type portfolioResponse struct {
	Account      domain.Account   `json:"account"`
	Positions    []positionView   `json:"positions"`
	RecentOrders []domain.Order   `json:"recent_orders"`
	Equity       decimal.Decimal  `json:"equity"`
	TotalPnL     *decimal.Decimal `json:"total_pnl"`
	TotalPnLPct  *decimal.Decimal `json:"total_pnl_pct"`
}

// Snapshot returns account balance, open positions marked to market, recent
// orders, and derived P&L.
// GET /api/portfolio
func (h *PortfolioHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.portfolio.Snapshot(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: portfolio snapshot failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load portfolio")
		return
	}

	resp := portfolioResponse{
		Account:      snap.Account,
		Positions:    make([]positionView, 0, len(snap.Positions)),
		RecentOrders: snap.RecentOrders,
		Equity:       snap.Account.CashBalance,
	}
	if resp.RecentOrders == nil {
		resp.RecentOrders = []domain.Order{}
	}

	allMarked := true
	for _, pos := range snap.Positions {
		view := positionView{Position: pos}
		if h.quotes != nil {
			if q, qerr := h.quotes.Quote(r.Context(), pos.Symbol); qerr == nil {
				price := q.Price
				value := pos.MarketValue(price)
				pnl := pos.UnrealizedPnLPct(price)
				view.CurrentPrice = &price
				view.MarketValue = &value
				view.UnrealizedPnLPct = &pnl
				resp.Equity = resp.Equity.Add(value)
			} else {
				allMarked = false
			}
		} else {
			allMarked = false
		}
		resp.Positions = append(resp.Positions, view)
	}

	// Portfolio P&L is only meaningful when every position got a price.
	if allMarked && snap.Account.InitialBalance.Sign() > 0 {
		pnl := resp.Equity.Sub(snap.Account.InitialBalance)
		pct := pnl.Div(snap.Account.InitialBalance).Mul(decimal.NewFromInt(100))
		resp.TotalPnL = &pnl
		resp.TotalPnLPct = &pct
	}

	writeJSON(w, http.StatusOK, resp)
}

// Reset restores the starting balance, deletes all positions and order
// history, and cancels resting limit orders.
// POST /api/portfolio/reset
func (h *PortfolioHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.portfolio.Reset(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: portfolio reset failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to reset portfolio")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// cashRequest is a deposit or withdrawal.
type cashRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Action string          `json:"action"` // "deposit" or "withdraw"
}

// AdjustCash deposits to or withdraws from the paper account.
// POST /api/portfolio/cash
func (h *PortfolioHandler) AdjustCash(w http.ResponseWriter, r *http.Request) {
	var req cashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var (
		account domain.Account
		err     error
	)
	switch req.Action {
	case "deposit":
		account, err = h.portfolio.Deposit(r.Context(), req.Amount)
	case "withdraw":
		account, err = h.portfolio.Withdraw(r.Context(), req.Amount)
	default:
		writeError(w, http.StatusBadRequest, `action must be "deposit" or "withdraw"`)
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidOrder):
			writeError(w, http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
		default:
			h.logger.ErrorContext(r.Context(), "handler: cash adjustment failed",
				slog.String("action", req.Action),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to adjust cash")
		}
		return
	}
	writeJSON(w, http.StatusOK, account)
}
