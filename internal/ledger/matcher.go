package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quantlab/papertrader/internal/domain"
)

// Matcher sweeps resting limit orders against current prices. A buy fills
// when the market trades at or below the limit, a sell at or above; fills
// settle at the observed market price, not the limit price. Sweeps may run
// concurrently (the ticker loop and an agent cycle overlap): each order is
// claimed out of the pending set before its trade is booked, so at most one
// sweeper executes it.
type Matcher struct {
	ledger *Ledger
	limits domain.LimitOrderStore
	quotes Quoter
	logger *slog.Logger
}

// Fill reports one limit order resolved during a sweep.
type Fill struct {
	LimitOrder domain.LimitOrder
	Order      domain.Order
}

func NewMatcher(l *Ledger, limits domain.LimitOrderStore, quotes Quoter, logger *slog.Logger) *Matcher {
	return &Matcher{
		ledger: l,
		limits: limits,
		quotes: quotes,
		logger: logger.With(slog.String("component", "matcher")),
	}
}

// Sweep evaluates every pending limit order once. Orders whose preconditions
// fail (quote unavailable, insufficient cash or shares) stay pending for the
// next sweep; only an unexpected store error is returned.
func (m *Matcher) Sweep(ctx context.Context) ([]Fill, error) {
	pending, err := m.limits.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	var fills []Fill
	for _, lo := range pending {
		if err := ctx.Err(); err != nil {
			return fills, err
		}
		fill, ok, err := m.tryFill(ctx, lo)
		if err != nil {
			return fills, err
		}
		if ok {
			fills = append(fills, fill)
		}
	}
	return fills, nil
}

func (m *Matcher) tryFill(ctx context.Context, lo domain.LimitOrder) (Fill, bool, error) {
	q, err := m.quotes.Quote(ctx, lo.Symbol)
	if err != nil {
		m.logger.Warn("limit order skipped, no quote",
			slog.String("limit_order_id", lo.ID),
			slog.String("symbol", lo.Symbol),
			slog.String("error", err.Error()))
		return Fill{}, false, nil
	}

	if !crosses(lo, q) {
		return Fill{}, false, nil
	}

	// Win the order before booking the trade. A concurrent sweep or a cancel
	// that resolved it between listing and here reports ErrNotFound; the
	// trade never happens, so there is nothing to undo.
	if err := m.limits.Claim(ctx, lo.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Fill{}, false, nil
		}
		return Fill{}, false, err
	}

	order, err := m.ledger.ExecuteAt(ctx, lo.Side, lo.Symbol, lo.Quantity, q.Price)
	if err != nil {
		if relErr := m.limits.Release(ctx, lo.ID); relErr != nil {
			m.logger.Error("release claimed limit order",
				slog.String("limit_order_id", lo.ID),
				slog.String("error", relErr.Error()))
		}
		if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrInsufficientShares) {
			// Preconditions eroded since placement (a manual trade spent the
			// cash or sold the shares). Leave the order resting.
			m.logger.Warn("limit order crossed but not fillable",
				slog.String("limit_order_id", lo.ID),
				slog.String("symbol", lo.Symbol),
				slog.String("error", err.Error()))
			return Fill{}, false, nil
		}
		return Fill{}, false, err
	}

	if err := m.limits.AttachFill(ctx, lo.ID, order.ID); err != nil {
		return Fill{}, false, fmt.Errorf("ledger: attach fill to limit order %s: %w", lo.ID, err)
	}

	m.logger.Info("limit order filled",
		slog.String("limit_order_id", lo.ID),
		slog.String("order_id", order.ID),
		slog.String("symbol", lo.Symbol),
		slog.String("limit_price", lo.LimitPrice.String()),
		slog.String("fill_price", q.Price.String()))

	lo.Status = domain.LimitOrderFilled
	lo.FillOrderID = &order.ID
	return Fill{LimitOrder: lo, Order: order}, true, nil
}

func crosses(lo domain.LimitOrder, q domain.Quote) bool {
	switch lo.Side {
	case domain.OrderSideBuy:
		return q.Price.LessThanOrEqual(lo.LimitPrice)
	case domain.OrderSideSell:
		return q.Price.GreaterThanOrEqual(lo.LimitPrice)
	default:
		return false
	}
}
