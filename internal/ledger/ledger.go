// Package ledger is the paper account's single write path. Every
// balance-mutating operation, whether it originates from an API request, an
// agent cycle, or the limit order matcher, funnels through one Ledger and is
// serialized by its mutex on top of the store's own transactional guarantees.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantlab/papertrader/internal/domain"
)

// DefaultStartingCash is the balance a fresh or reset account holds.
var DefaultStartingCash = decimal.NewFromInt(100_000)

// Quoter supplies the market price used to fill market orders.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
}

// Snapshot is the read view returned to the portfolio surface.
type Snapshot struct {
	Account      domain.Account
	Positions    []domain.Position
	RecentOrders []domain.Order
}

type Ledger struct {
	mu           sync.Mutex
	store        domain.LedgerStore
	limits       domain.LimitOrderStore
	quotes       Quoter
	bus          domain.EventBus
	startingCash decimal.Decimal
	logger       *slog.Logger
}

func New(store domain.LedgerStore, limits domain.LimitOrderStore, quotes Quoter, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:        store,
		limits:       limits,
		quotes:       quotes,
		startingCash: DefaultStartingCash,
		logger:       logger.With(slog.String("component", "ledger")),
	}
}

// SetBus attaches an event bus; executed orders are published on the orders
// channel. Publishing is best effort and never fails the trade.
func (l *Ledger) SetBus(bus domain.EventBus) { l.bus = bus }

// Snapshot returns account, positions and the most recent orders.
func (l *Ledger) Snapshot(ctx context.Context) (Snapshot, error) {
	account, err := l.store.Account(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	positions, err := l.store.Positions(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	orders, err := l.store.ListOrders(ctx, domain.ListOpts{Limit: 50})
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Account: account, Positions: positions, RecentOrders: orders}, nil
}

func (l *Ledger) Position(ctx context.Context, symbol string) (domain.Position, error) {
	return l.store.Position(ctx, strings.ToUpper(symbol))
}

func (l *Ledger) ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	return l.store.ListOrders(ctx, opts)
}

// ExecuteMarket fills a market order at the current quote.
func (l *Ledger) ExecuteMarket(ctx context.Context, side domain.OrderSide, symbol string, quantity decimal.Decimal) (domain.Order, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := validateOrder(side, symbol, quantity); err != nil {
		return domain.Order{}, err
	}
	q, err := l.quotes.Quote(ctx, symbol)
	if err != nil {
		return domain.Order{}, fmt.Errorf("ledger: quote %s: %w", symbol, err)
	}
	return l.ExecuteAt(ctx, side, symbol, quantity, q.Price)
}

// ExecuteAt fills an order at an explicit price. The limit order matcher uses
// this with the market price it observed.
func (l *Ledger) ExecuteAt(ctx context.Context, side domain.OrderSide, symbol string, quantity, price decimal.Decimal) (domain.Order, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := validateOrder(side, symbol, quantity); err != nil {
		return domain.Order{}, err
	}
	if price.Sign() <= 0 {
		return domain.Order{}, fmt.Errorf("%w: price must be positive", domain.ErrInvalidOrder)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	order, err := l.store.ExecuteOrder(ctx, side, symbol, quantity, price)
	if err != nil {
		return domain.Order{}, err
	}
	l.logger.Info("order executed",
		slog.String("order_id", order.ID),
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.String("quantity", quantity.String()),
		slog.String("price", price.String()))

	if l.bus != nil {
		if err := l.bus.Publish(ctx, domain.ChannelOrders, order); err != nil {
			l.logger.Warn("order event publish failed", slog.String("error", err.Error()))
		}
	}
	return order, nil
}

// PlaceLimit creates a resting limit order. It does not reserve cash or
// shares; preconditions are re-checked at fill time.
func (l *Ledger) PlaceLimit(ctx context.Context, side domain.OrderSide, symbol string, quantity, limitPrice decimal.Decimal) (domain.LimitOrder, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := validateOrder(side, symbol, quantity); err != nil {
		return domain.LimitOrder{}, err
	}
	if limitPrice.Sign() <= 0 {
		return domain.LimitOrder{}, fmt.Errorf("%w: limit price must be positive", domain.ErrInvalidOrder)
	}
	order := domain.LimitOrder{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		LimitPrice: limitPrice,
		Status:     domain.LimitOrderPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := l.limits.Create(ctx, order); err != nil {
		return domain.LimitOrder{}, err
	}
	l.logger.Info("limit order placed",
		slog.String("limit_order_id", order.ID),
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.String("limit_price", limitPrice.String()))
	return order, nil
}

func (l *Ledger) CancelLimit(ctx context.Context, id string) error {
	if err := l.limits.Cancel(ctx, id); err != nil {
		return err
	}
	l.logger.Info("limit order cancelled", slog.String("limit_order_id", id))
	return nil
}

func (l *Ledger) ListLimitOrders(ctx context.Context, opts domain.ListOpts) ([]domain.LimitOrder, error) {
	return l.limits.List(ctx, opts)
}

// Deposit credits the cash balance.
func (l *Ledger) Deposit(ctx context.Context, amount decimal.Decimal) (domain.Account, error) {
	if amount.Sign() <= 0 {
		return domain.Account{}, fmt.Errorf("%w: deposit amount must be positive", domain.ErrInvalidOrder)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.AdjustCash(ctx, amount)
}

// Withdraw debits the cash balance, rejecting overdrafts.
func (l *Ledger) Withdraw(ctx context.Context, amount decimal.Decimal) (domain.Account, error) {
	if amount.Sign() <= 0 {
		return domain.Account{}, fmt.Errorf("%w: withdrawal amount must be positive", domain.ErrInvalidOrder)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.AdjustCash(ctx, amount.Neg())
}

// Reset restores the account to its starting cash, wiping positions and order
// history. Resting limit orders are cancelled first so a later matcher sweep
// cannot fill against the pre-reset book.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cancelled, err := l.limits.CancelAllPending(ctx)
	if err != nil {
		return err
	}
	if err := l.store.Reset(ctx, l.startingCash); err != nil {
		return err
	}
	l.logger.Info("account reset",
		slog.String("starting_cash", l.startingCash.String()),
		slog.Int64("limit_orders_cancelled", cancelled))
	return nil
}

func validateOrder(side domain.OrderSide, symbol string, quantity decimal.Decimal) error {
	if !side.Valid() {
		return fmt.Errorf("%w: unknown side %q", domain.ErrInvalidOrder, side)
	}
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", domain.ErrInvalidOrder)
	}
	if quantity.Sign() <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidOrder)
	}
	return nil
}
