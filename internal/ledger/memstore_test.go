package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantlab/papertrader/internal/domain"
)

// memLedgerStore is an in-memory domain.LedgerStore with the same semantics
// as the Postgres implementation, for exercising the service and matcher
// without a database.
type memLedgerStore struct {
	mu        sync.Mutex
	account   domain.Account
	positions map[string]domain.Position
	orders    []domain.Order
}

func newMemLedgerStore(startingCash decimal.Decimal) *memLedgerStore {
	return &memLedgerStore{
		account:   domain.Account{CashBalance: startingCash, InitialBalance: startingCash},
		positions: make(map[string]domain.Position),
	}
}

func (s *memLedgerStore) Account(ctx context.Context) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account, nil
}

func (s *memLedgerStore) Positions(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *memLedgerStore) Position(ctx context.Context, symbol string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[symbol]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memLedgerStore) ExecuteOrder(ctx context.Context, side domain.OrderSide, symbol string, quantity, price decimal.Decimal) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := quantity.Mul(price)
	switch side {
	case domain.OrderSideBuy:
		if total.GreaterThan(s.account.CashBalance) {
			return domain.Order{}, fmt.Errorf("buy %s: %w", symbol, domain.ErrInsufficientFunds)
		}
		s.account.CashBalance = s.account.CashBalance.Sub(total)
		s.positions[symbol] = s.positions[symbol].ApplyBuy(quantity, price)
		p := s.positions[symbol]
		p.Symbol = symbol
		s.positions[symbol] = p
	case domain.OrderSideSell:
		p, ok := s.positions[symbol]
		if !ok || quantity.GreaterThan(p.Quantity) {
			return domain.Order{}, fmt.Errorf("sell %s: %w", symbol, domain.ErrInsufficientShares)
		}
		s.account.CashBalance = s.account.CashBalance.Add(total)
		p = p.ApplySell(quantity)
		if p.Quantity.IsZero() {
			delete(s.positions, symbol)
		} else {
			s.positions[symbol] = p
		}
	}

	order := domain.Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Total:     total,
		CreatedAt: time.Now().UTC(),
	}
	s.orders = append(s.orders, order)
	return order, nil
}

func (s *memLedgerStore) AdjustCash(ctx context.Context, delta decimal.Decimal) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.account.CashBalance.Add(delta)
	if next.Sign() < 0 {
		return domain.Account{}, domain.ErrInsufficientFunds
	}
	s.account.CashBalance = next
	return s.account, nil
}

func (s *memLedgerStore) Reset(ctx context.Context, startingCash decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = domain.Account{CashBalance: startingCash, InitialBalance: startingCash}
	s.positions = make(map[string]domain.Position)
	s.orders = nil
	return nil
}

func (s *memLedgerStore) ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if opts.Since != nil && o.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !o.CreatedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, o)
	}
	// Newest first, like the real store.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// memLimitOrderStore is an in-memory domain.LimitOrderStore.
type memLimitOrderStore struct {
	mu     sync.Mutex
	orders map[string]domain.LimitOrder
}

func newMemLimitOrderStore() *memLimitOrderStore {
	return &memLimitOrderStore{orders: make(map[string]domain.LimitOrder)}
}

func (s *memLimitOrderStore) Create(ctx context.Context, order domain.LimitOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.orders[order.ID] = order
	return nil
}

func (s *memLimitOrderStore) GetByID(ctx context.Context, id string) (domain.LimitOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.LimitOrder{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *memLimitOrderStore) ListPending(ctx context.Context) ([]domain.LimitOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LimitOrder
	for _, o := range s.orders {
		if o.Status == domain.LimitOrderPending {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memLimitOrderStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.LimitOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LimitOrder, 0, len(s.orders))
	for _, o := range s.orders {
		if opts.Since != nil && o.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !o.CreatedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Status == domain.LimitOrderPending) != (out[j].Status == domain.LimitOrderPending) {
			return out[i].Status == domain.LimitOrderPending
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *memLimitOrderStore) Claim(ctx context.Context, id string) error {
	return s.resolve(id, domain.LimitOrderFilled, nil)
}

func (s *memLimitOrderStore) AttachFill(ctx context.Context, id, fillOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != domain.LimitOrderFilled || o.FillOrderID != nil {
		return domain.ErrNotFound
	}
	o.FillOrderID = &fillOrderID
	s.orders[id] = o
	return nil
}

func (s *memLimitOrderStore) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != domain.LimitOrderFilled || o.FillOrderID != nil {
		return domain.ErrNotFound
	}
	o.Status = domain.LimitOrderPending
	o.ResolvedAt = nil
	s.orders[id] = o
	return nil
}

func (s *memLimitOrderStore) Cancel(ctx context.Context, id string) error {
	return s.resolve(id, domain.LimitOrderCancelled, nil)
}

func (s *memLimitOrderStore) resolve(id string, status domain.LimitOrderStatus, fillOrderID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != domain.LimitOrderPending {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	o.Status = status
	o.FillOrderID = fillOrderID
	o.ResolvedAt = &now
	s.orders[id] = o
	return nil
}

func (s *memLimitOrderStore) CancelAllPending(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for id, o := range s.orders {
		if o.Status == domain.LimitOrderPending {
			o.Status = domain.LimitOrderCancelled
			o.ResolvedAt = &now
			s.orders[id] = o
			n++
		}
	}
	return n, nil
}

// staticQuoter serves fixed prices per symbol.
type staticQuoter struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func newStaticQuoter() *staticQuoter {
	return &staticQuoter{prices: make(map[string]decimal.Decimal)}
}

func (q *staticQuoter) set(symbol string, price float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prices[symbol] = decimal.NewFromFloat(price)
}

func (q *staticQuoter) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.prices[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrProviderUnavailable
	}
	return domain.Quote{Symbol: symbol, Price: p, SpreadPct: -1, FetchedAt: time.Now().UTC()}, nil
}
