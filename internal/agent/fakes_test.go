package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantlab/papertrader/internal/domain"
	"github.com/quantlab/papertrader/internal/signal"
)

// fakeLedgerStore implements domain.LedgerStore in memory with the same
// rejection semantics as the Postgres store.
type fakeLedgerStore struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]domain.Position
	orders    []domain.Order
}

func newFakeLedgerStore(cash decimal.Decimal) *fakeLedgerStore {
	return &fakeLedgerStore{cash: cash, positions: make(map[string]domain.Position)}
}

func (s *fakeLedgerStore) Account(ctx context.Context) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Account{CashBalance: s.cash, InitialBalance: s.cash}, nil
}

func (s *fakeLedgerStore) Positions(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeLedgerStore) Position(ctx context.Context, symbol string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[symbol]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *fakeLedgerStore) ExecuteOrder(ctx context.Context, side domain.OrderSide, symbol string, quantity, price decimal.Decimal) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := quantity.Mul(price)
	switch side {
	case domain.OrderSideBuy:
		if total.GreaterThan(s.cash) {
			return domain.Order{}, fmt.Errorf("buy %s: %w", symbol, domain.ErrInsufficientFunds)
		}
		s.cash = s.cash.Sub(total)
		p := s.positions[symbol].ApplyBuy(quantity, price)
		p.Symbol = symbol
		s.positions[symbol] = p
	case domain.OrderSideSell:
		p, ok := s.positions[symbol]
		if !ok || quantity.GreaterThan(p.Quantity) {
			return domain.Order{}, fmt.Errorf("sell %s: %w", symbol, domain.ErrInsufficientShares)
		}
		s.cash = s.cash.Add(total)
		p = p.ApplySell(quantity)
		if p.Quantity.IsZero() {
			delete(s.positions, symbol)
		} else {
			s.positions[symbol] = p
		}
	}
	order := domain.Order{
		ID: uuid.NewString(), Symbol: symbol, Side: side,
		Quantity: quantity, Price: price, Total: total, CreatedAt: time.Now().UTC(),
	}
	s.orders = append(s.orders, order)
	return order, nil
}

func (s *fakeLedgerStore) AdjustCash(ctx context.Context, delta decimal.Decimal) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cash.Add(delta)
	if next.Sign() < 0 {
		return domain.Account{}, domain.ErrInsufficientFunds
	}
	s.cash = next
	return domain.Account{CashBalance: s.cash}, nil
}

func (s *fakeLedgerStore) Reset(ctx context.Context, startingCash decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cash = startingCash
	s.positions = make(map[string]domain.Position)
	s.orders = nil
	return nil
}

func (s *fakeLedgerStore) ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, len(s.orders))
	copy(out, s.orders)
	return out, nil
}

// fakeLimitOrderStore is an empty-book limit order store.
type fakeLimitOrderStore struct {
	mu     sync.Mutex
	orders map[string]domain.LimitOrder
}

func newFakeLimitOrderStore() *fakeLimitOrderStore {
	return &fakeLimitOrderStore{orders: make(map[string]domain.LimitOrder)}
}

func (s *fakeLimitOrderStore) Create(ctx context.Context, o domain.LimitOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *fakeLimitOrderStore) GetByID(ctx context.Context, id string) (domain.LimitOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.LimitOrder{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *fakeLimitOrderStore) ListPending(ctx context.Context) ([]domain.LimitOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LimitOrder
	for _, o := range s.orders {
		if o.Status == domain.LimitOrderPending {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeLimitOrderStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.LimitOrder, error) {
	return s.ListPending(ctx)
}

func (s *fakeLimitOrderStore) Claim(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != domain.LimitOrderPending {
		return domain.ErrNotFound
	}
	o.Status = domain.LimitOrderFilled
	s.orders[id] = o
	return nil
}

func (s *fakeLimitOrderStore) AttachFill(ctx context.Context, id, fillOrderID string) error {
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

func (s *fakeLimitOrderStore) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != domain.LimitOrderFilled || o.FillOrderID != nil {
		return domain.ErrNotFound
	}
	o.Status = domain.LimitOrderPending
	s.orders[id] = o
	return nil
}

func (s *fakeLimitOrderStore) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != domain.LimitOrderPending {
		return domain.ErrNotFound
	}
	o.Status = domain.LimitOrderCancelled
	s.orders[id] = o
	return nil
}

func (s *fakeLimitOrderStore) CancelAllPending(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, o := range s.orders {
		if o.Status == domain.LimitOrderPending {
			o.Status = domain.LimitOrderCancelled
			s.orders[id] = o
			n++
		}
	}
	return n, nil
}

// fakeSettingsStore holds settings in memory.
type fakeSettingsStore struct {
	mu sync.Mutex
	s  domain.AgentSettings
}

func (f *fakeSettingsStore) Get(ctx context.Context) (domain.AgentSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s, nil
}

func (f *fakeSettingsStore) Update(ctx context.Context, s domain.AgentSettings) (domain.AgentSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s = s
	return s, nil
}

// fakeReasoningStore records appended entries.
type fakeReasoningStore struct {
	mu      sync.Mutex
	entries []domain.ReasoningEntry
}

func (f *fakeReasoningStore) Append(ctx context.Context, e domain.ReasoningEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeReasoningStore) List(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.ReasoningEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ReasoningEntry
	for _, e := range f.entries {
		if symbol == "" || e.Symbol == symbol {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeReasoningStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ReasoningEntry, error) {
	return nil, nil
}

func (f *fakeReasoningStore) Delete(ctx context.Context, ids []string) (int64, error) {
	return 0, nil
}

func (f *fakeReasoningStore) bySteps(step domain.ReasoningStep) []domain.ReasoningEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ReasoningEntry
	for _, e := range f.entries {
		if e.Step == step {
			out = append(out, e)
		}
	}
	return out
}

// fakeHistoryStore records the audit trail.
type fakeHistoryStore struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func (f *fakeHistoryStore) Append(ctx context.Context, e domain.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeHistoryStore) MarkExecuted(ctx context.Context, id, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ID == id {
			f.entries[i].Executed = true
			f.entries[i].OrderID = &orderID
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeHistoryStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.HistoryEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeHistoryStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.HistoryEntry, error) {
	return nil, nil
}

func (f *fakeHistoryStore) Delete(ctx context.Context, ids []string) (int64, error) {
	return 0, nil
}

// fakeWatchlist holds symbols in memory.
type fakeWatchlist struct {
	mu    sync.Mutex
	items []domain.WatchlistItem
}

func (f *fakeWatchlist) Add(ctx context.Context, item domain.WatchlistItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	return nil
}

func (f *fakeWatchlist) Remove(ctx context.Context, symbol string) error { return nil }

func (f *fakeWatchlist) List(ctx context.Context) ([]domain.WatchlistItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.WatchlistItem, len(f.items))
	copy(out, f.items)
	return out, nil
}

// fakeQuoter serves fixed prices.
type fakeQuoter struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func newFakeQuoter() *fakeQuoter {
	return &fakeQuoter{prices: make(map[string]decimal.Decimal)}
}

func (q *fakeQuoter) set(symbol string, price, prev float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prices[symbol] = decimal.NewFromFloat(price)
	q.prices[symbol+"~prev"] = decimal.NewFromFloat(prev)
}

func (q *fakeQuoter) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.prices[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrProviderUnavailable
	}
	return domain.Quote{
		Symbol:        symbol,
		Price:         p,
		PreviousClose: q.prices[symbol+"~prev"],
		SpreadPct:     -1,
		FetchedAt:     time.Now().UTC(),
	}, nil
}

// fakeHistory serves a gently drifting close series for every symbol.
type fakeHistory struct{}

func (fakeHistory) DailyHistory(ctx context.Context, symbol string, days int) ([]domain.Candle, error) {
	bars := make([]domain.Candle, 0, days)
	price := 100.0
	for i := 0; i < days; i++ {
		if i%2 == 0 {
			price *= 1.004
		} else {
			price *= 0.999
		}
		bars = append(bars, domain.Candle{
			Date:  time.Now().UTC().AddDate(0, 0, i-days),
			Close: decimal.NewFromFloat(price),
		})
	}
	return bars, nil
}

// stubProvider returns a fixed signal output (or error) for every symbol.
type stubProvider struct {
	source domain.SignalSource
	out    domain.SignalOutput
	err    error
}

func (s stubProvider) Source() domain.SignalSource        { return s.source }
func (s stubProvider) Refresh(ctx context.Context) error  { return nil }
func (s stubProvider) Score(ctx context.Context, symbol string, in signal.Context) (domain.SignalOutput, error) {
	if s.err != nil {
		return domain.SignalOutput{}, s.err
	}
	return s.out, nil
}

func stubProviders(score, conf float64) []signal.Provider {
	sources := []domain.SignalSource{
		domain.SignalMomentum, domain.SignalMeanReversion, domain.SignalSentiment, domain.SignalMacro,
	}
	out := make([]signal.Provider, 0, len(sources))
	for _, src := range sources {
		out = append(out, stubProvider{source: src, out: domain.SignalOutput{Source: src, Score: score, Confidence: conf}})
	}
	return out
}

func failingProviders(err error) []signal.Provider {
	sources := []domain.SignalSource{
		domain.SignalMomentum, domain.SignalMeanReversion, domain.SignalSentiment, domain.SignalMacro,
	}
	out := make([]signal.Provider, 0, len(sources))
	for _, src := range sources {
		out = append(out, stubProvider{source: src, err: err})
	}
	return out
}
