package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantlab/papertrader/internal/domain"
)

func TestBuyLimitFillsAtMarketPrice(t *testing.T) {
	ctx := context.Background()
	l, store, limits, quotes := newTestLedger()
	m := NewMatcher(l, limits, quotes, discardLogger())

	quotes.set("AAPL", 150)
	lo, err := l.PlaceLimit(ctx, domain.OrderSideBuy, "AAPL", decimal.NewFromInt(5), decimal.NewFromInt(140))
	if err != nil {
		t.Fatalf("place limit: %v", err)
	}

	// Market above the limit: stays pending.
	fills, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(fills) != 0 {
		t.Fatalf("sweep above limit filled %d orders", len(fills))
	}

	// Market drops through the limit: fills at 138, the market price, not 140.
	quotes.set("AAPL", 138)
	fills, err = m.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("got %d fills, want 1", len(fills))
	}
	if got, want := fills[0].Order.Price.String(), "138"; got != want {
		t.Errorf("fill price = %s, want %s", got, want)
	}

	account, _ := store.Account(ctx)
	if got, want := account.CashBalance.String(), "99310"; got != want {
		t.Errorf("cash after fill = %s, want %s", got, want)
	}
	resolved, _ := limits.GetByID(ctx, lo.ID)
	if resolved.Status != domain.LimitOrderFilled || resolved.FillOrderID == nil {
		t.Errorf("limit order not resolved: %+v", resolved)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l, store, limits, quotes := newTestLedger()
	m := NewMatcher(l, limits, quotes, discardLogger())

	quotes.set("AAPL", 138)
	if _, err := l.PlaceLimit(ctx, domain.OrderSideBuy, "AAPL", decimal.NewFromInt(5), decimal.NewFromInt(140)); err != nil {
		t.Fatalf("place limit: %v", err)
	}

	first, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	second, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(first) != 1 || len(second) != 0 {
		t.Fatalf("fills = %d then %d, want 1 then 0", len(first), len(second))
	}
	if len(store.orders) != 1 {
		t.Errorf("executed orders = %d, want exactly 1", len(store.orders))
	}
}

// barrierQuoter holds every caller until release is closed, forcing
// concurrent sweeps to observe the same pending book before either resolves
// an order.
type barrierQuoter struct {
	inner   *staticQuoter
	arrived chan struct{}
	release chan struct{}
}

func (q *barrierQuoter) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	q.arrived <- struct{}{}
	<-q.release
	return q.inner.Quote(ctx, symbol)
}

func TestConcurrentSweepsFillOnce(t *testing.T) {
	ctx := context.Background()
	l, store, limits, quotes := newTestLedger()
	quotes.set("AAPL", 138)
	bq := &barrierQuoter{
		inner:   quotes,
		arrived: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	m := NewMatcher(l, limits, bq, discardLogger())

	lo, err := l.PlaceLimit(ctx, domain.OrderSideBuy, "AAPL", decimal.NewFromInt(5), decimal.NewFromInt(140))
	if err != nil {
		t.Fatalf("place limit: %v", err)
	}

	// The ticker loop and an agent cycle sweep the same book at once.
	results := make(chan int, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fills, err := m.Sweep(ctx)
			if err != nil {
				t.Errorf("sweep: %v", err)
			}
			results <- len(fills)
		}()
	}
	<-bq.arrived
	<-bq.arrived
	close(bq.release)
	wg.Wait()
	close(results)

	total := 0
	for n := range results {
		total += n
	}
	if total != 1 {
		t.Fatalf("fills across concurrent sweeps = %d, want 1", total)
	}
	if len(store.orders) != 1 {
		t.Errorf("executed orders = %d, want exactly 1", len(store.orders))
	}
	account, _ := store.Account(ctx)
	if got, want := account.CashBalance.String(), "99310"; got != want {
		t.Errorf("cash after concurrent sweeps = %s, want %s", got, want)
	}
	resolved, _ := limits.GetByID(ctx, lo.ID)
	if resolved.Status != domain.LimitOrderFilled || resolved.FillOrderID == nil {
		t.Errorf("limit order not resolved exactly once: %+v", resolved)
	}
}

func TestSellLimitFillsAtOrAboveLimit(t *testing.T) {
	ctx := context.Background()
	l, _, limits, quotes := newTestLedger()
	m := NewMatcher(l, limits, quotes, discardLogger())

	quotes.set("MSFT", 300)
	if _, err := l.ExecuteMarket(ctx, domain.OrderSideBuy, "MSFT", decimal.NewFromInt(4)); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	if _, err := l.PlaceLimit(ctx, domain.OrderSideSell, "MSFT", decimal.NewFromInt(4), decimal.NewFromInt(320)); err != nil {
		t.Fatalf("place limit: %v", err)
	}

	quotes.set("MSFT", 325)
	fills, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("got %d fills, want 1", len(fills))
	}
	if got, want := fills[0].Order.Price.String(), "325"; got != want {
		t.Errorf("fill price = %s, want %s", got, want)
	}
}

func TestCrossedButUnfillableStaysPending(t *testing.T) {
	ctx := context.Background()
	l, _, limits, quotes := newTestLedger()
	m := NewMatcher(l, limits, quotes, discardLogger())

	// Sell limit for shares the account no longer holds.
	quotes.set("MSFT", 300)
	if _, err := l.ExecuteMarket(ctx, domain.OrderSideBuy, "MSFT", decimal.NewFromInt(4)); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	lo, err := l.PlaceLimit(ctx, domain.OrderSideSell, "MSFT", decimal.NewFromInt(4), decimal.NewFromInt(310))
	if err != nil {
		t.Fatalf("place limit: %v", err)
	}
	// Manual sell empties the position before the limit crosses.
	if _, err := l.ExecuteMarket(ctx, domain.OrderSideSell, "MSFT", decimal.NewFromInt(4)); err != nil {
		t.Fatalf("manual sell: %v", err)
	}

	quotes.set("MSFT", 315)
	fills, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(fills) != 0 {
		t.Fatalf("unfillable order produced %d fills", len(fills))
	}
	got, _ := limits.GetByID(ctx, lo.ID)
	if got.Status != domain.LimitOrderPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
}

func TestMissingQuoteSkipsOrder(t *testing.T) {
	ctx := context.Background()
	l, _, limits, quotes := newTestLedger()
	m := NewMatcher(l, limits, quotes, discardLogger())

	lo, err := l.PlaceLimit(ctx, domain.OrderSideBuy, "NVDA", decimal.NewFromInt(1), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("place limit: %v", err)
	}
	fills, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(fills) != 0 {
		t.Fatalf("fills = %d, want 0", len(fills))
	}
	got, _ := limits.GetByID(ctx, lo.ID)
	if got.Status != domain.LimitOrderPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
}
