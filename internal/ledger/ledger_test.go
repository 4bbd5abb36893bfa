package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantlab/papertrader/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger() (*Ledger, *memLedgerStore, *memLimitOrderStore, *staticQuoter) {
	store := newMemLedgerStore(DefaultStartingCash)
	limits := newMemLimitOrderStore()
	quotes := newStaticQuoter()
	return New(store, limits, quotes, discardLogger()), store, limits, quotes
}

func TestBuySellRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, _, _, quotes := newTestLedger()
	quotes.set("AAPL", 150)

	if _, err := l.ExecuteMarket(ctx, domain.OrderSideBuy, "AAPL", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	snap, err := l.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got, want := snap.Account.CashBalance.String(), "98500"; got != want {
		t.Errorf("cash after buy = %s, want %s", got, want)
	}
	if len(snap.Positions) != 1 || snap.Positions[0].Quantity.String() != "10" || snap.Positions[0].AverageCost.String() != "150" {
		t.Fatalf("position after buy = %+v", snap.Positions)
	}

	quotes.set("AAPL", 160)
	if _, err := l.ExecuteMarket(ctx, domain.OrderSideSell, "AAPL", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("sell: %v", err)
	}
	snap, err = l.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got, want := snap.Account.CashBalance.String(), "100100"; got != want {
		t.Errorf("cash after sell = %s, want %s", got, want)
	}
	if len(snap.Positions) != 0 {
		t.Errorf("position not removed after full sell: %+v", snap.Positions)
	}
	if len(snap.RecentOrders) != 2 {
		t.Errorf("order history has %d entries, want 2", len(snap.RecentOrders))
	}
}

func TestBuyRejectedOnInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l, store, _, quotes := newTestLedger()
	quotes.set("AAPL", 150)

	_, err := l.ExecuteMarket(ctx, domain.OrderSideBuy, "AAPL", decimal.NewFromInt(1000))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	account, _ := store.Account(ctx)
	if !account.CashBalance.Equal(DefaultStartingCash) {
		t.Errorf("cash mutated by rejected buy: %s", account.CashBalance)
	}
	if len(store.orders) != 0 {
		t.Error("rejected buy appended an order record")
	}
}

func TestSellRejectedWithoutShares(t *testing.T) {
	ctx := context.Background()
	l, _, _, quotes := newTestLedger()
	quotes.set("AAPL", 150)

	_, err := l.ExecuteMarket(ctx, domain.OrderSideSell, "AAPL", decimal.NewFromInt(1))
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("err = %v, want ErrInsufficientShares", err)
	}
}

func TestOrderValidation(t *testing.T) {
	ctx := context.Background()
	l, _, _, quotes := newTestLedger()
	quotes.set("AAPL", 150)

	cases := []struct {
		name string
		side domain.OrderSide
		sym  string
		qty  decimal.Decimal
	}{
		{"bad side", "short", "AAPL", decimal.NewFromInt(1)},
		{"empty symbol", domain.OrderSideBuy, "", decimal.NewFromInt(1)},
		{"zero quantity", domain.OrderSideBuy, "AAPL", decimal.Zero},
		{"negative quantity", domain.OrderSideBuy, "AAPL", decimal.NewFromInt(-5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := l.ExecuteMarket(ctx, tc.side, tc.sym, tc.qty); !errors.Is(err, domain.ErrInvalidOrder) {
				t.Errorf("err = %v, want ErrInvalidOrder", err)
			}
		})
	}
}

func TestDepositWithdraw(t *testing.T) {
	ctx := context.Background()
	l, _, _, _ := newTestLedger()

	account, err := l.Deposit(ctx, decimal.NewFromInt(500))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got, want := account.CashBalance.String(), "100500"; got != want {
		t.Errorf("cash after deposit = %s, want %s", got, want)
	}

	if _, err := l.Withdraw(ctx, decimal.NewFromInt(200_000)); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("overdraft err = %v, want ErrInsufficientFunds", err)
	}
	if _, err := l.Withdraw(ctx, decimal.NewFromInt(-5)); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("negative withdrawal err = %v, want ErrInvalidOrder", err)
	}
}

func TestResetCancelsPendingLimits(t *testing.T) {
	ctx := context.Background()
	l, store, limits, quotes := newTestLedger()
	quotes.set("AAPL", 150)

	if _, err := l.ExecuteMarket(ctx, domain.OrderSideBuy, "AAPL", decimal.NewFromInt(5)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	lo, err := l.PlaceLimit(ctx, domain.OrderSideBuy, "AAPL", decimal.NewFromInt(5), decimal.NewFromInt(140))
	if err != nil {
		t.Fatalf("place limit: %v", err)
	}

	if err := l.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	account, _ := store.Account(ctx)
	if !account.CashBalance.Equal(DefaultStartingCash) {
		t.Errorf("cash after reset = %s", account.CashBalance)
	}
	got, err := limits.GetByID(ctx, lo.ID)
	if err != nil {
		t.Fatalf("get limit: %v", err)
	}
	if got.Status != domain.LimitOrderCancelled {
		t.Errorf("limit order status after reset = %s, want cancelled", got.Status)
	}

	// A sweep after reset must not resurrect the cancelled order even though
	// the price now crosses the limit.
	m := NewMatcher(l, limits, quotes, discardLogger())
	quotes.set("AAPL", 130)
	fills, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(fills) != 0 {
		t.Errorf("sweep after reset produced %d fills", len(fills))
	}
}

func TestSymbolNormalization(t *testing.T) {
	ctx := context.Background()
	l, store, _, quotes := newTestLedger()
	quotes.set("AAPL", 150)

	if _, err := l.ExecuteMarket(ctx, domain.OrderSideBuy, " aapl ", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := store.Position(ctx, "AAPL"); err != nil {
		t.Errorf("position not stored under normalized symbol: %v", err)
	}
}

func TestListOrdersHonorsTimeWindow(t *testing.T) {
	ctx := context.Background()
	l, store, _, _ := newTestLedger()
	now := time.Now().UTC()

	mk := func(id string, age time.Duration) domain.Order {
		return domain.Order{
			ID:        id,
			Symbol:    "AAPL",
			Side:      domain.OrderSideBuy,
			Quantity:  decimal.NewFromInt(1),
			Price:     decimal.NewFromInt(100),
			Total:     decimal.NewFromInt(100),
			CreatedAt: now.Add(-age),
		}
	}
	store.orders = append(store.orders,
		mk("stale", 48*time.Hour),
		mk("inside", 12*time.Hour),
		mk("fresh", 10*time.Minute),
	)

	since := now.Add(-24 * time.Hour)
	until := now.Add(-time.Hour)
	got, err := l.ListOrders(ctx, domain.ListOpts{Limit: 10, Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(got) != 1 || got[0].ID != "inside" {
		t.Fatalf("orders in window = %+v, want only the one inside [since, until)", got)
	}

	// Since alone keeps the upper end open.
	got, err = l.ListOrders(ctx, domain.ListOpts{Limit: 10, Since: &since})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("orders since cutoff = %d, want 2", len(got))
	}
}
