package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantlab/papertrader/internal/domain"
	"github.com/quantlab/papertrader/internal/ensemble"
	"github.com/quantlab/papertrader/internal/ledger"
	"github.com/quantlab/papertrader/internal/marketdata"
	"github.com/quantlab/papertrader/internal/signal"
)

type harness struct {
	runner    *Runner
	store     *fakeLedgerStore
	limits    *fakeLimitOrderStore
	settings  *fakeSettingsStore
	reasoning *fakeReasoningStore
	audit     *fakeHistoryStore
	watchlist *fakeWatchlist
	quotes    *fakeQuoter
}

func newHarness(t *testing.T, cfg Config, providers []signal.Provider, settings domain.AgentSettings) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := newFakeLedgerStore(decimal.NewFromInt(100_000))
	limits := newFakeLimitOrderStore()
	quotes := newFakeQuoter()
	led := ledger.New(store, limits, quotes, logger)
	matcher := ledger.NewMatcher(led, limits, quotes, logger)

	set := &fakeSettingsStore{s: settings}
	reasoning := &fakeReasoningStore{}
	audit := &fakeHistoryStore{}
	watch := &fakeWatchlist{}

	runner := New(cfg, Deps{
		Settings:  set,
		Ledger:    led,
		Matcher:   matcher,
		Orch:      ensemble.New(ensemble.DefaultConfig()),
		Quotes:    quotes,
		History:   fakeHistory{},
		Providers: providers,
		Scanner:   marketdata.NewScanner(fakeHistory{}, logger),
		Reasoning: reasoning,
		Audit:     audit,
		Watchlist: watch,
		Logger:    logger,
	})
	return &harness{
		runner: runner, store: store, limits: limits, settings: set,
		reasoning: reasoning, audit: audit, watchlist: watch, quotes: quotes,
	}
}

func enabledSettings() domain.AgentSettings {
	return domain.AgentSettings{
		Enabled:         true,
		ConfidenceFloor: 0.18,
		Weights:         domain.DefaultWeights(),
	}
}

func TestRunSkipsWhenDisabled(t *testing.T) {
	h := newHarness(t, DefaultConfig(), stubProviders(0.9, 0.9), domain.AgentSettings{Enabled: false})
	err := h.runner.Run(context.Background())
	if !errors.Is(err, domain.ErrAgentDisabled) {
		t.Fatalf("err = %v, want ErrAgentDisabled", err)
	}
	if len(h.reasoning.entries) != 0 {
		t.Errorf("disabled run appended %d reasoning entries", len(h.reasoning.entries))
	}
}

func TestOverlappingRunsCoalesce(t *testing.T) {
	h := newHarness(t, DefaultConfig(), stubProviders(0, 0), enabledSettings())
	h.runner.runMu.Lock()
	defer h.runner.runMu.Unlock()
	if err := h.runner.Run(context.Background()); !errors.Is(err, domain.ErrCycleRunning) {
		t.Fatalf("err = %v, want ErrCycleRunning", err)
	}
}

func TestBullishCycleBuys(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), stubProviders(0.9, 0.9), enabledSettings())
	h.watchlist.Add(ctx, domain.WatchlistItem{Symbol: "AAPL"})
	h.quotes.set("AAPL", 150, 148)

	if err := h.runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	pos, err := h.store.Position(ctx, "AAPL")
	if err != nil {
		t.Fatalf("no position after bullish cycle: %v", err)
	}
	if pos.Quantity.Sign() <= 0 {
		t.Errorf("quantity = %s, want positive", pos.Quantity)
	}

	entries, _ := h.audit.List(ctx, domain.ListOpts{})
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].Action != domain.ActionBuy || !entries[0].Executed || entries[0].OrderID == nil {
		t.Errorf("audit entry = %+v, want executed buy with order id", entries[0])
	}
}

func TestStopLossOverridesBullishDecision(t *testing.T) {
	ctx := context.Background()
	sl := 5.0
	settings := enabledSettings()
	settings.StopLossPct = &sl

	// Providers scream Buy, but the held position is down 6.7%.
	h := newHarness(t, DefaultConfig(), stubProviders(0.9, 0.9), settings)
	h.quotes.set("AAPL", 150, 150)
	if _, err := h.store.ExecuteOrder(ctx, domain.OrderSideBuy, "AAPL", decimal.NewFromInt(10), decimal.NewFromInt(150)); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	h.quotes.set("AAPL", 140, 150)

	if err := h.runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := h.store.Position(ctx, "AAPL"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("position survived stop loss: err = %v", err)
	}
	entries, _ := h.audit.List(ctx, domain.ListOpts{})
	if len(entries) != 1 || entries[0].Action != domain.ActionSell || !entries[0].Executed {
		t.Fatalf("audit = %+v, want one executed sell", entries)
	}
	if !entries[0].GuardrailTriggered {
		t.Errorf("audit entry = %+v, want guardrail_triggered set on a stop loss exit", entries[0])
	}
	if got := h.reasoning.bySteps(domain.StepStopLoss); len(got) != 1 {
		t.Errorf("stop loss reasoning entries = %d, want 1", len(got))
	}
}

func TestVolatileOnlySymbolCapped(t *testing.T) {
	ctx := context.Background()
	settings := enabledSettings()
	settings.IncludeVolatile = true

	cfg := DefaultConfig()
	cfg.VolatileSymbols = []string{"XYZ"}

	h := newHarness(t, cfg, stubProviders(1.0, 1.0), settings)
	h.quotes.set("XYZ", 50, 49)

	if err := h.runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	entries, _ := h.audit.List(ctx, domain.ListOpts{})
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].PositionSize > cfg.VolatileCapPct {
		t.Errorf("position size = %f, above volatile cap %f", entries[0].PositionSize, cfg.VolatileCapPct)
	}
}

func TestProviderFailuresDegradeToHold(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), failingProviders(domain.ErrProviderUnavailable), enabledSettings())
	h.watchlist.Add(ctx, domain.WatchlistItem{Symbol: "AAPL"})
	h.quotes.set("AAPL", 150, 148)

	if err := h.runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	entries, _ := h.audit.List(ctx, domain.ListOpts{})
	if len(entries) != 0 {
		t.Errorf("dead providers still produced %d trades", len(entries))
	}
}

func TestSymbolFailureDoesNotAbortCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), stubProviders(0.9, 0.9), enabledSettings())
	h.watchlist.Add(ctx, domain.WatchlistItem{Symbol: "AAPL"})
	h.watchlist.Add(ctx, domain.WatchlistItem{Symbol: "GHOST"}) // no quote
	h.quotes.set("AAPL", 150, 148)

	if err := h.runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := h.store.Position(ctx, "AAPL"); err != nil {
		t.Errorf("healthy symbol skipped after sibling failure: %v", err)
	}
	if got := h.reasoning.bySteps(domain.StepError); len(got) != 1 {
		t.Errorf("error reasoning entries = %d, want 1", len(got))
	}
}

func TestHeldPositionJoinsUniverse(t *testing.T) {
	ctx := context.Background()
	sl := 5.0
	settings := enabledSettings()
	settings.StopLossPct = &sl

	h := newHarness(t, DefaultConfig(), stubProviders(0, 0), settings)
	// MSFT is held but in no list; its stop loss must still be evaluated.
	if _, err := h.store.ExecuteOrder(ctx, domain.OrderSideBuy, "MSFT", decimal.NewFromInt(5), decimal.NewFromInt(300)); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	h.quotes.set("MSFT", 280, 300)

	if err := h.runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := h.store.Position(ctx, "MSFT"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("held-only symbol skipped, stop loss never fired: err = %v", err)
	}
}

func TestStatusReportsLastRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig(), stubProviders(0, 0), enabledSettings())

	st, err := h.runner.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Running || st.LastRun != nil {
		t.Errorf("fresh status = %+v", st)
	}

	if err := h.runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	st, _ = h.runner.Status(ctx)
	if st.LastRun == nil || time.Since(*st.LastRun) > time.Minute {
		t.Errorf("last run not recorded: %+v", st.LastRun)
	}
}
