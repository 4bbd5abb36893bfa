// Package agent contains the cycle scheduler: on a fixed cadence (or an
// explicit trigger) it sweeps resting limit orders, assembles the active
// symbol universe, gathers market context, asks the ensemble for a decision
// per symbol, applies exit rules and risk caps, and issues ledger operations,
// recording a reasoning trail as it goes.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/quantlab/papertrader/internal/domain"
	"github.com/quantlab/papertrader/internal/ensemble"
	"github.com/quantlab/papertrader/internal/ledger"
	"github.com/quantlab/papertrader/internal/marketdata"
	"github.com/quantlab/papertrader/internal/signal"
)

// Notifier pushes cycle summaries to an external channel. Optional.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Config tunes the runner's cadence and risk parameters.
type Config struct {
	Interval        time.Duration
	ProviderTimeout time.Duration
	MaxConcurrent   int
	NormalSymbols   []string
	VolatileSymbols []string
	TopVolatileN    int
	HistoryDays     int
	HeadlineLimit   int
	// VolatileCapPct caps buys of symbols outside the watchlist.
	VolatileCapPct float64
	// DefaultVolatileStopLossPct is assumed when volatile mode is on and no
	// explicit stop loss is configured.
	DefaultVolatileStopLossPct float64
}

func DefaultConfig() Config {
	return Config{
		Interval:                   5 * time.Minute,
		ProviderTimeout:            8 * time.Second,
		MaxConcurrent:              4,
		TopVolatileN:               5,
		HistoryDays:                60,
		HeadlineLimit:              10,
		VolatileCapPct:             0.15,
		DefaultVolatileStopLossPct: 5.0,
	}
}

type Runner struct {
	cfg       Config
	settings  domain.SettingsStore
	ledger    *ledger.Ledger
	matcher   *ledger.Matcher
	orch      *ensemble.Orchestrator
	quotes    ledger.Quoter
	history   domain.HistoryProvider
	headlines domain.HeadlineProvider
	macro     domain.MacroProvider
	providers map[domain.SignalSource]signal.Provider
	scanner   *marketdata.Scanner
	reasoning domain.ReasoningStore
	audit     domain.HistoryStore
	watchlist domain.WatchlistStore
	notifier  Notifier
	bus       domain.EventBus
	logger    *slog.Logger

	runMu   sync.Mutex
	running atomic.Bool
	lastRun atomic.Pointer[time.Time]
}

// Deps bundles the runner's collaborators.
type Deps struct {
	Settings  domain.SettingsStore
	Ledger    *ledger.Ledger
	Matcher   *ledger.Matcher
	Orch      *ensemble.Orchestrator
	Quotes    ledger.Quoter
	History   domain.HistoryProvider
	Headlines domain.HeadlineProvider
	Macro     domain.MacroProvider
	Providers []signal.Provider
	Scanner   *marketdata.Scanner
	Reasoning domain.ReasoningStore
	Audit     domain.HistoryStore
	Watchlist domain.WatchlistStore
	Notifier  Notifier
	Bus       domain.EventBus
	Logger    *slog.Logger
}

func New(cfg Config, deps Deps) *Runner {
	byBucket := make(map[domain.SignalSource]signal.Provider, len(deps.Providers))
	for _, p := range deps.Providers {
		byBucket[p.Source()] = p
	}
	return &Runner{
		cfg:       cfg,
		settings:  deps.Settings,
		ledger:    deps.Ledger,
		matcher:   deps.Matcher,
		orch:      deps.Orch,
		quotes:    deps.Quotes,
		history:   deps.History,
		headlines: deps.Headlines,
		macro:     deps.Macro,
		providers: byBucket,
		scanner:   deps.Scanner,
		reasoning: deps.Reasoning,
		audit:     deps.Audit,
		watchlist: deps.Watchlist,
		notifier:  deps.Notifier,
		bus:       deps.Bus,
		logger:    deps.Logger.With(slog.String("component", "agent")),
	}
}

// Status is the runner's observable state.
type Status struct {
	Running  bool
	LastRun  *time.Time
	Settings domain.AgentSettings
}

func (r *Runner) Status(ctx context.Context) (Status, error) {
	s, err := r.settings.Get(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Running: r.running.Load(), LastRun: r.lastRun.Load(), Settings: s}, nil
}

// Start blocks, running cycles on the configured interval until ctx is done.
// Scheduled triggers that land while a cycle is still running are dropped.
func (r *Runner) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("agent scheduler started", slog.Duration("interval", r.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("agent scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Run(ctx); err != nil {
				switch {
				case errors.Is(err, domain.ErrCycleRunning):
					r.logger.Warn("cycle still running, trigger dropped")
				case errors.Is(err, domain.ErrAgentDisabled):
					r.logger.Debug("agent disabled, cycle skipped")
				default:
					r.logger.Error("cycle failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// Run executes one cycle. A trigger that arrives while another cycle holds
// the run lock returns ErrCycleRunning instead of queueing.
func (r *Runner) Run(ctx context.Context) error {
	if !r.runMu.TryLock() {
		return domain.ErrCycleRunning
	}
	defer r.runMu.Unlock()

	r.running.Store(true)
	defer r.running.Store(false)

	started := time.Now().UTC()
	defer func() {
		t := time.Now().UTC()
		r.lastRun.Store(&t)
	}()

	settings, err := r.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("agent: read settings: %w", err)
	}
	if !settings.Enabled {
		return domain.ErrAgentDisabled
	}

	// Resting limits first, so they settle against pre-cycle prices rather
	// than against this cycle's own trades.
	fills, err := r.matcher.Sweep(ctx)
	if err != nil {
		r.logger.Error("limit sweep failed", slog.String("error", err.Error()))
	}

	universe, volatileOnly, err := r.assembleUniverse(ctx, settings)
	if err != nil {
		return fmt.Errorf("agent: assemble universe: %w", err)
	}
	if len(universe) == 0 {
		r.logger.Info("empty universe, nothing to do")
		return nil
	}

	// Position sizing for the whole cycle works off the cash balance as of
	// cycle start, so earlier buys in the same cycle do not shrink later ones.
	snap, err := r.ledger.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("agent: snapshot: %w", err)
	}

	r.refreshProviders(ctx)

	macro := r.fetchMacro(ctx)

	var traded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrent)
	for _, sym := range universe {
		g.Go(func() error {
			res, err := r.processSymbol(gctx, sym, settings, snap, macro, volatileOnly[sym])
			if err != nil {
				failed.Add(1)
				r.logger.Warn("symbol failed", slog.String("symbol", sym), slog.String("error", err.Error()))
				r.appendReasoning(gctx, sym, domain.StepError, err.Error(), domain.ErrorData{Error: err.Error()})
				return nil // one symbol's failure never aborts the cycle
			}
			if res.traded {
				traded.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.logger.Info("cycle complete",
		slog.Int("universe", len(universe)),
		slog.Int64("traded", traded.Load()),
		slog.Int64("failed", failed.Load()),
		slog.Int("limit_fills", len(fills)),
		slog.Duration("elapsed", time.Since(started)))

	if r.bus != nil {
		summary := map[string]any{
			"universe":    len(universe),
			"traded":      traded.Load(),
			"failed":      failed.Load(),
			"limit_fills": len(fills),
			"finished_at": time.Now().UTC(),
		}
		if err := r.bus.Publish(ctx, domain.ChannelCycles, summary); err != nil {
			r.logger.Warn("cycle event publish failed", slog.String("error", err.Error()))
		}
	}

	if r.notifier != nil && (traded.Load() > 0 || len(fills) > 0) {
		text := fmt.Sprintf("cycle: %d symbols, %d trades, %d limit fills", len(universe), traded.Load(), len(fills))
		if err := r.notifier.Send(ctx, text); err != nil {
			r.logger.Warn("notify failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// assembleUniverse builds watchlist ∪ normal ∪ top-N volatile ∪ held
// positions, deduplicated. The returned set marks symbols that entered only
// through the volatile scan and therefore trade under the tighter cap.
func (r *Runner) assembleUniverse(ctx context.Context, settings domain.AgentSettings) ([]string, map[string]bool, error) {
	core := make(map[string]bool)

	items, err := r.watchlist.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, it := range items {
		core[marketdata.NormalizeSymbol(it.Symbol)] = true
	}
	watchCount := len(core)

	for _, s := range r.cfg.NormalSymbols {
		core[marketdata.NormalizeSymbol(s)] = true
	}

	universe := make(map[string]bool, len(core))
	for s := range core {
		universe[s] = true
	}

	volatileCount := 0
	if settings.IncludeVolatile && r.scanner != nil {
		for _, rank := range r.scanner.TopVolatile(ctx, r.cfg.VolatileSymbols, r.cfg.TopVolatileN) {
			if !universe[rank.Symbol] {
				volatileCount++
			}
			universe[rank.Symbol] = true
		}
	}

	heldCount := 0
	positions, err := r.ledger.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range positions.Positions {
		if !universe[p.Symbol] {
			heldCount++
		}
		universe[p.Symbol] = true
	}

	out := make([]string, 0, len(universe))
	volatileOnly := make(map[string]bool, len(universe))
	for s := range universe {
		out = append(out, s)
		volatileOnly[s] = !core[s]
	}
	sort.Strings(out)

	r.appendReasoning(ctx, "", domain.StepUniverse,
		fmt.Sprintf("universe assembled: %d symbols", len(out)),
		domain.UniverseData{
			Watchlist: watchCount,
			Normal:    len(r.cfg.NormalSymbols),
			Volatile:  volatileCount,
			Held:      heldCount,
			Symbols:   out,
		})
	return out, volatileOnly, nil
}

func (r *Runner) refreshProviders(ctx context.Context) {
	for _, p := range r.providers {
		rctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
		if err := p.Refresh(rctx); err != nil {
			r.logger.Warn("provider refresh failed",
				slog.String("source", string(p.Source())),
				slog.String("error", err.Error()))
		}
		cancel()
	}
}

func (r *Runner) fetchMacro(ctx context.Context) map[string]float64 {
	if r.macro == nil {
		return nil
	}
	mctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	defer cancel()
	indicators, err := r.macro.Indicators(mctx)
	if err != nil {
		r.logger.Warn("macro indicators unavailable", slog.String("error", err.Error()))
		return nil
	}
	return indicators
}

type symbolResult struct {
	traded bool
}

func (r *Runner) processSymbol(ctx context.Context, sym string, settings domain.AgentSettings, snap ledger.Snapshot, macro map[string]float64, volatileOnly bool) (symbolResult, error) {
	quote, err := r.quotes.Quote(ctx, sym)
	if err != nil {
		return symbolResult{}, fmt.Errorf("quote: %w", err)
	}

	sctx := r.gatherContext(ctx, sym, quote, macro)
	signals := r.gatherSignals(ctx, sym, sctx)

	decision := r.orch.Decide(sym, ensemble.Input{
		Quote:      quote,
		Signals:    signals,
		Volatility: sctx.Volatility,
		Settings:   settings,
	})

	// Exit rules outrank the ensemble for held symbols: a breached stop loss
	// or take profit forces a full sell no matter what was decided this cycle.
	// Full-control mode disables the override along with every other guard.
	if !settings.FullControl {
		if handled, err := r.checkExits(ctx, sym, quote, settings); err != nil {
			return symbolResult{}, err
		} else if handled {
			return symbolResult{traded: true}, nil
		}
	}

	r.appendReasoning(ctx, sym, domain.StepEnsemble, decision.Reason, domain.SignalBreakdownData{
		Composite:     decision.Composite,
		AvgConfidence: decision.AvgConfidence,
		AgreeCount:    decision.AgreeCount,
		Dampened:      decision.Dampened,
		Contributions: decision.Breakdown,
	})

	if decision.GuardrailTriggered {
		r.appendReasoning(ctx, sym, domain.StepGuardrail, decision.Reason, nil)
		return symbolResult{}, nil
	}
	if decision.Action == domain.ActionHold {
		return symbolResult{}, nil
	}

	return r.executeDecision(ctx, sym, quote, decision, snap, volatileOnly)
}

// gatherContext pulls bars, headlines and volatility. Each input is optional;
// a failed fetch degrades that input rather than failing the symbol.
func (r *Runner) gatherContext(ctx context.Context, sym string, quote domain.Quote, macro map[string]float64) signal.Context {
	out := signal.Context{Quote: quote, Macro: macro, Volatility: -1}

	hctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	bars, err := r.history.DailyHistory(hctx, sym, r.cfg.HistoryDays)
	cancel()
	if err != nil {
		r.logger.Debug("history unavailable", slog.String("symbol", sym), slog.String("error", err.Error()))
	} else {
		out.Bars = bars
		out.Volatility = marketdata.AnnualizedVolatility(bars)
	}

	if r.headlines != nil {
		nctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
		heads, err := r.headlines.Headlines(nctx, sym, r.cfg.HeadlineLimit)
		cancel()
		if err != nil {
			r.logger.Debug("headlines unavailable", slog.String("symbol", sym), slog.String("error", err.Error()))
		} else {
			out.Headlines = heads
		}
	}
	return out
}

// gatherSignals scores every provider under a timeout, substituting a neutral
// output for any that fails so the ensemble always sees four slots.
func (r *Runner) gatherSignals(ctx context.Context, sym string, in signal.Context) domain.SignalSet {
	score := func(source domain.SignalSource) domain.SignalOutput {
		p, ok := r.providers[source]
		if !ok {
			return domain.Neutral(source)
		}
		sctx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
		defer cancel()
		out, err := p.Score(sctx, sym, in)
		if err != nil {
			r.logger.Warn("signal provider failed, substituting neutral",
				slog.String("symbol", sym),
				slog.String("source", string(source)),
				slog.String("error", err.Error()))
			return domain.Neutral(source)
		}
		return out
	}
	return domain.SignalSet{
		Momentum:      score(domain.SignalMomentum),
		MeanReversion: score(domain.SignalMeanReversion),
		Sentiment:     score(domain.SignalSentiment),
		Macro:         score(domain.SignalMacro),
	}
}

// checkExits enforces stop-loss/take-profit on an open position. Returns true
// when an exit sell was issued (successfully or not).
func (r *Runner) checkExits(ctx context.Context, sym string, quote domain.Quote, settings domain.AgentSettings) (bool, error) {
	pos, err := r.ledger.Position(ctx, sym)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	stopLoss := settings.StopLossPct
	if stopLoss == nil && settings.IncludeVolatile {
		// Volatile mode without an explicit stop loss assumes a tight default.
		d := r.cfg.DefaultVolatileStopLossPct
		stopLoss = &d
	}

	pnl, _ := pos.UnrealizedPnLPct(quote.Price).Float64()

	if stopLoss != nil && pnl <= -*stopLoss {
		return true, r.exitPosition(ctx, sym, pos, quote, domain.StepStopLoss, "stop_loss", pnl, *stopLoss)
	}
	if settings.TakeProfitPct != nil && pnl >= *settings.TakeProfitPct {
		return true, r.exitPosition(ctx, sym, pos, quote, domain.StepTakeProfit, "take_profit", pnl, *settings.TakeProfitPct)
	}
	return false, nil
}

func (r *Runner) exitPosition(ctx context.Context, sym string, pos domain.Position, quote domain.Quote, step domain.ReasoningStep, rule string, pnl, threshold float64) error {
	msg := fmt.Sprintf("%s triggered at %.2f%% (threshold %.2f%%), selling %s shares", rule, pnl, threshold, pos.Quantity.String())
	r.appendReasoning(ctx, sym, step, msg, domain.ExitTriggeredData{
		Rule:         rule,
		PnLPct:       pnl,
		ThresholdPct: threshold,
		Quantity:     pos.Quantity.String(),
		Price:        quote.Price.String(),
	})

	entry := domain.HistoryEntry{
		ID:                 uuid.NewString(),
		Symbol:             sym,
		Action:             domain.ActionSell,
		PositionSize:       1,
		Reason:             msg,
		GuardrailTriggered: true,
		CreatedAt:          time.Now().UTC(),
	}
	if err := r.audit.Append(ctx, entry); err != nil {
		return err
	}

	order, err := r.ledger.ExecuteAt(ctx, domain.OrderSideSell, sym, pos.Quantity, quote.Price)
	if err != nil {
		r.appendReasoning(ctx, sym, domain.StepExecute, "exit sell rejected: "+err.Error(), domain.ExecutionData{
			Side:     string(domain.OrderSideSell),
			Quantity: pos.Quantity.String(),
			Price:    quote.Price.String(),
			Rejected: err.Error(),
		})
		return nil
	}
	if err := r.audit.MarkExecuted(ctx, entry.ID, order.ID); err != nil {
		r.logger.Warn("mark executed failed", slog.String("entry_id", entry.ID), slog.String("error", err.Error()))
	}
	r.appendReasoning(ctx, sym, domain.StepExecute, "exit sell executed", domain.ExecutionData{
		OrderID:  order.ID,
		Side:     string(domain.OrderSideSell),
		Quantity: order.Quantity.String(),
		Price:    order.Price.String(),
	})
	return nil
}

func (r *Runner) executeDecision(ctx context.Context, sym string, quote domain.Quote, decision domain.Decision, snap ledger.Snapshot, volatileOnly bool) (symbolResult, error) {
	size := decision.PositionSize
	if volatileOnly && decision.Action == domain.ActionBuy && size > r.cfg.VolatileCapPct {
		size = r.cfg.VolatileCapPct
	}

	var (
		side domain.OrderSide
		qty  decimal.Decimal
	)
	switch decision.Action {
	case domain.ActionBuy:
		side = domain.OrderSideBuy
		notional := snap.Account.CashBalance.Mul(decimal.NewFromFloat(size))
		qty = notional.Div(quote.Price).Truncate(4)
	case domain.ActionSell:
		side = domain.OrderSideSell
		pos, err := r.ledger.Position(ctx, sym)
		if errors.Is(err, domain.ErrNotFound) {
			r.appendReasoning(ctx, sym, domain.StepExecute, "sell skipped: no position held", nil)
			return symbolResult{}, nil
		}
		if err != nil {
			return symbolResult{}, err
		}
		qty = pos.Quantity.Mul(decimal.NewFromFloat(size)).Truncate(4)
	}
	if qty.Sign() <= 0 {
		r.appendReasoning(ctx, sym, domain.StepExecute, "trade skipped: size rounds to zero", nil)
		return symbolResult{}, nil
	}

	entry := domain.HistoryEntry{
		ID:                 uuid.NewString(),
		Symbol:             sym,
		Action:             decision.Action,
		PositionSize:       size,
		Reason:             decision.Reason,
		GuardrailTriggered: decision.GuardrailTriggered,
		CreatedAt:          time.Now().UTC(),
	}
	if err := r.audit.Append(ctx, entry); err != nil {
		return symbolResult{}, err
	}

	order, err := r.ledger.ExecuteAt(ctx, side, sym, qty, quote.Price)
	if err != nil {
		r.appendReasoning(ctx, sym, domain.StepExecute, "trade rejected: "+err.Error(), domain.ExecutionData{
			Side:     string(side),
			Quantity: qty.String(),
			Price:    quote.Price.String(),
			Rejected: err.Error(),
		})
		return symbolResult{traded: true}, nil
	}
	if err := r.audit.MarkExecuted(ctx, entry.ID, order.ID); err != nil {
		r.logger.Warn("mark executed failed", slog.String("entry_id", entry.ID), slog.String("error", err.Error()))
	}
	r.appendReasoning(ctx, sym, domain.StepExecute, fmt.Sprintf("%s %s @ %s", side, qty.String(), quote.Price.String()), domain.ExecutionData{
		OrderID:  order.ID,
		Side:     string(side),
		Quantity: order.Quantity.String(),
		Price:    order.Price.String(),
	})
	return symbolResult{traded: true}, nil
}

func (r *Runner) appendReasoning(ctx context.Context, sym string, step domain.ReasoningStep, msg string, data domain.StepData) {
	entry := domain.ReasoningEntry{
		ID:        uuid.NewString(),
		Symbol:    strings.ToUpper(sym),
		Step:      step,
		Message:   msg,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.reasoning.Append(ctx, entry); err != nil {
		r.logger.Warn("reasoning append failed",
			slog.String("symbol", sym),
			slog.String("step", string(step)),
			slog.String("error", err.Error()))
	}
}
