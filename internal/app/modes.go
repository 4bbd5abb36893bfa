package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantlab/papertrader/internal/agent"
	"github.com/quantlab/papertrader/internal/archive"
	"github.com/quantlab/papertrader/internal/domain"
	"github.com/quantlab/papertrader/internal/ensemble"
	"github.com/quantlab/papertrader/internal/ledger"
	"github.com/quantlab/papertrader/internal/server"
	"github.com/quantlab/papertrader/internal/server/handler"
	"github.com/quantlab/papertrader/internal/server/ws"
	"github.com/quantlab/papertrader/internal/signal"
)

// engine bundles the trading core shared by every mode.
type engine struct {
	ledger  *ledger.Ledger
	matcher *ledger.Matcher
	runner  *agent.Runner
}

// ServeMode runs the HTTP API and the limit order matcher without the agent
// scheduler. Cycles can still be triggered manually through the API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	eng := a.buildEngine(deps)

	a.startHTTPServer(ctx, g, deps, eng)
	a.startSweepLoop(ctx, g, eng.matcher)

	return g.Wait()
}

// AgentMode runs the decision scheduler headless, with no API.
func (a *App) AgentMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting agent mode")

	g, ctx := errgroup.WithContext(ctx)
	eng := a.buildEngine(deps)

	g.Go(func() error {
		return eng.runner.Start(ctx)
	})
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// OnceMode runs a single decision cycle and exits. Useful for cron-driven
// deployments and smoke tests.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")

	eng := a.buildEngine(deps)
	if err := eng.runner.Run(ctx); err != nil {
		if errors.Is(err, domain.ErrAgentDisabled) {
			a.logger.InfoContext(ctx, "agent is disabled, nothing to do")
			return nil
		}
		return err
	}
	return nil
}

// FullMode runs the scheduler, the HTTP API, the matcher sweep, and the trail
// archiver together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	eng := a.buildEngine(deps)

	g.Go(func() error {
		return eng.runner.Start(ctx)
	})
	a.startHTTPServer(ctx, g, deps, eng)
	a.startSweepLoop(ctx, g, eng.matcher)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// buildEngine assembles the ledger, matcher, signal providers, orchestrator
// and runner from the wired dependencies.
func (a *App) buildEngine(deps *Dependencies) *engine {
	led := ledger.New(deps.LedgerStore, deps.LimitStore, deps.Quotes, a.logger)
	led.SetBus(deps.Bus)
	matcher := ledger.NewMatcher(led, deps.LimitStore, deps.Quotes, a.logger)

	orch := ensemble.New(ensemble.Config{
		BuyThreshold:      a.cfg.Ensemble.BuyThreshold,
		SellThreshold:     a.cfg.Ensemble.SellThreshold,
		MaxVolatility:     a.cfg.Ensemble.MaxVolatility,
		MaxSpreadPct:      a.cfg.Ensemble.MaxSpreadPct,
		KellyFraction:     a.cfg.Ensemble.KellyFraction,
		MaxPositionPct:    a.cfg.Ensemble.MaxPositionPct,
		FullControlMaxPct: a.cfg.Ensemble.FullControlMaxPct,
		Dampening:         a.cfg.Ensemble.Dampening,
	})

	providers := []signal.Provider{
		signal.NewMomentum(),
		signal.NewMeanReversion(),
		signal.NewSentiment(a.cfg.MarketData.SentimentEndpoint),
		signal.NewMacro(),
	}

	runnerCfg := agent.DefaultConfig()
	if a.cfg.Agent.Interval.Duration > 0 {
		runnerCfg.Interval = a.cfg.Agent.Interval.Duration
	}
	if a.cfg.Agent.ProviderTimeout.Duration > 0 {
		runnerCfg.ProviderTimeout = a.cfg.Agent.ProviderTimeout.Duration
	}
	if a.cfg.Agent.MaxConcurrent > 0 {
		runnerCfg.MaxConcurrent = a.cfg.Agent.MaxConcurrent
	}
	if a.cfg.Agent.TopVolatileN > 0 {
		runnerCfg.TopVolatileN = a.cfg.Agent.TopVolatileN
	}
	if a.cfg.Agent.HistoryDays > 0 {
		runnerCfg.HistoryDays = a.cfg.Agent.HistoryDays
	}
	if a.cfg.Agent.HeadlineLimit > 0 {
		runnerCfg.HeadlineLimit = a.cfg.Agent.HeadlineLimit
	}
	if a.cfg.Agent.VolatileCapPct > 0 {
		runnerCfg.VolatileCapPct = a.cfg.Agent.VolatileCapPct
	}
	if a.cfg.Agent.DefaultVolatileStopLossPct > 0 {
		runnerCfg.DefaultVolatileStopLossPct = a.cfg.Agent.DefaultVolatileStopLossPct
	}
	runnerCfg.NormalSymbols = a.cfg.Agent.NormalSymbols
	runnerCfg.VolatileSymbols = a.cfg.Agent.VolatileSymbols

	runner := agent.New(runnerCfg, agent.Deps{
		Settings:  deps.SettingsStore,
		Ledger:    led,
		Matcher:   matcher,
		Orch:      orch,
		Quotes:    deps.Quotes,
		History:   deps.History,
		Headlines: deps.Headlines,
		Macro:     deps.Macro,
		Providers: providers,
		Scanner:   deps.Scanner,
		Reasoning: deps.ReasoningStore,
		Audit:     deps.HistoryStore,
		Watchlist: deps.WatchlistStore,
		Notifier:  deps.Notifier,
		Bus:       deps.Bus,
		Logger:    a.logger,
	})

	return &engine{ledger: led, matcher: matcher, runner: runner}
}

// startHTTPServer registers all handlers, starts the WebSocket hub, and runs
// the API server until the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled")
		return
	}

	hub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(),
		Agent:      handler.NewAgentHandler(eng.runner, deps.SettingsStore, deps.ReasoningStore, deps.HistoryStore, a.logger),
		Portfolio:  handler.NewPortfolioHandler(eng.ledger, deps.Quotes, a.logger),
		Orders:     handler.NewOrderHandler(eng.ledger, a.logger),
		LimitOrder: handler.NewLimitOrderHandler(eng.ledger, a.logger),
		Watchlist:  handler.NewWatchlistHandler(deps.WatchlistStore, a.logger),
	}

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startSweepLoop runs the limit order matcher on a fixed cadence so resting
// orders fill even when no agent cycle is scheduled.
func (a *App) startSweepLoop(ctx context.Context, g *errgroup.Group, matcher *ledger.Matcher) {
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := matcher.Sweep(ctx); err != nil {
					a.logger.WarnContext(ctx, "matcher sweep failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// startArchiver schedules cold-storage archival of the reasoning and audit
// trails when archiving is enabled.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	sched := archive.NewScheduler(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	cronExpr := a.cfg.Archive.Cron
	g.Go(func() error {
		return sched.RunCron(ctx, cronExpr)
	})
}
