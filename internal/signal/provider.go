// Package signal contains the four ensemble signal providers. Each provider
// is an independent, swappable estimator that maps a symbol plus market
// context to a directional score and a confidence. Model or cache
// maintenance happens in Refresh, off the decision hot path; Score stays
// cheap and deterministic.
package signal

import (
	"context"

	"github.com/quantlab/papertrader/internal/domain"
)

// Context is the market input bundle gathered once per symbol per cycle and
// shared across providers.
type Context struct {
	Quote      domain.Quote
	Bars       []domain.Candle // recent daily bars, oldest first
	Headlines  []string
	Macro      map[string]float64
	Volatility float64 // annualized; negative when unknown
}

// Provider is one ensemble slot.
type Provider interface {
	Source() domain.SignalSource
	// Refresh performs periodic model or cache maintenance. It is never
	// called from the decision path.
	Refresh(ctx context.Context) error
	// Score returns the provider's view of the symbol. Implementations must
	// honor ctx cancellation; the orchestrator substitutes a neutral signal
	// when a provider fails or times out.
	Score(ctx context.Context, symbol string, in Context) (domain.SignalOutput, error)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
