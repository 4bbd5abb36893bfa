// Package ensemble turns four signal outputs into one Buy/Sell/Hold decision
// with guardrails, an agreement rule, and Kelly-style position sizing.
package ensemble

import (
	"fmt"
	"math"
	"time"

	"github.com/quantlab/papertrader/internal/domain"
)

// Config holds the orchestrator's tuning constants. Thresholds are
// deliberately small: the agreement rule is the primary gate, the thresholds
// only reject noise around zero.
type Config struct {
	BuyThreshold      float64
	SellThreshold     float64
	MaxVolatility     float64 // annualized fraction; above this force Hold
	MaxSpreadPct      float64 // bid/ask spread fraction; above this force Hold
	KellyFraction     float64
	MaxPositionPct    float64 // hard cap on Buy size, fraction of cash
	FullControlMaxPct float64 // cap when full-control mode bypasses scaling
	Dampening         bool
}

func DefaultConfig() Config {
	return Config{
		BuyThreshold:      0.05,
		SellThreshold:     0.05,
		MaxVolatility:     0.50,
		MaxSpreadPct:      0.02,
		KellyFraction:     0.25,
		MaxPositionPct:    0.20,
		FullControlMaxPct: 0.50,
		Dampening:         true,
	}
}

// Input carries everything one decision needs. Volatility is annualized and
// negative when unknown; an unknown volatility never trips the guardrail.
type Input struct {
	Quote      domain.Quote
	Signals    domain.SignalSet
	Volatility float64
	Settings   domain.AgentSettings
}

// Orchestrator is stateless and safe for concurrent use.
type Orchestrator struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Decide maps the input to an immutable Decision. Identical inputs always
// produce identical decisions apart from the timestamp.
func (o *Orchestrator) Decide(symbol string, in Input) domain.Decision {
	weights := in.Settings.Weights
	if weights.Sum() == 0 {
		weights = domain.DefaultWeights()
	}

	breakdown := contributions(in.Signals, weights)
	composite := 0.0
	avgConf := 0.0
	for _, c := range breakdown {
		composite += c.Contribution
		avgConf += c.Confidence
	}
	avgConf /= float64(len(breakdown))

	d := domain.Decision{
		Symbol:        symbol,
		Timestamp:     o.now(),
		Composite:     composite,
		Action:        domain.ActionHold,
		AvgConfidence: avgConf,
		Breakdown:     breakdown,
	}

	if in.Settings.FullControl {
		return o.fullControl(d)
	}

	// Guardrails, first match wins.
	if in.Volatility > o.cfg.MaxVolatility {
		d.GuardrailTriggered = true
		d.Reason = fmt.Sprintf("volatility %.0f%% above %.0f%% ceiling", in.Volatility*100, o.cfg.MaxVolatility*100)
		return d
	}
	if in.Quote.SpreadPct > o.cfg.MaxSpreadPct {
		d.GuardrailTriggered = true
		d.Reason = fmt.Sprintf("spread %.2f%% above %.2f%% ceiling", in.Quote.SpreadPct*100, o.cfg.MaxSpreadPct*100)
		return d
	}
	floor := in.Settings.ConfidenceFloor
	if avgConf < floor {
		d.GuardrailTriggered = true
		d.Reason = fmt.Sprintf("average confidence %.2f below %.2f floor", avgConf, floor)
		return d
	}

	// Conservatism bias: when sentiment or macro disagrees with the price
	// trend (buying into headwinds, selling into a tailwind) the composite
	// shrinks before thresholding.
	if o.cfg.Dampening {
		trend := in.Quote.ChangePct()
		factor := 1.0
		if opposes(in.Signals.Sentiment.Score, trend) {
			factor = 0.5
		}
		if opposes(in.Signals.Macro.Score, trend) {
			factor = math.Min(factor, 0.4)
		}
		if factor < 1.0 {
			composite *= factor
			d.Composite = composite
			d.Dampened = true
		}
	}

	bulls, bears := signCounts(in.Signals)
	agree := bulls
	if composite < 0 {
		agree = bears
	}
	d.AgreeCount = agree

	majority := (composite > 0 && bulls > bears) || (composite < 0 && bears > bulls)
	if agree < 2 || !majority {
		d.Reason = fmt.Sprintf("insufficient agreement (%d bullish, %d bearish)", bulls, bears)
		return d
	}

	switch {
	case composite >= o.cfg.BuyThreshold:
		d.Action = domain.ActionBuy
	case composite <= -o.cfg.SellThreshold:
		d.Action = domain.ActionSell
	default:
		d.Reason = fmt.Sprintf("composite %.3f inside hold band", composite)
		return d
	}

	size := o.cfg.KellyFraction * math.Abs(composite) * avgConf
	size *= agreementMultiplier(agree)
	if in.Volatility > 0 {
		size *= math.Min(1, o.cfg.KellyFraction/in.Volatility)
	}
	d.PositionSize = math.Min(size, o.cfg.MaxPositionPct)
	d.Reason = fmt.Sprintf("%s: composite %.3f, %d/4 signals agree, avg confidence %.2f", d.Action, composite, agree, avgConf)
	return d
}

// fullControl maps composite straight to action through the thresholds and
// sizes with the bare Kelly heuristic under the elevated cap. No guardrails,
// no agreement, no volatility scaling. Experimentation mode.
func (o *Orchestrator) fullControl(d domain.Decision) domain.Decision {
	switch {
	case d.Composite >= o.cfg.BuyThreshold:
		d.Action = domain.ActionBuy
	case d.Composite <= -o.cfg.SellThreshold:
		d.Action = domain.ActionSell
	default:
		d.Reason = fmt.Sprintf("composite %.3f inside hold band (full control)", d.Composite)
		return d
	}
	size := o.cfg.KellyFraction * math.Abs(d.Composite) * d.AvgConfidence
	d.PositionSize = math.Min(size, o.cfg.FullControlMaxPct)
	d.Reason = fmt.Sprintf("%s (full control): composite %.3f, avg confidence %.2f", d.Action, d.Composite, d.AvgConfidence)
	return d
}

func contributions(s domain.SignalSet, w domain.EnsembleWeights) []domain.SignalContribution {
	weightOf := [4]float64{w.Momentum, w.MeanReversion, w.Sentiment, w.Macro}
	all := s.All()
	out := make([]domain.SignalContribution, 0, len(all))
	for i, sig := range all {
		out = append(out, domain.SignalContribution{
			Source:       sig.Source,
			Score:        sig.Score,
			Confidence:   sig.Confidence,
			Weight:       weightOf[i],
			Contribution: sig.Score * sig.Confidence * weightOf[i],
		})
	}
	return out
}

func signCounts(s domain.SignalSet) (bulls, bears int) {
	for _, sig := range s.All() {
		switch {
		case sig.Score > 0:
			bulls++
		case sig.Score < 0:
			bears++
		}
	}
	return bulls, bears
}

func agreementMultiplier(agree int) float64 {
	switch {
	case agree >= 4:
		return 1.25
	case agree == 3:
		return 1.0
	default:
		return 0.7
	}
}

func opposes(score, trendPct float64) bool {
	if score == 0 || trendPct == 0 {
		return false
	}
	return (score > 0) != (trendPct > 0)
}
