package signal

import (
	"context"

	"github.com/quantlab/papertrader/internal/domain"
)

// Indicator keys expected in Context.Macro.
const (
	MacroFedFundsRate = "fed_funds_rate"
	MacroCPI          = "cpi_yoy"
)

// Macro maps economy-wide indicators to a mild directional tilt applied
// uniformly across symbols. It deliberately carries low confidence: the
// macro slot nudges, it never drives.
type Macro struct{}

func NewMacro() *Macro { return &Macro{} }

func (m *Macro) Source() domain.SignalSource { return domain.SignalMacro }

func (m *Macro) Refresh(ctx context.Context) error { return nil }

func (m *Macro) Score(ctx context.Context, symbol string, in Context) (domain.SignalOutput, error) {
	if err := ctx.Err(); err != nil {
		return domain.SignalOutput{}, err
	}
	if len(in.Macro) == 0 {
		return domain.Neutral(domain.SignalMacro), nil
	}

	score := 0.0
	used := 0

	// Policy rate: accommodative below ~3% reads bullish for equities,
	// restrictive above ~5% bearish, linear in between.
	if rate, ok := in.Macro[MacroFedFundsRate]; ok {
		score += clamp((4.0-rate)/2.0, -1, 1)
		used++
	}

	// Inflation: target-ish prints near 2% are supportive, hot prints
	// above 4% are a drag.
	if cpi, ok := in.Macro[MacroCPI]; ok {
		score += clamp((3.0-cpi)/2.0, -1, 1)
		used++
	}

	if used == 0 {
		return domain.Neutral(domain.SignalMacro), nil
	}

	return domain.SignalOutput{
		Source:     domain.SignalMacro,
		Score:      clamp(score/float64(used), -1, 1),
		Confidence: 0.35,
	}, nil
}
