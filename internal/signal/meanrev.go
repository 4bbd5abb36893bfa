package signal

import (
	"context"
	"math"

	"github.com/quantlab/papertrader/internal/domain"
)

const (
	meanRevWindow  = 20
	meanRevMinBars = 12
)

// MeanReversion scores snap-back toward the rolling mean: a close far above
// the 20-day average is a sell signal, far below a buy. This is the gradient
// boosted slot in the ensemble; the statistical stand-in keeps the same
// contract.
type MeanReversion struct{}

func NewMeanReversion() *MeanReversion { return &MeanReversion{} }

func (m *MeanReversion) Source() domain.SignalSource { return domain.SignalMeanReversion }

func (m *MeanReversion) Refresh(ctx context.Context) error { return nil }

func (m *MeanReversion) Score(ctx context.Context, symbol string, in Context) (domain.SignalOutput, error) {
	if err := ctx.Err(); err != nil {
		return domain.SignalOutput{}, err
	}
	closes := closesOf(in.Bars)
	if len(closes) < meanRevMinBars {
		return domain.Neutral(domain.SignalMeanReversion), nil
	}

	window := meanRevWindow
	if window > len(closes) {
		window = len(closes)
	}
	tail := closes[len(closes)-window:]

	mean := 0.0
	for _, v := range tail {
		mean += v
	}
	mean /= float64(window)

	variance := 0.0
	for _, v := range tail {
		d := v - mean
		variance += d * d
	}
	variance /= float64(window)
	sd := math.Sqrt(variance)
	if sd == 0 {
		return domain.Neutral(domain.SignalMeanReversion), nil
	}

	z := (closes[len(closes)-1] - mean) / sd
	score := -math.Tanh(z / 2)

	// Small deviations are noise; confidence scales with how stretched the
	// price actually is.
	conf := clamp(math.Abs(z)/2.5, 0, 1)

	return domain.SignalOutput{Source: domain.SignalMeanReversion, Score: score, Confidence: conf}, nil
}
