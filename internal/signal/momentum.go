package signal

import (
	"context"
	"math"

	"github.com/quantlab/papertrader/internal/domain"
)

const (
	momentumFastSpan = 8
	momentumSlowSpan = 21
	momentumMinBars  = 10
)

// Momentum scores trend continuation from an EMA crossover over daily
// closes. It fills the slot a sequence model would occupy in a larger
// deployment; the interface is identical either way.
type Momentum struct{}

func NewMomentum() *Momentum { return &Momentum{} }

func (m *Momentum) Source() domain.SignalSource { return domain.SignalMomentum }

func (m *Momentum) Refresh(ctx context.Context) error { return nil }

func (m *Momentum) Score(ctx context.Context, symbol string, in Context) (domain.SignalOutput, error) {
	if err := ctx.Err(); err != nil {
		return domain.SignalOutput{}, err
	}
	closes := closesOf(in.Bars)
	if len(closes) < momentumMinBars {
		return domain.Neutral(domain.SignalMomentum), nil
	}

	fast := ema(closes, momentumFastSpan)
	slow := ema(closes, momentumSlowSpan)
	last := closes[len(closes)-1]
	if last == 0 || slow == 0 {
		return domain.Neutral(domain.SignalMomentum), nil
	}

	// Spread between the fast and slow averages, normalized by price, gives
	// a scale-free trend measure; tanh squashes it into [-1, 1].
	score := math.Tanh(12 * (fast - slow) / last)

	// Confidence from directional consistency of recent returns: a trend
	// every bar agrees with is worth more than the same spread from one jump.
	conf := directionalConsistency(closes, momentumFastSpan)

	return domain.SignalOutput{Source: domain.SignalMomentum, Score: score, Confidence: conf}, nil
}

func closesOf(bars []domain.Candle) []float64 {
	out := make([]float64, 0, len(bars))
	for _, b := range bars {
		c, _ := b.Close.Float64()
		if c > 0 {
			out = append(out, c)
		}
	}
	return out
}

func ema(vals []float64, span int) float64 {
	if len(vals) == 0 {
		return 0
	}
	alpha := 2.0 / (float64(span) + 1)
	out := vals[0]
	for _, v := range vals[1:] {
		out = alpha*v + (1-alpha)*out
	}
	return out
}

func directionalConsistency(closes []float64, window int) float64 {
	if window >= len(closes) {
		window = len(closes) - 1
	}
	if window < 2 {
		return 0
	}
	tail := closes[len(closes)-window-1:]
	up, down := 0, 0
	for i := 1; i < len(tail); i++ {
		switch {
		case tail[i] > tail[i-1]:
			up++
		case tail[i] < tail[i-1]:
			down++
		}
	}
	total := up + down
	if total == 0 {
		return 0
	}
	bias := math.Abs(float64(up)-float64(down)) / float64(total)
	return clamp(bias, 0, 1)
}
