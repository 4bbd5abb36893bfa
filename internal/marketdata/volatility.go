package marketdata

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/quantlab/papertrader/internal/domain"
)

// tradingDaysPerYear annualizes daily log-return variance.
const tradingDaysPerYear = 252

// AnnualizedVolatility computes realized volatility from daily closes using
// log returns. It returns a negative value when there is not enough data,
// which callers treat as "volatility unknown".
func AnnualizedVolatility(bars []domain.Candle) float64 {
	if len(bars) < 2 {
		return -1
	}

	var returns []float64
	for i := 1; i < len(bars); i++ {
		prev, _ := bars[i-1].Close.Float64()
		cur, _ := bars[i].Close.Float64()
		if prev > 0 && cur > 0 {
			returns = append(returns, math.Log(cur/prev))
		}
	}
	if len(returns) == 0 {
		return -1
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance * tradingDaysPerYear)
}

// Scanner ranks candidate symbols by realized volatility so the agent can
// optionally trade the most volatile names.
type Scanner struct {
	history domain.HistoryProvider
	logger  *slog.Logger
}

// NewScanner creates a volatility Scanner.
func NewScanner(history domain.HistoryProvider, logger *slog.Logger) *Scanner {
	return &Scanner{
		history: history,
		logger:  logger.With(slog.String("component", "volatility_scanner")),
	}
}

// VolatilityRank is one scored candidate.
type VolatilityRank struct {
	Symbol     string  `json:"symbol"`
	Volatility float64 `json:"volatility"`
}

// TopVolatile returns up to topN candidates ordered by descending realized
// volatility. Symbols whose history cannot be fetched are skipped; a fully
// failed scan returns an empty slice, not an error, because the volatile
// universe is an optional extra.
func (s *Scanner) TopVolatile(ctx context.Context, candidates []string, topN int) []VolatilityRank {
	if topN <= 0 {
		topN = 25
	}

	var ranked []VolatilityRank
	for _, sym := range candidates {
		sym = NormalizeSymbol(sym)
		if sym == "" {
			continue
		}
		bars, err := s.history.DailyHistory(ctx, sym, 30)
		if err != nil {
			s.logger.DebugContext(ctx, "volatility scan skipped symbol",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		vol := AnnualizedVolatility(bars)
		if vol <= 0 {
			continue
		}
		ranked = append(ranked, VolatilityRank{Symbol: sym, Volatility: vol})
	}

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].Volatility > ranked[j].Volatility
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
