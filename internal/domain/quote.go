package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is an ephemeral market snapshot for one symbol, fetched per decision.
type Quote struct {
	Symbol        string
	Price         decimal.Decimal
	PreviousClose decimal.Decimal
	Currency      string
	// SpreadPct is the bid/ask spread as a fraction of price (0.01 == 1%).
	// Negative means the venue did not report a spread.
	SpreadPct float64
	FetchedAt time.Time
}

// ChangePct returns the percentage move from the previous close, or zero when
// no previous close is known.
func (q Quote) ChangePct() float64 {
	if q.PreviousClose.IsZero() {
		return 0
	}
	pct, _ := q.Price.Sub(q.PreviousClose).Div(q.PreviousClose).Float64()
	return pct * 100
}

// Candle is one daily OHLCV bar from the historical provider.
type Candle struct {
	Date   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}
