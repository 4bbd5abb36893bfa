package domain

import "context"

// QuoteProvider fetches a live quote for one symbol. Implementations are
// fallible, timeout-bounded black boxes.
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// HistoryProvider fetches recent daily bars, oldest first.
type HistoryProvider interface {
	DailyHistory(ctx context.Context, symbol string, days int) ([]Candle, error)
}

// HeadlineProvider fetches recent news headlines for a symbol.
type HeadlineProvider interface {
	Headlines(ctx context.Context, symbol string, limit int) ([]string, error)
}

// MacroProvider fetches a snapshot of macro indicators (rates, CPI, VIX, ...)
// keyed by indicator name.
type MacroProvider interface {
	Indicators(ctx context.Context) (map[string]float64, error)
}
