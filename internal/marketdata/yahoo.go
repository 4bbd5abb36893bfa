// Package marketdata provides quote, history, news, and macro lookups for the
// decision engine. All providers are fallible, timeout-bounded black boxes;
// callers degrade to neutral signals when a lookup fails.
package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"github.com/quantlab/papertrader/internal/domain"
)

// YahooClient fetches quotes and daily bars from Yahoo Finance. The upstream
// library is synchronous, so each call runs on its own goroutine and is
// abandoned when the context expires.
type YahooClient struct {
	timeout time.Duration
}

// NewYahooClient creates a YahooClient. Zero timeout means 10 seconds.
func NewYahooClient(timeout time.Duration) *YahooClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &YahooClient{timeout: timeout}
}

// NormalizeSymbol uppercases and strips a raw ticker string.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(symbol, "$")))
}

// Quote fetches the current quote for one symbol.
func (y *YahooClient) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return domain.Quote{}, domain.ErrInvalidOrder
	}

	type result struct {
		q   domain.Quote
		err error
	}
	ch := make(chan result, 1)

	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	go func() {
		q, err := quote.Get(symbol)
		if err != nil {
			ch <- result{err: fmt.Errorf("yahoo: quote %s: %w", symbol, err)}
			return
		}
		if q == nil || q.RegularMarketPrice <= 0 {
			ch <- result{err: fmt.Errorf("yahoo: quote %s: %w", symbol, domain.ErrProviderUnavailable)}
			return
		}

		out := domain.Quote{
			Symbol:        symbol,
			Price:         decimal.NewFromFloat(q.RegularMarketPrice),
			PreviousClose: decimal.NewFromFloat(q.RegularMarketPreviousClose),
			Currency:      "USD",
			SpreadPct:     -1,
			FetchedAt:     time.Now().UTC(),
		}
		if q.Bid > 0 && q.Ask > 0 && q.Ask >= q.Bid {
			mid := (q.Bid + q.Ask) / 2
			out.SpreadPct = (q.Ask - q.Bid) / mid
		}
		ch <- result{q: out}
	}()

	select {
	case <-ctx.Done():
		return domain.Quote{}, fmt.Errorf("yahoo: quote %s: %w", symbol, domain.ErrProviderUnavailable)
	case r := <-ch:
		return r.q, r.err
	}
}

// DailyHistory fetches up to days of daily bars, oldest first.
func (y *YahooClient) DailyHistory(ctx context.Context, symbol string, days int) ([]domain.Candle, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, domain.ErrInvalidOrder
	}
	if days <= 0 {
		days = 60
	}

	type result struct {
		bars []domain.Candle
		err  error
	}
	ch := make(chan result, 1)

	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	go func() {
		end := time.Now()
		start := end.AddDate(0, 0, -days)
		params := &chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		}

		iter := chart.Get(params)
		var bars []domain.Candle
		for iter.Next() {
			bar := iter.Bar()
			bars = append(bars, domain.Candle{
				Date:   time.Unix(int64(bar.Timestamp), 0).UTC(),
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: int64(bar.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			ch <- result{err: fmt.Errorf("yahoo: history %s: %w", symbol, err)}
			return
		}
		ch <- result{bars: bars}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("yahoo: history %s: %w", symbol, domain.ErrProviderUnavailable)
	case r := <-ch:
		return r.bars, r.err
	}
}
