package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/quantlab/papertrader/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each symbol's
// quote is stored at key "quote:{symbol}" with a TTL, so the agent cycle, the
// limit order matcher, and the API share one view of the market within the
// freshness window.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. Entries
// expire after ttl; zero means a 30-second default.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &QuoteCache{rdb: c.rdb, ttl: ttl}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

// SetQuote stores a quote snapshot for its symbol.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := quoteKey(q.Symbol)
	fields := map[string]interface{}{
		"price":      q.Price.String(),
		"prev_close": q.PreviousClose.String(),
		"currency":   q.Currency,
		"spread_pct": strconv.FormatFloat(q.SpreadPct, 'f', -1, 64),
		"ts":         strconv.FormatInt(q.FetchedAt.UnixNano(), 10),
	}

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, qc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Symbol, err)
	}
	return nil
}

// GetQuote retrieves the cached quote for a symbol. It returns
// domain.ErrNotFound when the key is absent or expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}

	q := domain.Quote{Symbol: symbol, Currency: vals["currency"]}
	if q.Price, err = decimal.NewFromString(vals["price"]); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote price %s: %w", symbol, err)
	}
	if q.PreviousClose, err = decimal.NewFromString(vals["prev_close"]); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse prev close %s: %w", symbol, err)
	}
	if q.SpreadPct, err = strconv.ParseFloat(vals["spread_pct"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse spread %s: %w", symbol, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote ts %s: %w", symbol, err)
	}
	q.FetchedAt = time.Unix(0, tsNano)
	return q, nil
}
