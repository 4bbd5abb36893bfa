package marketdata

import (
	"context"
	"errors"
	"log/slog"

	"github.com/quantlab/papertrader/internal/domain"
)

// QuoteService resolves quotes through the shared cache, falling back to the
// live provider on a miss. One cycle's worth of lookups therefore sees a
// single consistent price per symbol.
type QuoteService struct {
	provider domain.QuoteProvider
	cache    domain.QuoteCache
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewQuoteService creates a QuoteService. The cache may be nil, in which case
// every lookup goes straight to the provider.
func NewQuoteService(provider domain.QuoteProvider, cache domain.QuoteCache, logger *slog.Logger) *QuoteService {
	return &QuoteService{
		provider: provider,
		cache:    cache,
		logger:   logger.With(slog.String("component", "quote_service")),
	}
}

// SetBus attaches an event bus; freshly fetched quotes are published on the
// quotes channel. Publishing is best effort.
func (s *QuoteService) SetBus(bus domain.EventBus) { s.bus = bus }

// Quote returns the current quote for a symbol, cached when possible.
func (s *QuoteService) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = NormalizeSymbol(symbol)

	if s.cache != nil {
		q, err := s.cache.GetQuote(ctx, symbol)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "quote cache read failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	q, err := s.provider.Quote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetQuote(ctx, q); err != nil {
			s.logger.WarnContext(ctx, "quote cache write failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus != nil {
		if err := s.bus.Publish(ctx, domain.ChannelQuotes, q); err != nil {
			s.logger.WarnContext(ctx, "quote event publish failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return q, nil
}
