package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantlab/papertrader/internal/domain"
)

// WatchlistStore implements domain.WatchlistStore using PostgreSQL.
type WatchlistStore struct {
	pool *pgxpool.Pool
}

// NewWatchlistStore creates a new WatchlistStore.
func NewWatchlistStore(pool *pgxpool.Pool) *WatchlistStore {
	return &WatchlistStore{pool: pool}
}

// Add upserts a tracked symbol.
func (s *WatchlistStore) Add(ctx context.Context, item domain.WatchlistItem) error {
	const query = `
		INSERT INTO watchlist (symbol, company_name, added_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (symbol) DO UPDATE SET company_name = EXCLUDED.company_name`
	if _, err := s.pool.Exec(ctx, query, item.Symbol, item.CompanyName); err != nil {
		return fmt.Errorf("postgres: add watchlist %s: %w", item.Symbol, err)
	}
	return nil
}

// Remove deletes a tracked symbol.
func (s *WatchlistStore) Remove(ctx context.Context, symbol string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM watchlist WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("postgres: remove watchlist %s: %w", symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns all tracked symbols in insertion order.
func (s *WatchlistStore) List(ctx context.Context) ([]domain.WatchlistItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, company_name, added_at FROM watchlist ORDER BY added_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list watchlist: %w", err)
	}
	defer rows.Close()

	var items []domain.WatchlistItem
	for rows.Next() {
		var it domain.WatchlistItem
		if err := rows.Scan(&it.Symbol, &it.CompanyName, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan watchlist: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
