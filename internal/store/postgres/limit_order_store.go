package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quantlab/papertrader/internal/domain"
)

// LimitOrderStore implements domain.LimitOrderStore using PostgreSQL.
type LimitOrderStore struct {
	pool *pgxpool.Pool
}

// NewLimitOrderStore creates a new LimitOrderStore.
func NewLimitOrderStore(pool *pgxpool.Pool) *LimitOrderStore {
	return &LimitOrderStore{pool: pool}
}

const limitOrderSelectCols = `id, symbol, side, quantity::text, limit_price::text, status, fill_order_id, created_at, resolved_at`

func scanLimitOrder(row pgx.Row) (domain.LimitOrder, error) {
	var lo domain.LimitOrder
	var side, status, qty, price string
	if err := row.Scan(&lo.ID, &lo.Symbol, &side, &qty, &price, &status, &lo.FillOrderID, &lo.CreatedAt, &lo.ResolvedAt); err != nil {
		return domain.LimitOrder{}, err
	}
	lo.Side = domain.OrderSide(side)
	lo.Status = domain.LimitOrderStatus(status)
	var err error
	if lo.Quantity, err = decimal.NewFromString(qty); err != nil {
		return domain.LimitOrder{}, fmt.Errorf("parse quantity: %w", err)
	}
	if lo.LimitPrice, err = decimal.NewFromString(price); err != nil {
		return domain.LimitOrder{}, fmt.Errorf("parse limit price: %w", err)
	}
	return lo, nil
}

// Create inserts a new pending limit order.
func (s *LimitOrderStore) Create(ctx context.Context, o domain.LimitOrder) error {
	const query = `
		INSERT INTO limit_orders (id, symbol, side, quantity, limit_price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		o.ID, o.Symbol, string(o.Side),
		o.Quantity.String(), o.LimitPrice.String(),
		string(o.Status), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create limit order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID returns one limit order by id.
func (s *LimitOrderStore) GetByID(ctx context.Context, id string) (domain.LimitOrder, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+limitOrderSelectCols+` FROM limit_orders WHERE id = $1`, id)
	lo, err := scanLimitOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LimitOrder{}, domain.ErrNotFound
		}
		return domain.LimitOrder{}, fmt.Errorf("postgres: get limit order %s: %w", id, err)
	}
	return lo, nil
}

// ListPending returns resting orders oldest first, matching fill priority.
func (s *LimitOrderStore) ListPending(ctx context.Context) ([]domain.LimitOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+limitOrderSelectCols+` FROM limit_orders WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending limit orders: %w", err)
	}
	defer rows.Close()
	return collectLimitOrders(rows)
}

// List returns limit orders with pending first, then newest first.
func (s *LimitOrderStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.LimitOrder, error) {
	query := `SELECT ` + limitOrderSelectCols + ` FROM limit_orders`
	args := []any{}
	argIdx := 1
	var conds []string
	if opts.Since != nil {
		conds = append(conds, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		conds = append(conds, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, *opts.Until)
		argIdx++
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY (status = 'pending') DESC, created_at DESC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list limit orders: %w", err)
	}
	defer rows.Close()
	return collectLimitOrders(rows)
}

func collectLimitOrders(rows pgx.Rows) ([]domain.LimitOrder, error) {
	var orders []domain.LimitOrder
	for rows.Next() {
		lo, err := scanLimitOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan limit order: %w", err)
		}
		orders = append(orders, lo)
	}
	return orders, rows.Err()
}

// Claim transitions a pending order to filled before the trade is booked.
// The status predicate in the WHERE clause arbitrates concurrent sweeps: of
// any number of callers racing on the same order, exactly one update affects
// a row and the rest report ErrNotFound.
func (s *LimitOrderStore) Claim(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE limit_orders
		SET status = 'filled', resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("postgres: claim limit order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AttachFill records the executed order on a claimed limit order.
func (s *LimitOrderStore) AttachFill(ctx context.Context, id, fillOrderID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE limit_orders
		SET fill_order_id = $2
		WHERE id = $1 AND status = 'filled' AND fill_order_id IS NULL`,
		id, fillOrderID)
	if err != nil {
		return fmt.Errorf("postgres: attach fill to limit order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Release puts a claimed order whose execution failed back on the book.
// Only claims with no fill attached can be released.
func (s *LimitOrderStore) Release(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE limit_orders
		SET status = 'pending', resolved_at = NULL
		WHERE id = $1 AND status = 'filled' AND fill_order_id IS NULL`, id)
	if err != nil {
		return fmt.Errorf("postgres: release limit order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Cancel transitions a pending order to cancelled.
func (s *LimitOrderStore) Cancel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE limit_orders
		SET status = 'cancelled', resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("postgres: cancel limit order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CancelAllPending cancels every resting order and returns the count.
func (s *LimitOrderStore) CancelAllPending(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE limit_orders
		SET status = 'cancelled', resolved_at = NOW()
		WHERE status = 'pending'`)
	if err != nil {
		return 0, fmt.Errorf("postgres: cancel pending limit orders: %w", err)
	}
	return tag.RowsAffected(), nil
}
