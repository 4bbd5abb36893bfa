package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quantlab/papertrader/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Every
// balance-mutating method runs as a single transaction with the account row
// locked, so cash and position updates commit or roll back together.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// EnsureSeeded inserts the singleton account row if it does not exist yet.
func (s *LedgerStore) EnsureSeeded(ctx context.Context, startingCash decimal.Decimal) error {
	const query = `
		INSERT INTO account (id, cash_balance, initial_balance)
		VALUES (1, $1, $1)
		ON CONFLICT (id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query, startingCash.String()); err != nil {
		return fmt.Errorf("postgres: seed account: %w", err)
	}
	return nil
}

// Account returns the singleton paper account.
func (s *LedgerStore) Account(ctx context.Context) (domain.Account, error) {
	const query = `
		SELECT cash_balance::text, initial_balance::text, updated_at
		FROM account WHERE id = 1`

	var cash, initial string
	var acct domain.Account
	err := s.pool.QueryRow(ctx, query).Scan(&cash, &initial, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account: %w", err)
	}
	if acct.CashBalance, err = decimal.NewFromString(cash); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: parse cash balance: %w", err)
	}
	if acct.InitialBalance, err = decimal.NewFromString(initial); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: parse initial balance: %w", err)
	}
	return acct, nil
}

const positionSelectCols = `symbol, quantity::text, average_cost::text, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var qty, avg string
	if err := row.Scan(&p.Symbol, &qty, &avg, &p.UpdatedAt); err != nil {
		return domain.Position{}, err
	}
	var err error
	if p.Quantity, err = decimal.NewFromString(qty); err != nil {
		return domain.Position{}, fmt.Errorf("parse quantity: %w", err)
	}
	if p.AverageCost, err = decimal.NewFromString(avg); err != nil {
		return domain.Position{}, fmt.Errorf("parse average cost: %w", err)
	}
	return p, nil
}

// Positions returns all open positions ordered by symbol.
func (s *LedgerStore) Positions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Position returns the position for one symbol, or domain.ErrNotFound.
func (s *LedgerStore) Position(ctx context.Context, symbol string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE symbol = $1`, symbol)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", symbol, err)
	}
	return p, nil
}

// ExecuteOrder settles a market fill atomically: cash, position, and the
// order history row commit together or not at all. Precondition failures
// (insufficient cash or shares) roll back and return the sentinel error.
func (s *LedgerStore) ExecuteOrder(ctx context.Context, side domain.OrderSide, symbol string, quantity, price decimal.Decimal) (domain.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: begin execute order: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cashStr string
	err = tx.QueryRow(ctx,
		`SELECT cash_balance::text FROM account WHERE id = 1 FOR UPDATE`).Scan(&cashStr)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: lock account: %w", err)
	}
	cash, err := decimal.NewFromString(cashStr)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: parse cash balance: %w", err)
	}

	total := quantity.Mul(price)

	switch side {
	case domain.OrderSideBuy:
		if total.GreaterThan(cash) {
			return domain.Order{}, domain.ErrInsufficientFunds
		}

		row := tx.QueryRow(ctx,
			`SELECT `+positionSelectCols+` FROM positions WHERE symbol = $1 FOR UPDATE`, symbol)
		pos, posErr := scanPosition(row)
		switch {
		case errors.Is(posErr, pgx.ErrNoRows):
			pos = domain.Position{Symbol: symbol}
		case posErr != nil:
			return domain.Order{}, fmt.Errorf("postgres: lock position %s: %w", symbol, posErr)
		}
		pos = pos.ApplyBuy(quantity, price)

		if _, err = tx.Exec(ctx,
			`UPDATE account SET cash_balance = cash_balance - $1, updated_at = NOW() WHERE id = 1`,
			total.String()); err != nil {
			return domain.Order{}, fmt.Errorf("postgres: debit cash: %w", err)
		}
		if _, err = tx.Exec(ctx, `
			INSERT INTO positions (symbol, quantity, average_cost, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (symbol) DO UPDATE SET
				quantity = EXCLUDED.quantity,
				average_cost = EXCLUDED.average_cost,
				updated_at = NOW()`,
			symbol, pos.Quantity.String(), pos.AverageCost.String()); err != nil {
			return domain.Order{}, fmt.Errorf("postgres: upsert position %s: %w", symbol, err)
		}

	case domain.OrderSideSell:
		row := tx.QueryRow(ctx,
			`SELECT `+positionSelectCols+` FROM positions WHERE symbol = $1 FOR UPDATE`, symbol)
		pos, posErr := scanPosition(row)
		if errors.Is(posErr, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrInsufficientShares
		}
		if posErr != nil {
			return domain.Order{}, fmt.Errorf("postgres: lock position %s: %w", symbol, posErr)
		}
		if quantity.GreaterThan(pos.Quantity) {
			return domain.Order{}, domain.ErrInsufficientShares
		}

		if _, err = tx.Exec(ctx,
			`UPDATE account SET cash_balance = cash_balance + $1, updated_at = NOW() WHERE id = 1`,
			total.String()); err != nil {
			return domain.Order{}, fmt.Errorf("postgres: credit cash: %w", err)
		}

		pos = pos.ApplySell(quantity)
		if pos.Quantity.IsZero() {
			// Fully liquidated positions are deleted, never stored as zero rows.
			if _, err = tx.Exec(ctx,
				`DELETE FROM positions WHERE symbol = $1`, symbol); err != nil {
				return domain.Order{}, fmt.Errorf("postgres: delete position %s: %w", symbol, err)
			}
		} else {
			if _, err = tx.Exec(ctx,
				`UPDATE positions SET quantity = $2, updated_at = NOW() WHERE symbol = $1`,
				symbol, pos.Quantity.String()); err != nil {
				return domain.Order{}, fmt.Errorf("postgres: reduce position %s: %w", symbol, err)
			}
		}

	default:
		return domain.Order{}, domain.ErrInvalidOrder
	}

	order := domain.Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Total:     total,
		CreatedAt: time.Now().UTC(),
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO orders (id, symbol, side, quantity, price, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.Symbol, string(order.Side),
		order.Quantity.String(), order.Price.String(), order.Total.String(),
		order.CreatedAt); err != nil {
		return domain.Order{}, fmt.Errorf("postgres: insert order: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("postgres: commit execute order: %w", err)
	}
	return order, nil
}

// AdjustCash applies a signed delta to the cash balance inside a transaction.
func (s *LedgerStore) AdjustCash(ctx context.Context, delta decimal.Decimal) (domain.Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: begin adjust cash: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cashStr string
	err = tx.QueryRow(ctx,
		`SELECT cash_balance::text FROM account WHERE id = 1 FOR UPDATE`).Scan(&cashStr)
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: lock account: %w", err)
	}
	cash, err := decimal.NewFromString(cashStr)
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: parse cash balance: %w", err)
	}

	newCash := cash.Add(delta)
	if newCash.IsNegative() {
		return domain.Account{}, domain.ErrInsufficientFunds
	}

	if _, err = tx.Exec(ctx,
		`UPDATE account SET cash_balance = $1, updated_at = NOW() WHERE id = 1`,
		newCash.String()); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: adjust cash: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.Account{}, fmt.Errorf("postgres: commit adjust cash: %w", err)
	}
	return s.Account(ctx)
}

// Reset restores the starting cash and wipes positions and order history.
func (s *LedgerStore) Reset(ctx context.Context, startingCash decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx,
		`UPDATE account SET cash_balance = $1, initial_balance = $1, updated_at = NOW() WHERE id = 1`,
		startingCash.String()); err != nil {
		return fmt.Errorf("postgres: reset account: %w", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("postgres: reset positions: %w", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM orders`); err != nil {
		return fmt.Errorf("postgres: reset orders: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit reset: %w", err)
	}
	return nil
}

// ListOrders returns executed orders, newest first.
func (s *LedgerStore) ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT id, symbol, side, quantity::text, price::text, total::text, created_at FROM orders`
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
	query += " ORDER BY created_at DESC"
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
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var side, qty, price, total string
		if err := rows.Scan(&o.ID, &o.Symbol, &side, &qty, &price, &total, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		o.Side = domain.OrderSide(side)
		if o.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("postgres: parse order quantity: %w", err)
		}
		if o.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("postgres: parse order price: %w", err)
		}
		if o.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("postgres: parse order total: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
