package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantlab/papertrader/internal/domain"
)

// ReasoningStore implements domain.ReasoningStore using PostgreSQL.
type ReasoningStore struct {
	pool *pgxpool.Pool
}

// NewReasoningStore creates a new ReasoningStore.
func NewReasoningStore(pool *pgxpool.Pool) *ReasoningStore {
	return &ReasoningStore{pool: pool}
}

// Append inserts one reasoning entry.
func (s *ReasoningStore) Append(ctx context.Context, e domain.ReasoningEntry) error {
	data, err := domain.MarshalStepData(e.Data)
	if err != nil {
		return fmt.Errorf("postgres: encode reasoning data: %w", err)
	}
	const query = `
		INSERT INTO agent_reasoning (id, symbol, step, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.pool.Exec(ctx, query,
		e.ID, e.Symbol, string(e.Step), e.Message, data, e.CreatedAt); err != nil {
		return fmt.Errorf("postgres: append reasoning %s: %w", e.ID, err)
	}
	return nil
}

const reasoningSelectCols = `id, symbol, step, message, data, created_at`

func scanReasoningRows(rows pgx.Rows) ([]domain.ReasoningEntry, error) {
	var entries []domain.ReasoningEntry
	for rows.Next() {
		var e domain.ReasoningEntry
		var step string
		var data []byte
		if err := rows.Scan(&e.ID, &e.Symbol, &step, &e.Message, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Step = domain.ReasoningStep(step)
		decoded, err := domain.UnmarshalStepData(data)
		if err != nil {
			return nil, err
		}
		e.Data = decoded
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// List returns newest-first reasoning entries, optionally filtered by symbol.
func (s *ReasoningStore) List(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.ReasoningEntry, error) {
	query := `SELECT ` + reasoningSelectCols + ` FROM agent_reasoning`
	args := []any{}
	argIdx := 1
	var conds []string
	if symbol != "" {
		conds = append(conds, fmt.Sprintf("symbol = $%d", argIdx))
		args = append(args, symbol)
		argIdx++
	}
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
		return nil, fmt.Errorf("postgres: list reasoning: %w", err)
	}
	defer rows.Close()

	entries, err := scanReasoningRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan reasoning: %w", err)
	}
	return entries, nil
}

// ListBefore returns oldest-first entries created before the cutoff.
func (s *ReasoningStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ReasoningEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reasoningSelectCols+` FROM agent_reasoning
		 WHERE created_at < $1 ORDER BY created_at LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reasoning before %s: %w", cutoff, err)
	}
	defer rows.Close()

	entries, err := scanReasoningRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan reasoning before: %w", err)
	}
	return entries, nil
}

// Delete removes the identified entries and returns the count.
func (s *ReasoningStore) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM agent_reasoning WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete reasoning: %w", err)
	}
	return tag.RowsAffected(), nil
}

// HistoryStore implements domain.HistoryStore using PostgreSQL.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Append inserts one decision audit row.
func (s *HistoryStore) Append(ctx context.Context, e domain.HistoryEntry) error {
	const query = `
		INSERT INTO agent_history (id, symbol, action, position_size, reason,
			executed, order_id, guardrail_triggered, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := s.pool.Exec(ctx, query,
		e.ID, e.Symbol, string(e.Action), e.PositionSize, e.Reason,
		e.Executed, e.OrderID, e.GuardrailTriggered, e.CreatedAt); err != nil {
		return fmt.Errorf("postgres: append history %s: %w", e.ID, err)
	}
	return nil
}

// MarkExecuted flips an audit row to executed and records the ledger order.
func (s *HistoryStore) MarkExecuted(ctx context.Context, id, orderID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_history SET executed = TRUE, order_id = $2 WHERE id = $1`,
		id, orderID)
	if err != nil {
		return fmt.Errorf("postgres: mark history executed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const historySelectCols = `id, symbol, action, position_size, reason, executed, order_id, guardrail_triggered, created_at`

func scanHistoryRows(rows pgx.Rows) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var action string
		if err := rows.Scan(&e.ID, &e.Symbol, &action, &e.PositionSize, &e.Reason,
			&e.Executed, &e.OrderID, &e.GuardrailTriggered, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = domain.Action(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// List returns newest-first audit entries.
func (s *HistoryStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historySelectCols + ` FROM agent_history`
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
		return nil, fmt.Errorf("postgres: list history: %w", err)
	}
	defer rows.Close()

	entries, err := scanHistoryRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan history: %w", err)
	}
	return entries, nil
}

// ListBefore returns oldest-first audit entries created before the cutoff.
func (s *HistoryStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+historySelectCols+` FROM agent_history
		 WHERE created_at < $1 ORDER BY created_at LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list history before %s: %w", cutoff, err)
	}
	defer rows.Close()

	entries, err := scanHistoryRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan history before: %w", err)
	}
	return entries, nil
}

// Delete removes the identified audit entries.
func (s *HistoryStore) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM agent_history WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete history: %w", err)
	}
	return tag.RowsAffected(), nil
}
