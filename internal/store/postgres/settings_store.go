package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantlab/papertrader/internal/domain"
)

// SettingsStore implements domain.SettingsStore using PostgreSQL. The agent
// settings live in a singleton row.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a new SettingsStore.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// EnsureSeeded inserts the default settings row if it does not exist yet.
func (s *SettingsStore) EnsureSeeded(ctx context.Context, defaults domain.AgentSettings) error {
	weights, err := json.Marshal(defaults.Weights)
	if err != nil {
		return fmt.Errorf("postgres: marshal default weights: %w", err)
	}
	const query = `
		INSERT INTO agent_settings (id, enabled, include_volatile, full_control,
			stop_loss_pct, take_profit_pct, confidence_floor, weights)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	_, err = s.pool.Exec(ctx, query,
		defaults.Enabled, defaults.IncludeVolatile, defaults.FullControl,
		defaults.StopLossPct, defaults.TakeProfitPct, defaults.ConfidenceFloor,
		weights)
	if err != nil {
		return fmt.Errorf("postgres: seed agent settings: %w", err)
	}
	return nil
}

// Get returns the settings singleton.
func (s *SettingsStore) Get(ctx context.Context) (domain.AgentSettings, error) {
	const query = `
		SELECT enabled, include_volatile, full_control,
			stop_loss_pct, take_profit_pct, confidence_floor, weights, updated_at
		FROM agent_settings WHERE id = 1`

	var out domain.AgentSettings
	var weights []byte
	err := s.pool.QueryRow(ctx, query).Scan(
		&out.Enabled, &out.IncludeVolatile, &out.FullControl,
		&out.StopLossPct, &out.TakeProfitPct, &out.ConfidenceFloor,
		&weights, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AgentSettings{}, domain.ErrNotFound
		}
		return domain.AgentSettings{}, fmt.Errorf("postgres: get agent settings: %w", err)
	}
	if err := json.Unmarshal(weights, &out.Weights); err != nil {
		return domain.AgentSettings{}, fmt.Errorf("postgres: unmarshal weights: %w", err)
	}
	return out, nil
}

// Update replaces the settings singleton and returns the stored value.
func (s *SettingsStore) Update(ctx context.Context, in domain.AgentSettings) (domain.AgentSettings, error) {
	weights, err := json.Marshal(in.Weights)
	if err != nil {
		return domain.AgentSettings{}, fmt.Errorf("postgres: marshal weights: %w", err)
	}
	const query = `
		UPDATE agent_settings SET
			enabled = $1,
			include_volatile = $2,
			full_control = $3,
			stop_loss_pct = $4,
			take_profit_pct = $5,
			confidence_floor = $6,
			weights = $7,
			updated_at = NOW()
		WHERE id = 1`
	tag, err := s.pool.Exec(ctx, query,
		in.Enabled, in.IncludeVolatile, in.FullControl,
		in.StopLossPct, in.TakeProfitPct, in.ConfidenceFloor, weights)
	if err != nil {
		return domain.AgentSettings{}, fmt.Errorf("postgres: update agent settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.AgentSettings{}, domain.ErrNotFound
	}
	return s.Get(ctx)
}
