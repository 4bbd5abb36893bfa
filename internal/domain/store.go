package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries. Since is
// inclusive and Until exclusive, so adjacent windows do not overlap.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerStore owns the paper account's balance-mutating state. ExecuteOrder,
// AdjustCash and Reset are each a single atomic unit: a crash or concurrent
// call must never leave cash decremented without the position updated, or
// vice versa.
type LedgerStore interface {
	Account(ctx context.Context) (Account, error)
	Positions(ctx context.Context) ([]Position, error)
	// Position returns ErrNotFound when no row exists for the symbol.
	Position(ctx context.Context, symbol string) (Position, error)
	// ExecuteOrder atomically settles a fill: for a buy it debits cash and
	// upserts the position with a recomputed weighted average cost, for a
	// sell it credits cash and reduces (or deletes) the position. It returns
	// ErrInsufficientFunds / ErrInsufficientShares without side effects when
	// the precondition fails.
	ExecuteOrder(ctx context.Context, side OrderSide, symbol string, quantity, price decimal.Decimal) (Order, error)
	// AdjustCash applies a signed delta to the cash balance. A withdrawal
	// that would drive cash negative returns ErrInsufficientFunds.
	AdjustCash(ctx context.Context, delta decimal.Decimal) (Account, error)
	// Reset restores the starting cash and deletes all positions and order
	// history. Resting limit orders are cancelled by the caller.
	Reset(ctx context.Context, startingCash decimal.Decimal) error
	ListOrders(ctx context.Context, opts ListOpts) ([]Order, error)
}

// LimitOrderStore persists resting limit orders and their terminal history.
type LimitOrderStore interface {
	Create(ctx context.Context, order LimitOrder) error
	GetByID(ctx context.Context, id string) (LimitOrder, error)
	ListPending(ctx context.Context) ([]LimitOrder, error)
	List(ctx context.Context, opts ListOpts) ([]LimitOrder, error)
	// Claim transitions pending -> filled before the trade is booked. The
	// status predicate arbitrates concurrent sweeps: exactly one caller wins
	// a given order, the rest get ErrNotFound and skip it. The winner records
	// the executed order with AttachFill, or undoes the claim with Release
	// when execution fails so the order keeps resting.
	Claim(ctx context.Context, id string) error
	// AttachFill records the executed ledger order on a claimed limit order.
	AttachFill(ctx context.Context, id, fillOrderID string) error
	// Release returns a claimed order with no fill attached to pending.
	Release(ctx context.Context, id string) error
	// Cancel transitions pending -> cancelled; ErrNotFound otherwise.
	Cancel(ctx context.Context, id string) error
	// CancelAllPending cancels every resting order (used by account reset so
	// a later sweep cannot produce a phantom fill).
	CancelAllPending(ctx context.Context) (int64, error)
}

// SettingsStore persists the AgentSettings singleton.
type SettingsStore interface {
	Get(ctx context.Context) (AgentSettings, error)
	Update(ctx context.Context, s AgentSettings) (AgentSettings, error)
}

// ReasoningStore persists the append-only reasoning trail.
type ReasoningStore interface {
	Append(ctx context.Context, e ReasoningEntry) error
	// List returns newest-first entries, optionally filtered by symbol.
	List(ctx context.Context, symbol string, opts ListOpts) ([]ReasoningEntry, error)
	// ListBefore returns oldest-first entries created before the cutoff, for
	// cold-storage archival.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]ReasoningEntry, error)
	// Delete removes the identified entries and returns the count, so the
	// archiver prunes exactly the rows it uploaded.
	Delete(ctx context.Context, ids []string) (int64, error)
}

// HistoryStore persists the append-only decision audit trail.
type HistoryStore interface {
	Append(ctx context.Context, e HistoryEntry) error
	MarkExecuted(ctx context.Context, id, orderID string) error
	List(ctx context.Context, opts ListOpts) ([]HistoryEntry, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]HistoryEntry, error)
	Delete(ctx context.Context, ids []string) (int64, error)
}

// WatchlistStore persists user-tracked symbols.
type WatchlistStore interface {
	Add(ctx context.Context, item WatchlistItem) error
	Remove(ctx context.Context, symbol string) error
	List(ctx context.Context) ([]WatchlistItem, error)
}

// QuoteCache is a short-lived shared cache so the agent cycle, the limit
// order matcher, and the API see one consistent quote per symbol.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	// GetQuote returns ErrNotFound on a cache miss or expired entry.
	GetQuote(ctx context.Context, symbol string) (Quote, error)
}
