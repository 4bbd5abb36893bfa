package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the single paper-trading account. Cash is decimal money; it is
// mutated only through order execution, deposit/withdraw, and reset.
type Account struct {
	CashBalance    decimal.Decimal
	InitialBalance decimal.Decimal
	UpdatedAt      time.Time
}

// Position is an open holding, keyed by symbol. Quantity is fractional and
// strictly positive: a position whose quantity reaches zero is deleted, never
// stored as a zero row.
type Position struct {
	Symbol      string
	Quantity    decimal.Decimal
	AverageCost decimal.Decimal
	UpdatedAt   time.Time
}

// MarketValue returns the position's value at the given price.
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}

// UnrealizedPnLPct returns the percentage gain or loss of the position at the
// given price, relative to its average cost. Zero average cost yields zero.
func (p Position) UnrealizedPnLPct(price decimal.Decimal) decimal.Decimal {
	if p.AverageCost.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.AverageCost).Div(p.AverageCost).Mul(decimal.NewFromInt(100))
}

// ApplyBuy returns the position after a buy fill, recomputing the weighted
// average cost: (old_qty*old_avg + fill_qty*price) / (old_qty + fill_qty).
// Applying a buy to a zero-quantity position simply adopts the fill price.
func (p Position) ApplyBuy(quantity, price decimal.Decimal) Position {
	newQty := p.Quantity.Add(quantity)
	if newQty.IsZero() {
		return p
	}
	oldCost := p.Quantity.Mul(p.AverageCost)
	fillCost := quantity.Mul(price)
	p.AverageCost = oldCost.Add(fillCost).Div(newQty)
	p.Quantity = newQty
	return p
}

// ApplySell returns the position after a sell fill. The average cost is left
// untouched; realized P&L is a derived reporting value, not persisted state.
func (p Position) ApplySell(quantity decimal.Decimal) Position {
	p.Quantity = p.Quantity.Sub(quantity)
	return p
}
