package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Valid reports whether the side is one of the known values.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Order is an executed fill. Orders are append-only history records and are
// never mutated after creation.
type Order struct {
	ID        string
	Symbol    string
	Side      OrderSide
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Total     decimal.Decimal // Quantity * Price at fill time
	CreatedAt time.Time
}

// LimitOrderStatus tracks the limit order lifecycle. Filled and cancelled are
// terminal; the rows are retained for history.
type LimitOrderStatus string

const (
	LimitOrderPending   LimitOrderStatus = "pending"
	LimitOrderFilled    LimitOrderStatus = "filled"
	LimitOrderCancelled LimitOrderStatus = "cancelled"
)

// LimitOrder is a resting conditional order. A buy fills when the market
// price drops to or below the limit; a sell fills when it rises to or above.
// Fills execute at the market price observed by the matcher, not the limit.
type LimitOrder struct {
	ID          string
	Symbol      string
	Side        OrderSide
	Quantity    decimal.Decimal
	LimitPrice  decimal.Decimal
	Status      LimitOrderStatus
	FillOrderID *string // executed order that satisfied this limit
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}
