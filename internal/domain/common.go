package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionSide represents the direction of a futures position in hedge mode.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// ParsePositionSide normalises a position side string; anything that is not
// SHORT is treated as LONG, matching the signal default.
func ParsePositionSide(s string) PositionSide {
	if s == string(Short) || s == "short" {
		return Short
	}
	return Long
}

// OpeningSide is the order side that increases the position.
func (p PositionSide) OpeningSide() OrderSide {
	if p == Short {
		return Sell
	}
	return Buy
}

// ClosingSide is the order side that reduces the position. Protective orders
// (take-profit limit, stop-loss) are always placed on this side.
func (p PositionSide) ClosingSide() OrderSide {
	if p == Short {
		return Buy
	}
	return Sell
}

// OrderType represents the exchange order type.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

// CycleState classifies a pyramiding cycle as observed at signal time. It is
// derived exactly once per signal from the open-order read: a missing
// protective limit order means the previous cycle closed.
type CycleState string

const (
	CycleEmpty        CycleState = "EMPTY"
	CycleAccumulating CycleState = "ACCUMULATING"
)

// StatusDirty is the persisted status marker for a purchase-price history
// that may be incomplete after a crash or persistence failure. While set,
// the average-price resolver skips the history and uses the exchange
// fallback until the cycle resets.
const StatusDirty = "error"
