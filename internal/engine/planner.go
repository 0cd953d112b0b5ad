package engine

import "pyramidbot/internal/domain"

// stopLossBuffer keeps the stop-loss a fixed 2% away from the liquidation
// price, on the safe side of it.
const stopLossBuffer = 0.02

// ProtectiveOrder is one planned protective order target.
type ProtectiveOrder struct {
	Price    float64
	Quantity float64
}

// ProtectivePlan holds the protective orders to (re)place for a position.
// A nil entry means the inputs did not justify that order.
type ProtectivePlan struct {
	TakeProfit *ProtectiveOrder
	StopLoss   *ProtectiveOrder
}

// PlanProtectiveOrders derives the take-profit and stop-loss targets from
// the current position and the resolved reference price.
//
// Both orders use the exchange-reported position quantity so they always
// cover the whole live position, not just the latest increment. The
// take-profit is sellPct percent away from the reference price in the
// profitable direction; the stop-loss sits 2% from the liquidation price
// (above it for LONG, below it for SHORT).
func PlanProtectiveOrders(side domain.PositionSide, referencePrice, sellPct, positionQty, liquidationPrice float64) ProtectivePlan {
	var plan ProtectivePlan
	if positionQty <= 0 {
		return plan
	}

	if referencePrice > 0 && sellPct > 0 {
		var price float64
		if side == domain.Short {
			price = referencePrice * (1 - sellPct/100)
		} else {
			price = referencePrice * (1 + sellPct/100)
		}
		if price > 0 {
			plan.TakeProfit = &ProtectiveOrder{Price: round6(price), Quantity: positionQty}
		}
	}

	if liquidationPrice > 0 {
		var price float64
		if side == domain.Short {
			price = liquidationPrice * (1 - stopLossBuffer)
		} else {
			price = liquidationPrice * (1 + stopLossBuffer)
		}
		plan.StopLoss = &ProtectiveOrder{Price: round6(price), Quantity: positionQty}
	}

	return plan
}
