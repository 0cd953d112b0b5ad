package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyramidbot/internal/domain"
)

func TestPlanProtectiveOrders_Long(t *testing.T) {
	plan := PlanProtectiveOrders(domain.Long, 50, 5, 2, 100)

	require.NotNil(t, plan.TakeProfit)
	assert.Equal(t, 52.5, plan.TakeProfit.Price)
	assert.Equal(t, 2.0, plan.TakeProfit.Quantity)

	require.NotNil(t, plan.StopLoss)
	assert.Equal(t, 102.0, plan.StopLoss.Price)
	assert.Equal(t, 2.0, plan.StopLoss.Quantity)
}

func TestPlanProtectiveOrders_ShortMirrors(t *testing.T) {
	plan := PlanProtectiveOrders(domain.Short, 50, 5, 2, 100)

	require.NotNil(t, plan.TakeProfit)
	assert.Equal(t, 47.5, plan.TakeProfit.Price)

	require.NotNil(t, plan.StopLoss)
	assert.Equal(t, 98.0, plan.StopLoss.Price)
}

func TestPlanProtectiveOrders_NoPosition(t *testing.T) {
	plan := PlanProtectiveOrders(domain.Long, 50, 5, 0, 100)
	assert.Nil(t, plan.TakeProfit)
	assert.Nil(t, plan.StopLoss)
}

func TestPlanProtectiveOrders_NoReferencePrice(t *testing.T) {
	plan := PlanProtectiveOrders(domain.Long, 0, 5, 2, 100)
	assert.Nil(t, plan.TakeProfit)
	require.NotNil(t, plan.StopLoss)
	assert.Equal(t, 102.0, plan.StopLoss.Price)
}

func TestPlanProtectiveOrders_NoSellPct(t *testing.T) {
	plan := PlanProtectiveOrders(domain.Long, 50, 0, 2, 100)
	assert.Nil(t, plan.TakeProfit)
	require.NotNil(t, plan.StopLoss)
}

func TestPlanProtectiveOrders_NoLiquidationPrice(t *testing.T) {
	// A fresh position with no leverage pressure can report liquidation 0.
	plan := PlanProtectiveOrders(domain.Long, 50, 5, 2, 0)
	require.NotNil(t, plan.TakeProfit)
	assert.Nil(t, plan.StopLoss)
}
