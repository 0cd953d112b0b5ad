package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeEntrySize_FreshFirstEntry(t *testing.T) {
	// (0 + 1000 - 96) / 8 = 113
	dec := ComputeEntrySize(1000, true, 0, 96, 8, 0, false)
	assert.True(t, dec.Available)
	assert.True(t, dec.Fresh)
	assert.Equal(t, 113.0, dec.Notional)
}

func TestComputeEntrySize_FreshWithPosition(t *testing.T) {
	// (500 + 1000 - 96) / 8 = 175.5
	dec := ComputeEntrySize(1000, true, 500, 96, 8, 0, false)
	assert.True(t, dec.Available)
	assert.Equal(t, 175.5, dec.Notional)
}

func TestComputeEntrySize_ClampsNegativeToZero(t *testing.T) {
	dec := ComputeEntrySize(50, true, 0, 96, 8, 0, false)
	assert.True(t, dec.Available)
	assert.Equal(t, 0.0, dec.Notional)
}

func TestComputeEntrySize_NonPositivePyramiding(t *testing.T) {
	for _, pyramiding := range []float64{0, -3} {
		dec := ComputeEntrySize(1000, true, 0, 96, pyramiding, 0, false)
		assert.False(t, dec.Available, "pyramiding %g", pyramiding)
		assert.Equal(t, 0.0, dec.Notional)
	}
}

func TestComputeEntrySize_BalanceUnknown(t *testing.T) {
	dec := ComputeEntrySize(0, false, 0, 96, 8, 0, false)
	assert.False(t, dec.Available)
}

func TestComputeEntrySize_MidCycleCarriesPersisted(t *testing.T) {
	dec := ComputeEntrySize(1000, true, 500, 96, 8, 42.5, true)
	assert.True(t, dec.Available)
	assert.False(t, dec.Fresh)
	assert.Equal(t, 42.5, dec.Notional)
}

func TestComputeEntrySize_MidCycleMissingPersisted(t *testing.T) {
	// Mid-cycle with no stored size: no value is invented, even though the
	// inputs for a fresh computation are all present.
	dec := ComputeEntrySize(1000, true, 500, 96, 8, 0, true)
	assert.False(t, dec.Available)
	assert.Equal(t, 0.0, dec.Notional)
}
