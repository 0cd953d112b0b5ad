package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveReferencePrice_HistoryMean(t *testing.T) {
	ref := ResolveReferencePrice([]float64{1, 2, 3}, 10, false)
	assert.True(t, ref.Valid)
	assert.False(t, ref.FromFallback)
	assert.Equal(t, 2.0, ref.Price)
}

func TestResolveReferencePrice_MeanRoundedToSixDigits(t *testing.T) {
	ref := ResolveReferencePrice([]float64{0.1, 0.2}, 0, false)
	assert.True(t, ref.Valid)
	assert.Equal(t, 0.15, ref.Price)

	ref = ResolveReferencePrice([]float64{1, 2}, 0, false)
	assert.Equal(t, 1.5, ref.Price)

	// 1/3 has no exact 6-digit representation.
	ref = ResolveReferencePrice([]float64{0, 0, 1}, 0, false)
	assert.Equal(t, 0.333333, ref.Price)
}

func TestResolveReferencePrice_EmptyHistoryFallsBack(t *testing.T) {
	ref := ResolveReferencePrice(nil, 10, false)
	assert.True(t, ref.Valid)
	assert.True(t, ref.FromFallback)
	assert.Equal(t, 9.98, ref.Price)
}

func TestResolveReferencePrice_DirtyStatusForcesFallback(t *testing.T) {
	// A populated history is ignored while the status marker is set.
	ref := ResolveReferencePrice([]float64{1, 2, 3}, 10, true)
	assert.True(t, ref.Valid)
	assert.True(t, ref.FromFallback)
	assert.Equal(t, 9.98, ref.Price)
}

func TestResolveReferencePrice_NothingAvailable(t *testing.T) {
	ref := ResolveReferencePrice(nil, 0, false)
	assert.False(t, ref.Valid)

	ref = ResolveReferencePrice([]float64{1, 2}, 0, true)
	assert.False(t, ref.Valid)
}

func TestResolveReferencePrice_NonFiniteEntriesSkipped(t *testing.T) {
	ref := ResolveReferencePrice([]float64{1, math.NaN(), 3, math.Inf(1)}, 0, false)
	assert.True(t, ref.Valid)
	assert.False(t, ref.FromFallback)
	assert.Equal(t, 2.0, ref.Price)
}

func TestResolveReferencePrice_AllEntriesDiscardedFallsBack(t *testing.T) {
	ref := ResolveReferencePrice([]float64{math.NaN()}, 4, false)
	assert.True(t, ref.Valid)
	assert.True(t, ref.FromFallback)
	assert.Equal(t, 3.992, ref.Price)
}
