package engine

import "math"

// fallbackDiscount approximates "average cost net of round-trip fee" when
// the persisted history cannot be used: the exchange-reported average entry
// price is discounted by a fixed 0.2%.
const fallbackDiscount = 0.998

// ReferencePrice is the price anchoring the take-profit calculation.
type ReferencePrice struct {
	Price        float64
	FromFallback bool // derived from the exchange average, not the history
	Valid        bool
}

// round6 rounds to 6 fractional digits, the precision used for all derived
// prices.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// historyMean is the arithmetic mean of the finite entries, rounded to 6
// digits. Non-finite entries are discarded; an empty or fully-discarded
// history yields 0.
//
// The mean assumes all entries of a cycle carry equal notional size. The
// history stores prices only, so there is no volume to weight by; unequal
// entry sizes skew the result (known limitation).
func historyMean(history []float64) float64 {
	var sum float64
	var n int
	for _, p := range history {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			continue
		}
		sum += p
		n++
	}
	if n == 0 {
		return 0
	}
	return round6(sum / float64(n))
}

// ResolveReferencePrice computes the price used for take-profit placement.
//
// Precedence is strict: the persisted history wins whenever the status
// marker is clean and the mean is positive. The exchange fallback
// (liveAvgPrice discounted by 0.2%) exists only to keep the strategy
// operative through a persistence outage; statusDirty forces it because a
// dirty history must not be trusted. If the fallback source is also
// unavailable the result is not valid.
func ResolveReferencePrice(history []float64, liveAvgPrice float64, statusDirty bool) ReferencePrice {
	if !statusDirty {
		if mean := historyMean(history); mean > 0 {
			return ReferencePrice{Price: mean, Valid: true}
		}
	}
	if liveAvgPrice > 0 {
		return ReferencePrice{
			Price:        round6(liveAvgPrice * fallbackDiscount),
			FromFallback: true,
			Valid:        true,
		}
	}
	return ReferencePrice{}
}
