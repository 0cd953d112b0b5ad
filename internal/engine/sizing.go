package engine

import "fmt"

// SizeDecision is the outcome of the entry-size computation. Available is
// false when no sizing information exists; the engine still proceeds and
// lets the exchange's own rejection of a zero quantity become the recorded
// outcome.
type SizeDecision struct {
	Notional  float64
	Available bool
	Fresh     bool   // computed this signal (cycle boundary) rather than carried over
	Detail    string // human-readable explanation for the diagnostic trace
}

// ComputeEntrySize derives the notional size (in quote currency) for the
// next entry order.
//
// While a protective limit order is open the cycle is in progress and the
// persisted size is carried unchanged; a missing or zero persisted size
// yields "no sizing information" rather than an invented value. On a cycle
// boundary the size is computed fresh with the compounding formula
//
//	max((positionValue + availableBalance - safety) / pyramiding, 0)
//
// positionValue is 0 when no position exists, which recovers the plain
// (balance - safety) / pyramiding first-entry formula.
func ComputeEntrySize(balance float64, balanceKnown bool, positionValue, safety, pyramiding, persistedSize float64, protectiveOpen bool) SizeDecision {
	if protectiveOpen {
		if persistedSize > 0 {
			return SizeDecision{
				Notional:  persistedSize,
				Available: true,
				Detail:    fmt.Sprintf("cycle in progress, carrying persisted order size %g", persistedSize),
			}
		}
		return SizeDecision{
			Detail: "cycle in progress but no persisted order size available",
		}
	}

	if !balanceKnown {
		return SizeDecision{
			Fresh:  true,
			Detail: "balance unavailable, cannot compute entry size",
		}
	}
	if pyramiding <= 0 {
		// Never divide by a non-positive factor; a defined "no value"
		// result, not an error.
		return SizeDecision{
			Fresh:  true,
			Detail: fmt.Sprintf("pyramiding factor %g is not positive, cannot compute entry size", pyramiding),
		}
	}

	size := (positionValue + balance - safety) / pyramiding
	if size < 0 {
		size = 0
	}
	return SizeDecision{
		Notional:  size,
		Available: true,
		Fresh:     true,
		Detail: fmt.Sprintf("computed entry size ((position %g + balance %g - safety %g) / pyramiding %g) = %g",
			positionValue, balance, safety, pyramiding, size),
	}
}
