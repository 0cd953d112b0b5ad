package domain

import (
	"fmt"
	"strings"
)

// Signal is one inbound trading trigger. Exchange credentials are passed
// through to the exchange adapter for the duration of the request and never
// stored.
type Signal struct {
	APIKey       string  `json:"api_key"`
	SecretKey    string  `json:"secret_key"`
	Symbol       string  `json:"symbol"`        // e.g. "BTC-USDT"
	PositionSide string  `json:"position_side"` // LONG (default) or SHORT
	SellPct      float64 `json:"sell_percentage"`
	Price        float64 `json:"price"`      // declared entry price, appended to the purchase history
	Pyramiding   float64 `json:"pyramiding"` // leverage setting and entry-size divisor
	Safety       float64 `json:"safety"`     // balance reserve excluded from sizing
	Alarm        int     `json:"alarm"`      // follow-up purchase threshold for alerts
	Namespace    string  `json:"namespace"`  // opaque state-store namespace; empty disables persistence
}

// Validate rejects signals that must not trigger any external call.
func (s *Signal) Validate() error {
	if s.APIKey == "" || s.SecretKey == "" {
		return fmt.Errorf("api_key and secret_key are required")
	}
	if s.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	return nil
}

// Side returns the normalised position side.
func (s *Signal) Side() PositionSide {
	return ParsePositionSide(s.PositionSide)
}

// BaseAsset extracts the leading currency from the symbol ("BTC" from
// "BTC-USDT"). It is the key for all persisted per-asset records.
func (s *Signal) BaseAsset() string {
	if i := strings.Index(s.Symbol, "-"); i > 0 {
		return s.Symbol[:i]
	}
	for _, quote := range []string{"USDT", "USDC", "BUSD"} {
		if base, ok := strings.CutSuffix(s.Symbol, quote); ok && base != "" {
			return base
		}
	}
	return s.Symbol
}
