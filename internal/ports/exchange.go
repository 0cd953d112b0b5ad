package ports

import (
	"context"
	"time"

	"pyramidbot/internal/domain"
)

// OrderResponse represents the essential details returned after placing or
// cancelling an order.
type OrderResponse struct {
	OrderID       int64               // Exchange's order ID
	Symbol        string              // Symbol for the order
	ClientOrderID string              // User-defined order ID
	Price         float64             // Price of the order (0 for market orders initially)
	AvgPrice      float64             // Average filled price
	OrigQuantity  float64             // Original quantity requested
	ExecutedQty   float64             // Quantity filled
	Status        string              // Order status (e.g., NEW, FILLED, CANCELED)
	Type          domain.OrderType    // Order type (MARKET, LIMIT, STOP_MARKET)
	Side          domain.OrderSide    // Order side (BUY, SELL)
	PositionSide  domain.PositionSide // Hedge-mode position side
	Timestamp     time.Time           // Time the order response was generated
}

// OpenOrder is one currently-open order as reported by the exchange. The
// engine reads these to classify stale protective orders and to cancel them
// by id.
type OpenOrder struct {
	OrderID      int64
	Symbol       string
	Side         domain.OrderSide
	PositionSide domain.PositionSide
	Type         domain.OrderType
	Price        float64
	StopPrice    float64
	OrigQuantity float64
	Status       string
}

// IsProtectiveLimit reports whether the order is the take-profit limit
// bracketing an open position on the given side.
func (o *OpenOrder) IsProtectiveLimit(side domain.PositionSide) bool {
	return o.Type == domain.OrderTypeLimit &&
		o.Side == side.ClosingSide() &&
		o.PositionSide == side
}

// IsStop reports whether the order is a stop-market order on the given side.
func (o *OpenOrder) IsStop(side domain.PositionSide) bool {
	return o.Type == domain.OrderTypeStopMarket && o.PositionSide == side
}

// PositionRisk represents the exchange-reported snapshot of an open position.
type PositionRisk struct {
	Symbol           string
	PositionSide     domain.PositionSide
	PositionAmt      float64 // signed quantity (negative for short)
	EntryPrice       float64 // average entry price
	MarkPrice        float64
	UnRealizedProfit float64
	LiquidationPrice float64
	Leverage         int
}

// ExchangeClient defines the interface for interacting with a futures
// exchange. This abstraction decouples the reconciliation engine from the
// specific exchange implementation.
type ExchangeClient interface {
	// GetAccountBalance retrieves the available balance for an asset (e.g. "USDT").
	GetAccountBalance(ctx context.Context, asset string) (float64, error)

	// GetMarkPrice retrieves the current mark price for a symbol.
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)

	// SetLeverage sets the leverage for a symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// GetOpenOrders lists all currently-open orders for a symbol.
	GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)

	// GetPositionRisk retrieves the position snapshot for a symbol and side.
	// Returns nil if no position exists.
	GetPositionRisk(ctx context.Context, symbol string, side domain.PositionSide) (*PositionRisk, error)

	// PlaceMarketOrder places a market order.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, positionSide domain.PositionSide, quantity string) (*OrderResponse, error)

	// PlaceLimitOrder places a GTC limit order.
	PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, positionSide domain.PositionSide, quantity, price string) (*OrderResponse, error)

	// PlaceStopMarketOrder places a stop-market order triggered at stopPrice.
	PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, positionSide domain.PositionSide, quantity, stopPrice string) (*OrderResponse, error)

	// CancelOrder cancels an existing open order by its ID.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)
}

// ExchangeClientFactory builds an ExchangeClient from per-request
// credentials. The inbound signal carries the keys; they are never stored.
type ExchangeClientFactory interface {
	NewClient(apiKey, secretKey string) (ExchangeClient, error)
}
