package domain

// OrderOutcome is the recorded result of one exchange order attempt. A
// failed attempt still produces an outcome with Error set so the response
// stays a complete audit record.
type OrderOutcome struct {
	OrderID       int64   `json:"order_id,omitempty"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
	Status        string  `json:"status,omitempty"`
	ExecutedQty   float64 `json:"executed_qty,omitempty"`
	AvgPrice      float64 `json:"avg_price,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Failed reports whether the attempt produced an error instead of an order.
func (o *OrderOutcome) Failed() bool {
	return o != nil && o.Error != ""
}

// Result is the structured response for one processed signal. The Trace is a
// first-class output: operators audit exchange interactions from it after
// the fact.
type Result struct {
	Symbol       string       `json:"symbol"`
	PositionSide PositionSide `json:"position_side"`
	CycleState   CycleState   `json:"cycle_state"`

	Balance      float64 `json:"balance"`
	BalanceKnown bool    `json:"balance_known"`

	Notional     float64       `json:"notional"`
	SignalPrice  float64       `json:"signal_price"`
	EntryOrder   *OrderOutcome `json:"entry_order,omitempty"`
	SellQuantity float64       `json:"sell_quantity"`

	ReferencePrice float64   `json:"reference_price"`
	ReferenceFrom  string    `json:"reference_from,omitempty"` // "history" or "exchange"
	PurchasePrices []float64 `json:"purchase_prices,omitempty"`

	TakeProfitPrice float64       `json:"take_profit_price,omitempty"`
	TakeProfitOrder *OrderOutcome `json:"take_profit_order,omitempty"`
	StopLossPrice   float64       `json:"stop_loss_price,omitempty"`
	StopLossOrder   *OrderOutcome `json:"stop_loss_order,omitempty"`

	AlarmSent bool     `json:"alarm_sent"`
	Trace     []string `json:"trace"`
}
