package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"pyramidbot/internal/domain"
	"pyramidbot/internal/ports"
)

// Config holds the engine's operational knobs.
type Config struct {
	// QuoteAsset is the balance/notional currency, e.g. "USDT".
	QuoteAsset string
	// SettleDelay is the pause between placing the entry order and
	// re-reading the position, giving the exchange time to settle.
	SettleDelay time.Duration
}

// Engine reconciles one trading signal against live exchange state and the
// persisted per-asset records. Every step is independently
// failure-tolerant: a failed external call is traced and the sequence
// continues with a degraded value. Re-invoking the sequence never
// duplicates protective orders (cancel-before-place), but each invocation
// places a new entry order; deduplicating signals is the sender's job.
type Engine struct {
	cfg      Config
	store    ports.StateStore
	notifier ports.Notifier
	logger   ports.Logger
	locks    *keyedMutex
}

// New creates a reconciliation engine.
func New(cfg Config, store ports.StateStore, notifier ports.Notifier, logger ports.Logger) (*Engine, error) {
	if store == nil || notifier == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Engine")
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		logger:   logger,
		locks:    newKeyedMutex(),
	}, nil
}

// Process runs the full reconciliation sequence for one signal. The
// exchange client is built per request from the signal's credentials and
// passed in by the caller. The returned result always carries the ordered
// diagnostic trace, whatever happened along the way.
func (e *Engine) Process(ctx context.Context, exchange ports.ExchangeClient, sig domain.Signal) *domain.Result {
	side := sig.Side()
	unlock := e.locks.lock(sig.Symbol + "/" + string(side))
	defer unlock()

	t := newTrace(e.logger)
	res := &domain.Result{Symbol: sig.Symbol, PositionSide: side, SignalPrice: sig.Price}
	asset := sig.BaseAsset()
	persist := sig.Namespace != ""
	if !persist {
		t.logf(ctx, "no state namespace supplied, treating signal as stateless single-shot")
	}

	// 1. Balance.
	var balance float64
	var balanceKnown bool
	if b, err := exchange.GetAccountBalance(ctx, e.cfg.QuoteAsset); err != nil {
		t.failf(ctx, err, "balance read failed, continuing without balance")
	} else {
		balance, balanceKnown = b, true
		t.logf(ctx, "available %s balance: %g", e.cfg.QuoteAsset, b)
	}
	res.Balance, res.BalanceKnown = balance, balanceKnown

	// 2. Leverage, best effort; the exchange may already be set correctly.
	if lev := int(math.Round(sig.Pyramiding)); lev > 0 {
		if err := exchange.SetLeverage(ctx, sig.Symbol, lev); err != nil {
			t.failf(ctx, err, "set leverage %d failed, continuing", lev)
		} else {
			t.logf(ctx, "leverage set to %d", lev)
		}
	}

	// 3. Open orders. A failed read is treated as "no open orders"; the
	// worst case is a duplicate protective order next round.
	openOrders, err := exchange.GetOpenOrders(ctx, sig.Symbol)
	if err != nil {
		t.failf(ctx, err, "open order read failed, treating as no open orders")
		openOrders = nil
	}

	// 4. Cycle state, derived exactly once from the step-3 read.
	protectiveOpen := false
	for i := range openOrders {
		if openOrders[i].IsProtectiveLimit(side) {
			protectiveOpen = true
			break
		}
	}
	cycle := domain.CycleEmpty
	if protectiveOpen {
		cycle = domain.CycleAccumulating
	}
	res.CycleState = cycle
	t.logf(ctx, "cycle state %s (open protective limit: %t)", cycle, protectiveOpen)

	// Position snapshot feeding the compounding formula.
	var positionValue float64
	if pos, err := exchange.GetPositionRisk(ctx, sig.Symbol, side); err != nil {
		t.failf(ctx, err, "position read failed, assuming no position")
	} else if pos != nil {
		positionValue = math.Abs(pos.PositionAmt) * pos.EntryPrice
		t.logf(ctx, "position value (%s): %g", e.cfg.QuoteAsset, positionValue)
	}

	// 5. Entry size.
	dec := e.resolveEntrySize(ctx, t, sig, cycle, persist, asset, balance, balanceKnown, positionValue)
	res.Notional = dec.Notional

	// 6. Entry market order. A zero or unknown notional is still attempted:
	// the exchange's own rejection becomes the recorded outcome.
	var entryQty float64
	if price, err := exchange.GetMarkPrice(ctx, sig.Symbol); err != nil {
		t.failf(ctx, err, "mark price read failed, entry quantity degraded to 0")
	} else if price > 0 && dec.Notional > 0 {
		entryQty = dec.Notional / price
	}
	qtyStr := formatQuantity(entryQty)
	entryResp, entryErr := exchange.PlaceMarketOrder(ctx, sig.Symbol, side.OpeningSide(), side, qtyStr)
	res.EntryOrder = outcome(entryResp, entryErr)
	if entryErr != nil {
		t.failf(ctx, entryErr, "entry %s market order (quantity %s) rejected", side.OpeningSide(), qtyStr)
	} else {
		t.logf(ctx, "entry %s market order %d placed, quantity %s, executed %g @ %g",
			side.OpeningSide(), entryResp.OrderID, qtyStr, entryResp.ExecutedQty, entryResp.AvgPrice)
	}

	// Let the exchange settle position state before re-reading it.
	if e.cfg.SettleDelay > 0 {
		select {
		case <-time.After(e.cfg.SettleDelay):
		case <-ctx.Done():
		}
	}

	// 7. Re-read the position; protective orders must cover the whole live
	// position, not just this increment.
	var sellQty, liveAvg, liqPrice float64
	if pos, err := exchange.GetPositionRisk(ctx, sig.Symbol, side); err != nil {
		t.failf(ctx, err, "position re-read failed")
	} else if pos != nil {
		sellQty = math.Abs(pos.PositionAmt)
		liveAvg = pos.EntryPrice
		liqPrice = pos.LiquidationPrice
	}
	if sellQty == 0 && res.EntryOrder != nil && res.EntryOrder.ExecutedQty > 0 {
		// Exchange lag: the fill is authoritative when the position read
		// still shows zero.
		sellQty = res.EntryOrder.ExecutedQty
		t.warnf(ctx, "position still reads 0 after entry, using executed quantity %g", sellQty)
	}
	res.SellQuantity = sellQty

	// 8. Record the declared price; the status marker guards against a
	// crash leaving a half-updated history behind.
	history, statusDirty := e.recordPurchase(ctx, t, sig, cycle, persist, asset)
	res.PurchasePrices = history

	// 9. Reference price.
	ref := ResolveReferencePrice(history, liveAvg, statusDirty)
	switch {
	case ref.Valid && ref.FromFallback:
		res.ReferencePrice = ref.Price
		res.ReferenceFrom = "exchange"
		t.warnf(ctx, "reference price %g from discounted exchange average (history unusable)", ref.Price)
		e.alert(ctx, t, fmt.Sprintf("%s %s: purchase history unavailable, take-profit anchored to exchange average %g",
			sig.Symbol, side, ref.Price))
	case ref.Valid:
		res.ReferencePrice = ref.Price
		res.ReferenceFrom = "history"
		t.logf(ctx, "reference price %g from purchase history (%d entries)", ref.Price, len(history))
		if persist {
			// Second phase of the status handshake: the history produced a
			// verified average, the pessimistic marker can go.
			if err := e.store.DeleteStatus(ctx, sig.Namespace, asset); err != nil {
				t.failf(ctx, err, "status marker clear failed")
			}
		}
	default:
		t.warnf(ctx, "no reference price available, take-profit will be skipped")
	}

	// 10-13. Replace protective orders.
	e.replaceProtectiveOrders(ctx, t, exchange, sig, side, openOrders, ref, sellQty, liqPrice, res)

	// 14. Alarm threshold.
	purchases := len(history)
	followUps := purchases - 1
	if followUps < 0 {
		followUps = 0
	}
	if sig.Alarm > 0 && followUps >= sig.Alarm {
		e.alert(ctx, t, fmt.Sprintf("%s %s: %d follow-up purchases reached alarm threshold %d",
			sig.Symbol, side, followUps, sig.Alarm))
		res.AlarmSent = true
		if persist {
			if err := e.store.SaveAlarmCount(ctx, sig.Namespace, asset, purchases); err != nil {
				t.failf(ctx, err, "alarm count persist failed")
			}
		}
	}

	res.Trace = t.entries
	return res
}

// resolveEntrySize runs the step-5 sizing protocol. On a cycle boundary the
// previous cycle's records are cleared first and the fresh size persisted;
// mid-cycle the persisted size is the only memory of compounding progress.
func (e *Engine) resolveEntrySize(ctx context.Context, t *trace, sig domain.Signal, cycle domain.CycleState,
	persist bool, asset string, balance float64, balanceKnown bool, positionValue float64) SizeDecision {

	if !persist {
		dec := ComputeEntrySize(balance, balanceKnown, positionValue, sig.Safety, sig.Pyramiding, 0, false)
		t.logf(ctx, "stateless sizing: %s", dec.Detail)
		return dec
	}
	ns := sig.Namespace

	if cycle == domain.CycleEmpty {
		// Cycle boundary: the previous cycle's records are stale. Deletes
		// are best effort, failures logged only.
		if err := e.store.DeleteOrderSize(ctx, ns, asset); err != nil {
			t.failf(ctx, err, "order size delete failed")
		}
		if err := e.store.DeleteStatus(ctx, ns, asset); err != nil {
			t.failf(ctx, err, "status delete failed")
		}
		if err := e.store.DeletePurchasePrices(ctx, ns, asset); err != nil {
			t.failf(ctx, err, "purchase history delete failed")
		}
		t.logf(ctx, "cycle boundary: persisted records for %s cleared", asset)

		dec := ComputeEntrySize(balance, balanceKnown, positionValue, sig.Safety, sig.Pyramiding, 0, false)
		t.logf(ctx, dec.Detail)
		if dec.Available {
			if err := e.store.SaveOrderSize(ctx, ns, asset, dec.Notional); err != nil {
				t.failf(ctx, err, "order size persist failed")
				e.alert(ctx, t, fmt.Sprintf("%s: failed to persist order size: %v", sig.Symbol, err))
			}
		}
		return dec
	}

	// Mid-cycle: carry the persisted size. A transient read failure gets a
	// single second-chance lookup before giving up.
	var persisted float64
	v, err := e.store.OrderSize(ctx, ns, asset)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		t.failf(ctx, err, "order size read failed, retrying once")
		v, err = e.store.OrderSize(ctx, ns, asset)
	}
	switch {
	case err == nil:
		persisted = v
	case errors.Is(err, ports.ErrNotFound):
		t.warnf(ctx, "no persisted order size for %s", asset)
	default:
		t.failf(ctx, err, "order size read failed")
	}

	dec := ComputeEntrySize(balance, balanceKnown, positionValue, sig.Safety, sig.Pyramiding, persisted, true)
	t.logf(ctx, dec.Detail)
	if !dec.Available {
		e.alert(ctx, t, fmt.Sprintf("%s %s: no order size available while cycle in progress", sig.Symbol, sig.Side()))
	}
	return dec
}

// recordPurchase runs step 8: on a cycle boundary the history and status
// get a defensive second clear, then the declared price is appended under a
// dirty status marker. The marker is only cleared after a successful
// history-based resolve (step 9); a crash in between leaves it set so the
// next signal falls back to the exchange average instead of trusting a
// possibly-incomplete history. Returns the history to average over and
// whether it must be treated as dirty.
func (e *Engine) recordPurchase(ctx context.Context, t *trace, sig domain.Signal, cycle domain.CycleState,
	persist bool, asset string) ([]float64, bool) {

	if !persist {
		return nil, false
	}
	ns := sig.Namespace

	dirty := false
	status, err := e.store.Status(ctx, ns, asset)
	switch {
	case err == nil:
		dirty = status == domain.StatusDirty
		if dirty {
			t.warnf(ctx, "status marker set for %s, purchase history untrusted", asset)
		}
	case errors.Is(err, ports.ErrNotFound):
		// no marker, history is clean
	default:
		t.failf(ctx, err, "status read failed, treating history as dirty")
		dirty = true
	}

	if cycle == domain.CycleEmpty {
		if err := e.store.DeletePurchasePrices(ctx, ns, asset); err != nil {
			t.failf(ctx, err, "purchase history delete failed")
		}
		if err := e.store.DeleteStatus(ctx, ns, asset); err != nil {
			t.failf(ctx, err, "status delete failed")
		}
		dirty = false
	}

	if sig.Price > 0 {
		if err := e.store.SaveStatus(ctx, ns, asset, domain.StatusDirty); err != nil {
			t.failf(ctx, err, "status marker write failed")
		}
		if err := e.store.AppendPurchasePrice(ctx, ns, asset, sig.Price); err != nil {
			t.failf(ctx, err, "purchase price append failed")
			e.alert(ctx, t, fmt.Sprintf("%s: failed to persist purchase price %g: %v", sig.Symbol, sig.Price, err))
			dirty = true
		} else {
			t.logf(ctx, "recorded purchase price %g for %s", sig.Price, asset)
		}
	} else {
		t.warnf(ctx, "signal declared no price, purchase history unchanged")
	}

	history, err := e.store.PurchasePrices(ctx, ns, asset)
	if err != nil {
		t.failf(ctx, err, "purchase history read failed")
		dirty = true
	}
	return history, dirty
}

// replaceProtectiveOrders runs steps 10-13: cancel every stale protective
// order of each kind, then place the planned replacement. Cancels are best
// effort, one call per order id.
func (e *Engine) replaceProtectiveOrders(ctx context.Context, t *trace, exchange ports.ExchangeClient,
	sig domain.Signal, side domain.PositionSide, openOrders []ports.OpenOrder,
	ref ReferencePrice, sellQty, liqPrice float64, res *domain.Result) {

	var refPrice float64
	if ref.Valid {
		refPrice = ref.Price
	}
	plan := PlanProtectiveOrders(side, refPrice, sig.SellPct, sellQty, liqPrice)

	for i := range openOrders {
		if openOrders[i].IsProtectiveLimit(side) {
			e.cancelOrderWarn(ctx, t, exchange, sig.Symbol, openOrders[i].OrderID, "take-profit")
		}
	}
	if plan.TakeProfit != nil {
		res.TakeProfitPrice = plan.TakeProfit.Price
		resp, err := exchange.PlaceLimitOrder(ctx, sig.Symbol, side.ClosingSide(), side,
			formatQuantity(plan.TakeProfit.Quantity), formatPrice(plan.TakeProfit.Price))
		res.TakeProfitOrder = outcome(resp, err)
		if err != nil {
			t.failf(ctx, err, "take-profit limit order at %g failed", plan.TakeProfit.Price)
		} else {
			t.logf(ctx, "take-profit limit order %d placed: %g x %g", resp.OrderID, plan.TakeProfit.Price, plan.TakeProfit.Quantity)
		}
	} else {
		t.warnf(ctx, "take-profit skipped, no positive price and quantity")
	}

	for i := range openOrders {
		if openOrders[i].IsStop(side) {
			e.cancelOrderWarn(ctx, t, exchange, sig.Symbol, openOrders[i].OrderID, "stop-loss")
		}
	}
	if plan.StopLoss != nil {
		res.StopLossPrice = plan.StopLoss.Price
		resp, err := exchange.PlaceStopMarketOrder(ctx, sig.Symbol, side.ClosingSide(), side,
			formatQuantity(plan.StopLoss.Quantity), formatPrice(plan.StopLoss.Price))
		res.StopLossOrder = outcome(resp, err)
		if err != nil {
			t.failf(ctx, err, "stop-loss order at %g failed", plan.StopLoss.Price)
		} else {
			t.logf(ctx, "stop-loss order %d placed: trigger %g x %g", resp.OrderID, plan.StopLoss.Price, plan.StopLoss.Quantity)
		}
	} else {
		t.warnf(ctx, "stop-loss skipped, no positive price and quantity")
	}
}

// cancelOrderWarn attempts to cancel an order and traces a warning on
// failure instead of aborting the sequence.
func (e *Engine) cancelOrderWarn(ctx context.Context, t *trace, exchange ports.ExchangeClient, symbol string, orderID int64, kind string) {
	if _, err := exchange.CancelOrder(ctx, symbol, orderID); err != nil {
		if errors.Is(err, ports.ErrOrderNotFound) {
			// Already filled or cancelled; not an error here.
			t.warnf(ctx, "%s order %d already gone", kind, orderID)
			return
		}
		t.failf(ctx, err, "cancel of %s order %d failed, continuing", kind, orderID)
		return
	}
	t.logf(ctx, "cancelled stale %s order %d", kind, orderID)
}

// alert sends an operator notification; delivery failures are traced only.
func (e *Engine) alert(ctx context.Context, t *trace, text string) {
	if err := e.notifier.Send(ctx, text); err != nil {
		t.failf(ctx, err, "alert delivery failed")
		return
	}
	t.logf(ctx, "alert sent: %s", text)
}

func outcome(resp *ports.OrderResponse, err error) *domain.OrderOutcome {
	if err != nil {
		return &domain.OrderOutcome{Error: err.Error()}
	}
	if resp == nil {
		return nil
	}
	return &domain.OrderOutcome{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Status:        resp.Status,
		ExecutedQty:   resp.ExecutedQty,
		AvgPrice:      resp.AvgPrice,
	}
}

// formatQuantity formats a quantity for the exchange API.
func formatQuantity(quantity float64) string {
	return strconv.FormatFloat(quantity, 'f', 4, 64)
}

// formatPrice formats a price for the exchange API, matching the 6-digit
// precision of all derived prices.
func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', 6, 64)
}
