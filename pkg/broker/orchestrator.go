package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"tradelink/pkg/broker/model"
)

// BracketOrderSpec describes an entry order protected by a take-profit and a
// stop. EntryPrice zero means a market entry; StopLimitPrice zero means a
// plain stop, otherwise a stop-limit.
type BracketOrderSpec struct {
	Contract        model.Contract
	Action          model.OrderSide
	Quantity        decimal.Decimal
	EntryPrice      decimal.Decimal
	TakeProfitPrice decimal.Decimal
	StopPrice       decimal.Decimal
	StopLimitPrice  decimal.Decimal
	TimeInForce     model.OrderTimeInForce
}

// LegResult is the individually observable outcome of one bracket leg.
type LegResult struct {
	OrderID int64
	Placed  bool
	Err     error
}

// BracketResult aggregates the three legs. OK is the conjunction of the leg
// outcomes.
type BracketResult struct {
	Entry      LegResult
	TakeProfit LegResult
	Stop       LegResult
}

func (r BracketResult) OK() bool {
	return r.Entry.Placed && r.TakeProfit.Placed && r.Stop.Placed
}

// PlaceBracketOrder places an entry, take-profit and stop leg linked by
// parent identity. The entry and take-profit carry Transmit=false; only the
// stop — the last leg sent — carries Transmit=true, so the broker holds the
// group until the full set has arrived. The three legs are awaited
// concurrently and the result is their conjunction.
//
// This is client-side sequencing only, not exchange-side atomicity: a leg
// can fail after its siblings were accepted, leaving the book in a state the
// caller must reconcile from the per-leg results.
func (c *Client) PlaceBracketOrder(ctx context.Context, spec BracketOrderSpec, opts ...CallOption) (BracketResult, error) {
	if spec.TimeInForce == "" {
		spec.TimeInForce = model.OrderTimeInForceGTC
	}

	var ids [3]int64
	for i := range ids {
		id, err := c.seq.NextOrderID(ctx)
		if err != nil {
			return BracketResult{}, err
		}
		ids[i] = id
	}
	entryID, takeProfitID, stopID := ids[0], ids[1], ids[2]
	ocaGroup := fmt.Sprintf("bracket-%d", entryID)

	entryType := model.OrderTypeLimit
	if spec.EntryPrice.IsZero() {
		entryType = model.OrderTypeMarket
	}
	entry := model.Order{
		Action:      spec.Action,
		Type:        entryType,
		Quantity:    spec.Quantity,
		LimitPrice:  spec.EntryPrice,
		TimeInForce: spec.TimeInForce,
		Transmit:    false,
	}

	takeProfit := model.Order{
		ParentID:    entryID,
		Action:      spec.Action.Opposite(),
		Type:        model.OrderTypeLimit,
		Quantity:    spec.Quantity,
		LimitPrice:  spec.TakeProfitPrice,
		TimeInForce: spec.TimeInForce,
		Transmit:    false,
		OCAGroup:    ocaGroup,
		OCAType:     1,
	}

	stopType := model.OrderTypeStop
	if !spec.StopLimitPrice.IsZero() {
		stopType = model.OrderTypeStopLimit
	}
	stop := model.Order{
		ParentID:    entryID,
		Action:      spec.Action.Opposite(),
		Type:        stopType,
		Quantity:    spec.Quantity,
		LimitPrice:  spec.StopLimitPrice,
		AuxPrice:    spec.StopPrice,
		TimeInForce: spec.TimeInForce,
		Transmit:    true,
		OCAGroup:    ocaGroup,
		OCAType:     1,
	}

	result := BracketResult{
		Entry:      LegResult{OrderID: entryID},
		TakeProfit: LegResult{OrderID: takeProfitID},
		Stop:       LegResult{OrderID: stopID},
	}
	type bracketLeg struct {
		id    int64
		order model.Order
		out   *LegResult
	}
	legs := []bracketLeg{
		{entryID, entry, &result.Entry},
		{takeProfitID, takeProfit, &result.TakeProfit},
		{stopID, stop, &result.Stop},
	}

	// register every leg's listeners, then send in allocation order so the
	// transmit flag of the stop leg goes out last, then await concurrently.
	// Whether the broker honors send order under concurrent load is its own
	// contract, not something this client can enforce.
	calls := make([]*call, len(legs))
	for i, leg := range legs {
		order := leg.order
		order.OrderID = leg.id
		order.Account = c.cfg.Account
		calls[i] = c.preparePlace(leg.id)
		contract := spec.Contract
		if err := c.send(Command{Type: CmdPlaceOrder, ReqID: leg.id, Contract: &contract, Order: &order}); err != nil {
			calls[i].resolve(nil, err)
		}
	}

	timeout := pickTimeout(c.cfg.CallTimeout, opts)
	var wg sync.WaitGroup
	for i, leg := range legs {
		wg.Add(1)
		go func(cl *call, out *LegResult) {
			defer wg.Done()
			v, err := cl.wait(ctx, timeout)
			if err != nil {
				out.Err = err
				return
			}
			out.Placed = v.(bool)
		}(calls[i], leg.out)
	}
	wg.Wait()

	if !result.OK() {
		c.log.Warnw("bracket order partially failed",
			"entry", result.Entry, "take_profit", result.TakeProfit, "stop", result.Stop)
	}
	return result, nil
}

// CancelOrdersForInstrument cancels every open order whose contract symbol
// matches. Returns false when nothing matched, otherwise the conjunction of
// the individual cancel outcomes. A single failing cancel is counted, not
// fatal to the loop.
func (c *Client) CancelOrdersForInstrument(ctx context.Context, symbol string, opts ...CallOption) (bool, error) {
	open, err := c.RequestOpenOrders(ctx, opts...)
	if err != nil {
		return false, err
	}

	// one logical order can appear multiple times in the stream
	seen := make(map[int64]struct{})
	var ids []int64
	for _, rec := range open {
		if rec.Contract.Symbol != symbol {
			continue
		}
		if _, dup := seen[rec.OrderID]; dup {
			continue
		}
		seen[rec.OrderID] = struct{}{}
		ids = append(ids, rec.OrderID)
	}
	if len(ids) == 0 {
		return false, nil
	}

	all := true
	for _, id := range ids {
		ok, err := c.CancelOrder(ctx, id, opts...)
		if err != nil {
			c.log.Warnw("cancel failed", "order_id", id, "err", err)
			all = false
			continue
		}
		if !ok {
			all = false
		}
	}
	return all, nil
}

// LiquidatePosition closes the nonzero position for the symbol: outstanding
// orders are cancelled first, the closing direction is derived from the
// position's sign, and one pegged-to-market order sized to the absolute
// quantity is placed on the caller-supplied exchange (the position snapshot
// does not retain the original venue). Returns false when no nonzero
// position exists; no order is issued in that case.
func (c *Client) LiquidatePosition(ctx context.Context, symbol, exchange string, opts ...CallOption) (bool, error) {
	if _, err := c.CancelOrdersForInstrument(ctx, symbol, opts...); err != nil {
		return false, err
	}

	positions, err := c.RequestPositions(ctx, opts...)
	if err != nil {
		return false, err
	}

	var target *model.Position
	for i := range positions {
		p := &positions[i]
		if p.Contract.Symbol == symbol && !p.Quantity.IsZero() {
			target = p
			break
		}
	}
	if target == nil {
		return false, nil
	}

	action := model.OrderSideSell
	if target.Quantity.IsNegative() {
		action = model.OrderSideBuy
	}

	id, err := c.seq.NextOrderID(ctx)
	if err != nil {
		return false, err
	}

	contract := target.Contract
	contract.Exchange = exchange
	order := model.Order{
		Action:      action,
		Type:        model.OrderTypePegMarket,
		Quantity:    target.Quantity.Abs(),
		TimeInForce: model.OrderTimeInForceDAY,
		Transmit:    true,
	}

	c.log.Infow("liquidating position",
		"symbol", symbol, "quantity", target.Quantity.String(), "action", action)
	return c.PlaceOrder(ctx, id, contract, order, opts...)
}
