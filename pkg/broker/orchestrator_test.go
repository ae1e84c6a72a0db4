package broker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"tradelink/pkg/broker/model"
)

func bracketSpec() BracketOrderSpec {
	return BracketOrderSpec{
		Contract:        testContract(),
		Action:          model.OrderSideBuy,
		Quantity:        decimal.NewFromInt(2),
		EntryPrice:      decimal.NewFromInt(5000),
		TakeProfitPrice: decimal.NewFromInt(5100),
		StopPrice:       decimal.NewFromInt(4900),
	}
}

func acceptAllOrders(cmd Command) []Event {
	if cmd.Type != CmdPlaceOrder {
		return nil
	}
	return []Event{statusEvent(cmd.ReqID, model.OrderStatusSubmitted)}
}

func TestPlaceBracketOrderAllLegsPlaced(t *testing.T) {
	c, f := newTestClient(t)
	f.onSend = acceptAllOrders

	result, err := c.PlaceBracketOrder(context.Background(), bracketSpec())
	if err != nil {
		t.Fatalf("bracket: %v", err)
	}
	if !result.OK() {
		t.Fatalf("expected all legs placed: %+v", result)
	}

	sent := f.sentCommands()
	if len(sent) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(sent))
	}

	entry, takeProfit, stop := sent[0].Order, sent[1].Order, sent[2].Order

	// only the final leg transmits; the broker holds the set until then
	if entry.Transmit || takeProfit.Transmit || !stop.Transmit {
		t.Errorf("transmit flags wrong: %v %v %v", entry.Transmit, takeProfit.Transmit, stop.Transmit)
	}
	if entry.Type != model.OrderTypeLimit {
		t.Errorf("expected limit entry, got %v", entry.Type)
	}
	if takeProfit.Action != model.OrderSideSell || stop.Action != model.OrderSideSell {
		t.Error("protective legs must oppose the entry")
	}
	if takeProfit.ParentID != entry.OrderID || stop.ParentID != entry.OrderID {
		t.Error("protective legs not linked to entry")
	}
	if takeProfit.OCAGroup == "" || takeProfit.OCAGroup != stop.OCAGroup {
		t.Errorf("oca group mismatch: %q vs %q", takeProfit.OCAGroup, stop.OCAGroup)
	}
	if stop.Type != model.OrderTypeStop {
		t.Errorf("expected plain stop, got %v", stop.Type)
	}

	// identities are consecutive, entry first
	if result.TakeProfit.OrderID != result.Entry.OrderID+1 || result.Stop.OrderID != result.Entry.OrderID+2 {
		t.Errorf("leg identities not consecutive: %+v", result)
	}
}

func TestPlaceBracketOrderMarketEntryAndStopLimit(t *testing.T) {
	c, f := newTestClient(t)
	f.onSend = acceptAllOrders

	spec := bracketSpec()
	spec.EntryPrice = decimal.Zero
	spec.StopLimitPrice = decimal.NewFromInt(4890)

	result, err := c.PlaceBracketOrder(context.Background(), spec)
	if err != nil {
		t.Fatalf("bracket: %v", err)
	}
	if !result.OK() {
		t.Fatalf("expected all legs placed: %+v", result)
	}

	sent := f.sentCommands()
	if sent[0].Order.Type != model.OrderTypeMarket {
		t.Errorf("expected market entry, got %v", sent[0].Order.Type)
	}
	if sent[2].Order.Type != model.OrderTypeStopLimit {
		t.Errorf("expected stop-limit, got %v", sent[2].Order.Type)
	}
}

func TestPlaceBracketOrderPartialFailure(t *testing.T) {
	c, f := newTestClient(t)
	rejected := int64(-1)
	f.onSend = func(cmd Command) []Event {
		if cmd.Type != CmdPlaceOrder {
			return nil
		}
		// reject the take-profit leg, accept the others
		if rejected == -1 && cmd.Order.ParentID != 0 && cmd.Order.Type == model.OrderTypeLimit {
			rejected = cmd.ReqID
			return []Event{errorEvent(cmd.ReqID, CodeInvalidOrderType, "unsupported")}
		}
		return []Event{statusEvent(cmd.ReqID, model.OrderStatusSubmitted)}
	}

	result, err := c.PlaceBracketOrder(context.Background(), bracketSpec())
	if err != nil {
		t.Fatalf("bracket: %v", err)
	}
	if result.OK() {
		t.Fatal("expected partial failure")
	}
	if !result.Entry.Placed || !result.Stop.Placed {
		t.Errorf("sibling legs should stand: %+v", result)
	}
	if result.TakeProfit.Placed || result.TakeProfit.Err != nil {
		t.Errorf("rejected leg should be placed=false without error: %+v", result.TakeProfit)
	}
}

func openOrderEvent(reqID, orderID int64, symbol string) Event {
	return Event{
		Kind:  KindOpenOrder,
		ReqID: reqID,
		OpenOrder: &model.OpenOrderRecord{
			OrderID:  orderID,
			Contract: model.Contract{Symbol: symbol},
		},
	}
}

func TestCancelOrdersForInstrumentDeduplicates(t *testing.T) {
	c, f := newTestClient(t)
	f.onSend = func(cmd Command) []Event {
		switch cmd.Type {
		case CmdReqOpenOrders:
			return []Event{
				openOrderEvent(cmd.ReqID, 11, "ES"),
				openOrderEvent(cmd.ReqID, 12, "NQ"),
				openOrderEvent(cmd.ReqID, 11, "ES"), // duplicate of the first
				openOrderEvent(cmd.ReqID, 13, "ES"),
				{Kind: KindOpenOrderEnd, ReqID: cmd.ReqID},
			}
		case CmdCancelOrder:
			return []Event{statusEvent(cmd.ReqID, model.OrderStatusCancelled)}
		}
		return nil
	}

	ok, err := c.CancelOrdersForInstrument(context.Background(), "ES")
	if err != nil {
		t.Fatalf("cancel for instrument: %v", err)
	}
	if !ok {
		t.Error("expected all cancels to succeed")
	}

	var cancelled []int64
	for _, cmd := range f.sentCommands() {
		if cmd.Type == CmdCancelOrder {
			cancelled = append(cancelled, cmd.ReqID)
		}
	}
	if len(cancelled) != 2 || cancelled[0] != 11 || cancelled[1] != 13 {
		t.Errorf("expected cancels for 11 and 13 once each, got %v", cancelled)
	}
}

func TestCancelOrdersForInstrumentNoneMatching(t *testing.T) {
	c, f := newTestClient(t)
	f.onSend = func(cmd Command) []Event {
		if cmd.Type == CmdReqOpenOrders {
			return []Event{
				openOrderEvent(cmd.ReqID, 11, "NQ"),
				{Kind: KindOpenOrderEnd, ReqID: cmd.ReqID},
			}
		}
		return nil
	}

	ok, err := c.CancelOrdersForInstrument(context.Background(), "ES")
	if err != nil {
		t.Fatalf("cancel for instrument: %v", err)
	}
	if ok {
		t.Error("expected false when nothing matched")
	}
}

func TestCancelOrdersForInstrumentFailedCancelIsCounted(t *testing.T) {
	c, f := newTestClient(t)
	f.onSend = func(cmd Command) []Event {
		switch cmd.Type {
		case CmdReqOpenOrders:
			return []Event{
				openOrderEvent(cmd.ReqID, 11, "ES"),
				openOrderEvent(cmd.ReqID, 12, "ES"),
				{Kind: KindOpenOrderEnd, ReqID: cmd.ReqID},
			}
		case CmdCancelOrder:
			if cmd.ReqID == 11 {
				return []Event{errorEvent(cmd.ReqID, CodeCannotCancelFilled, "already filled")}
			}
			return []Event{statusEvent(cmd.ReqID, model.OrderStatusCancelled)}
		}
		return nil
	}

	ok, err := c.CancelOrdersForInstrument(context.Background(), "ES")
	if err != nil {
		t.Fatalf("cancel for instrument: %v", err)
	}
	if ok {
		t.Error("expected false when one cancel failed")
	}

	// the loop must not stop at the failed cancel
	var cancels int
	for _, cmd := range f.sentCommands() {
		if cmd.Type == CmdCancelOrder {
			cancels++
		}
	}
	if cancels != 2 {
		t.Errorf("expected both cancels attempted, got %d", cancels)
	}
}

func positionEvent(reqID int64, symbol string, qty int64) Event {
	return Event{
		Kind:  KindPosition,
		ReqID: reqID,
		Position: &model.Position{
			Account:  "DU12345",
			Contract: model.Contract{Symbol: symbol, SecurityType: model.SecurityTypeFuture},
			Quantity: decimal.NewFromInt(qty),
		},
	}
}

func liquidationScript(qty int64) func(cmd Command) []Event {
	return func(cmd Command) []Event {
		switch cmd.Type {
		case CmdReqOpenOrders:
			return []Event{{Kind: KindOpenOrderEnd, ReqID: cmd.ReqID}}
		case CmdReqPositions:
			evs := []Event{}
			if qty != 0 {
				evs = append(evs, positionEvent(cmd.ReqID, "ES", qty))
			}
			evs = append(evs, Event{Kind: KindPositionEnd, ReqID: cmd.ReqID})
			return evs
		case CmdPlaceOrder:
			return []Event{statusEvent(cmd.ReqID, model.OrderStatusSubmitted)}
		}
		return nil
	}
}

func TestLiquidatePositionLongSells(t *testing.T) {
	c, f := newTestClient(t)
	f.onSend = liquidationScript(5)

	ok, err := c.LiquidatePosition(context.Background(), "ES", "GLOBEX")
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if !ok {
		t.Fatal("expected liquidation order placed")
	}

	sent := f.sentCommands()
	place := sent[len(sent)-1]
	if place.Type != CmdPlaceOrder {
		t.Fatalf("expected place command last, got %+v", place)
	}
	if place.Order.Action != model.OrderSideSell {
		t.Errorf("long position must sell, got %v", place.Order.Action)
	}
	if !place.Order.Quantity.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected quantity 5, got %v", place.Order.Quantity)
	}
	if place.Order.Type != model.OrderTypePegMarket {
		t.Errorf("expected peg-market order, got %v", place.Order.Type)
	}
	if place.Contract.Exchange != "GLOBEX" {
		t.Errorf("caller exchange not applied: %q", place.Contract.Exchange)
	}
}

func TestLiquidatePositionShortBuys(t *testing.T) {
	c, f := newTestClient(t)
	f.onSend = liquidationScript(-3)

	ok, err := c.LiquidatePosition(context.Background(), "ES", "GLOBEX")
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if !ok {
		t.Fatal("expected liquidation order placed")
	}

	sent := f.sentCommands()
	place := sent[len(sent)-1]
	if place.Order.Action != model.OrderSideBuy {
		t.Errorf("short position must buy, got %v", place.Order.Action)
	}
	if !place.Order.Quantity.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected absolute quantity 3, got %v", place.Order.Quantity)
	}
}

func TestLiquidatePositionNoPosition(t *testing.T) {
	c, f := newTestClient(t)
	f.onSend = liquidationScript(0)

	ok, err := c.LiquidatePosition(context.Background(), "ES", "GLOBEX")
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if ok {
		t.Error("expected false when no position exists")
	}

	for _, cmd := range f.sentCommands() {
		if cmd.Type == CmdPlaceOrder {
			t.Fatal("no order may be issued without a position")
		}
	}
}
