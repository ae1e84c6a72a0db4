package fixtransport

import (
	"testing"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"

	"tradelink/pkg/broker"
)

func massStatusReport(orderID, massReqID string) executionreport.ExecutionReport {
	msg := executionreport.New(
		field.NewOrderID(orderID),
		field.NewExecID("exec-1"),
		field.NewExecType(enum.ExecType_ORDER_STATUS),
		field.NewOrdStatus(enum.OrdStatus_NEW),
		field.NewSide(enum.Side_SELL),
		field.NewLeavesQty(decimal.NewFromInt(1), 0),
		field.NewCumQty(decimal.Zero, 0),
		field.NewAvgPx(decimal.Zero, 0),
	)
	msg.SetClOrdID(orderID)
	msg.SetSymbol("ES")
	msg.SetOrderQty(decimal.NewFromInt(1), 0)
	msg.SetMassStatusReqID(massReqID)
	msg.SetLastRptRequested(true)
	return msg
}

func TestMassStatusReportRecordsCancelMeta(t *testing.T) {
	tr := New(&Config{Account: "DU12345"})
	app := newApplication(tr)
	defer app.stop()

	if err := app.onExecutionReport(massStatusReport("77", "200"), quickfix.SessionID{}); err != nil {
		t.Fatalf("execution report: %v", err)
	}

	// the order came from the download, not from this session's Send; a
	// cancel must still be able to build its request
	meta, ok := tr.loadOrderMeta(77)
	if !ok {
		t.Fatal("no cancel metadata recorded for downloaded order")
	}
	if meta.symbol != "ES" || meta.side != enum.Side_SELL {
		t.Errorf("unexpected metadata: %+v", meta)
	}

	readEvent := func() broker.Event {
		select {
		case ev := <-tr.Events():
			return ev
		case <-time.After(time.Second):
			t.Fatal("event never emitted")
			return broker.Event{}
		}
	}

	ev := readEvent()
	if ev.Kind != broker.KindOpenOrder || ev.ReqID != 200 {
		t.Fatalf("expected open order for request 200, got %+v", ev)
	}
	if ev.OpenOrder.OrderID != 77 || ev.OpenOrder.Contract.Symbol != "ES" {
		t.Errorf("unexpected open order record: %+v", ev.OpenOrder)
	}

	end := readEvent()
	if end.Kind != broker.KindOpenOrderEnd || end.ReqID != 200 {
		t.Errorf("expected download end for request 200, got %+v", end)
	}
}
