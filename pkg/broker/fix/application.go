package fixtransport

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/fix44/businessmessagereject"
	"github.com/quickfixgo/fix44/collateralreport"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/quickfixgo/fix44/marketdatasnapshotfullrefresh"
	"github.com/quickfixgo/fix44/ordercancelreject"
	"github.com/quickfixgo/fix44/positionreport"
	"github.com/quickfixgo/fix44/requestforpositionsack"
	"github.com/quickfixgo/fix44/securitydefinition"
	"github.com/quickfixgo/fix44/tradecapturereport"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"
	"github.com/shopspring/decimal"

	"tradelink/pkg/broker"
	"tradelink/pkg/broker/model"
)

const queueSize = 1 << 16

// Application implements the quickfix.Application interface for the
// initiator side of the session. Inbound application messages are queued to
// one dispatcher goroutine and routed from there, preserving wire order.
type Application struct {
	*quickfix.MessageRouter
	transport  *Transport
	dispatcher chan *inboundMsg
	quit       chan struct{}
}

type inboundMsg struct {
	msg       *quickfix.Message
	sessionID quickfix.SessionID
}

func newApplication(t *Transport) *Application {
	app := &Application{
		MessageRouter: quickfix.NewMessageRouter(),
		transport:     t,
		dispatcher:    make(chan *inboundMsg, queueSize),
		quit:          make(chan struct{}),
	}

	app.AddRoute(executionreport.Route(app.onExecutionReport))
	app.AddRoute(ordercancelreject.Route(app.onOrderCancelReject))
	app.AddRoute(securitydefinition.Route(app.onSecurityDefinition))
	app.AddRoute(positionreport.Route(app.onPositionReport))
	app.AddRoute(requestforpositionsack.Route(app.onRequestForPositionsAck))
	app.AddRoute(tradecapturereport.Route(app.onTradeCaptureReport))
	app.AddRoute(collateralreport.Route(app.onCollateralReport))
	app.AddRoute(businessmessagereject.Route(app.onBusinessMessageReject))
	app.AddRoute(marketdatasnapshotfullrefresh.Route(app.onMarketDataSnapshot))

	go app.runDispatcher()
	return app
}

func startApp(settingsPath string, t *Transport) (*Application, *quickfix.Initiator, error) {
	cfg, err := os.Open(settingsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening %v, %v", settingsPath, err)
	}
	defer cfg.Close() // nolint

	stringData, readErr := io.ReadAll(cfg)
	if readErr != nil {
		return nil, nil, fmt.Errorf("error reading cfg: %s,", readErr)
	}

	appSettings, err := quickfix.ParseSettings(bytes.NewReader(stringData))
	if err != nil {
		return nil, nil, fmt.Errorf("error reading cfg: %s,", err)
	}

	app := newApplication(t)
	logFactory, _ := file.NewLogFactory(appSettings)
	initiator, err := quickfix.NewInitiator(app, quickfix.NewMemoryStoreFactory(), appSettings, logFactory)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create initiator: %s", err)
	}

	if err := initiator.Start(); err != nil {
		return nil, nil, fmt.Errorf("unable to start FIX initiator: %s", err)
	}

	return app, initiator, nil
}

func (a *Application) stop() {
	select {
	case <-a.quit:
	default:
		close(a.quit)
	}
}

func (a *Application) runDispatcher() {
	for {
		select {
		case <-a.quit:
			return
		case m := <-a.dispatcher:
			if err := a.Route(m.msg, m.sessionID); err != nil {
				a.transport.log.Warnw("route error", "err", err)
			}
		}
	}
}

// OnCreate implemented as part of Application interface
func (a *Application) OnCreate(sessionID quickfix.SessionID) {}

// OnLogon implemented as part of Application interface
func (a *Application) OnLogon(sessionID quickfix.SessionID) {
	a.transport.onLogon(sessionID)
}

// OnLogout implemented as part of Application interface
func (a *Application) OnLogout(sessionID quickfix.SessionID) {
	a.transport.onLogout(sessionID)
}

// ToAdmin implemented as part of Application interface
func (a *Application) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}

// ToApp implemented as part of Application interface
func (a *Application) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}

// FromAdmin implemented as part of Application interface
func (a *Application) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

// FromApp queues incoming application messages for the dispatcher goroutine.
func (a *Application) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	a.dispatcher <- &inboundMsg{msg, sessionID}
	return nil
}

func (a *Application) onExecutionReport(msg executionreport.ExecutionReport, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	clOrdID, _ := msg.GetClOrdID()
	id := reqIDFromClOrdID(clOrdID)
	ordStatus, _ := msg.GetOrdStatus()
	execType, _ := msg.GetExecType()
	cumQty, _ := msg.GetCumQty()
	leavesQty, _ := msg.GetLeavesQty()
	avgPx, _ := msg.GetAvgPx()
	symbol, _ := msg.GetSymbol()
	text, _ := msg.GetText()

	status := statusFromFix(ordStatus)

	// mass status responses belong to the open-order download that asked
	// for them, not to the order's own identity
	if massReqID, err := msg.GetMassStatusReqID(); err == nil && massReqID != "" {
		reqID := reqIDFromClOrdID(massReqID)
		side, _ := msg.GetSide()
		qty, _ := msg.GetOrderQty()
		price, _ := msg.GetPrice()
		// orders discovered through the download were placed by an earlier
		// session; remember their cancel metadata as if we placed them
		a.transport.orders.Store(id, orderMeta{symbol: symbol, side: side})
		a.transport.emit(broker.Event{
			Kind:  broker.KindOpenOrder,
			ReqID: reqID,
			OpenOrder: &model.OpenOrderRecord{
				OrderID:  id,
				Contract: model.Contract{Symbol: symbol},
				Order: model.Order{
					OrderID:    id,
					Action:     sideFromFix(side),
					Quantity:   qty,
					LimitPrice: price,
				},
				Status: status,
			},
		})
		if last, err := msg.GetLastRptRequested(); err == nil && last {
			a.transport.emit(broker.Event{Kind: broker.KindOpenOrderEnd, ReqID: reqID})
		}
		return nil
	}

	if ordStatus == enum.OrdStatus_REJECTED {
		reason, _ := msg.GetOrdRejReason()
		a.transport.emit(broker.Event{
			Kind:    broker.KindError,
			ReqID:   id,
			Code:    rejectCode(reason),
			Message: text,
		})
		return nil
	}

	a.transport.emit(broker.Event{
		Kind:  broker.KindOrderStatus,
		ReqID: id,
		Status: &model.OrderStatusUpdate{
			OrderID:      id,
			Status:       status,
			Filled:       cumQty,
			Remaining:    leavesQty,
			AvgFillPrice: avgPx,
		},
	})

	if execType == enum.ExecType_TRADE {
		execID, _ := msg.GetExecID()
		lastQty, _ := msg.GetLastQty()
		lastPx, _ := msg.GetLastPx()
		side, _ := msg.GetSide()
		account, _ := msg.GetAccount()
		transactTime, _ := msg.GetTransactTime()
		a.transport.emit(broker.Event{
			Kind:  broker.KindExecution,
			ReqID: id,
			Execution: &model.ExecutionRecord{
				ExecID:   execID,
				OrderID:  id,
				Contract: model.Contract{Symbol: symbol},
				Side:     sideFromFix(side),
				Quantity: lastQty,
				Price:    lastPx,
				Account:  account,
				Time:     transactTime,
			},
		})
	}
	return nil
}

func (a *Application) onOrderCancelReject(msg ordercancelreject.OrderCancelReject, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	origClOrdID, _ := msg.GetOrigClOrdID()
	reason, _ := msg.GetCxlRejReason()
	text, _ := msg.GetText()

	code := broker.CodeCannotCancel
	switch reason {
	case enum.CxlRejReason_TOO_LATE_TO_CANCEL:
		code = broker.CodeCannotCancelFilled
	case enum.CxlRejReason_ORDER_ALREADY_IN_PENDING_CANCEL_OR_PENDING_REPLACE_STATUS:
		// the order is already on its way out; the caller's cancel is
		// effectively satisfied
		code = broker.CodeOrderCancelled
	}

	a.transport.emit(broker.Event{
		Kind:    broker.KindError,
		ReqID:   reqIDFromClOrdID(origClOrdID),
		Code:    code,
		Message: text,
	})
	return nil
}

func (a *Application) onSecurityDefinition(msg securitydefinition.SecurityDefinition, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	reqIDStr, _ := msg.GetSecurityReqID()
	reqID := reqIDFromClOrdID(reqIDStr)
	symbol, _ := msg.GetSymbol()
	secType, _ := msg.GetSecurityType()
	currency, _ := msg.GetCurrency()
	exchange, _ := msg.GetSecurityExchange()
	text, _ := msg.GetText()

	details := &model.ContractDetails{
		Contract: model.Contract{
			Symbol:       symbol,
			SecurityType: model.SecurityType(secType),
			Currency:     currency,
			Exchange:     exchange,
		},
		LongName: text,
	}

	kind := broker.KindContractDetails
	end := broker.KindContractDetailsEnd
	if v, ok := a.transport.pending.LoadAndDelete(reqID); ok {
		if v.(broker.CommandType) == broker.CmdReqSecurityDefinitions {
			kind = broker.KindSecurityDefinition
			end = broker.KindSecurityDefinitionEnd
		}
	}

	a.transport.emit(broker.Event{Kind: kind, ReqID: reqID, Details: details})
	// the venue answers a definition request with a single message
	a.transport.emit(broker.Event{Kind: end, ReqID: reqID})
	return nil
}

func (a *Application) onPositionReport(msg positionreport.PositionReport, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	reqIDStr, _ := msg.GetPosReqID()
	reqID := reqIDFromClOrdID(reqIDStr)
	account, _ := msg.GetAccount()
	symbol, _ := msg.GetSymbol()
	currency, _ := msg.GetCurrency()
	settlPrice, _ := msg.GetSettlPrice()

	qty := decimal.Zero
	if group, err := msg.GetNoPositions(); err == nil && group.Len() > 0 {
		entry := group.Get(0)
		long, _ := entry.GetLongQty()
		short, _ := entry.GetShortQty()
		qty = long.Sub(short)
	}

	a.transport.emit(broker.Event{
		Kind:  broker.KindPosition,
		ReqID: reqID,
		Position: &model.Position{
			Account:     account,
			Contract:    model.Contract{Symbol: symbol, Currency: currency},
			Quantity:    qty,
			AverageCost: settlPrice,
		},
	})

	if v, ok := a.transport.posTotals.Load(reqID); ok {
		prog := v.(*posProgress)
		prog.mu.Lock()
		prog.received++
		if total, err := msg.GetTotalNumPosReports(); err == nil {
			prog.total = total
		}
		doneAll := prog.total >= 0 && prog.received >= prog.total
		prog.mu.Unlock()
		if doneAll {
			a.transport.posTotals.Delete(reqID)
			a.transport.emit(broker.Event{Kind: broker.KindPositionEnd, ReqID: reqID})
		}
	}
	return nil
}

func (a *Application) onRequestForPositionsAck(msg requestforpositionsack.RequestForPositionsAck, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	reqIDStr, _ := msg.GetPosReqID()
	reqID := reqIDFromClOrdID(reqIDStr)
	if total, err := msg.GetTotalNumPosReports(); err == nil && total == 0 {
		a.transport.posTotals.Delete(reqID)
		a.transport.emit(broker.Event{Kind: broker.KindPositionEnd, ReqID: reqID})
	}
	return nil
}

func (a *Application) onTradeCaptureReport(msg tradecapturereport.TradeCaptureReport, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	reqIDStr, _ := msg.GetTradeRequestID()
	reqID := reqIDFromClOrdID(reqIDStr)
	tradeReportID, _ := msg.GetTradeReportID()
	symbol, _ := msg.GetSymbol()
	lastQty, _ := msg.GetLastQty()
	lastPx, _ := msg.GetLastPx()
	transactTime, _ := msg.GetTransactTime()

	rec := &model.ExecutionRecord{
		ExecID:   tradeReportID,
		Contract: model.Contract{Symbol: symbol},
		Quantity: lastQty,
		Price:    lastPx,
		Time:     transactTime,
	}
	if sides, err := msg.GetNoSides(); err == nil && sides.Len() > 0 {
		entry := sides.Get(0)
		side, _ := entry.GetSide()
		rec.Side = sideFromFix(side)
		if orderID, err := entry.GetOrderID(); err == nil {
			rec.OrderID = reqIDFromClOrdID(orderID)
		}
		if account, err := entry.GetAccount(); err == nil {
			rec.Account = account
		}
	}

	a.transport.emit(broker.Event{Kind: broker.KindExecution, ReqID: reqID, Execution: rec})
	if last, err := msg.GetLastRptRequested(); err == nil && last {
		a.transport.emit(broker.Event{Kind: broker.KindExecutionEnd, ReqID: reqID})
	}
	return nil
}

func (a *Application) onCollateralReport(msg collateralreport.CollateralReport, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	account, _ := msg.GetAccount()
	currency, _ := msg.GetCurrency()

	put := func(key string, v decimal.Decimal, err quickfix.MessageRejectError) {
		if err != nil {
			return
		}
		a.transport.emit(broker.Event{
			Kind: broker.KindAccountValue,
			AccountValue: &model.AccountValue{
				Key:      key,
				Value:    v.String(),
				Currency: currency,
				Account:  account,
			},
		})
	}
	totalNet, errNet := msg.GetTotalNetValue()
	put("TotalNetValue", totalNet, errNet)
	marginExcess, errMargin := msg.GetMarginExcess()
	put("MarginExcess", marginExcess, errMargin)
	cash, errCash := msg.GetCashOutstanding()
	put("CashOutstanding", cash, errCash)

	a.transport.emit(broker.Event{Kind: broker.KindAccountDownloadEnd, Account: account})
	return nil
}

func (a *Application) onBusinessMessageReject(msg businessmessagereject.BusinessMessageReject, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	refID, _ := msg.GetBusinessRejectRefID()
	text, _ := msg.GetText()
	a.transport.emit(broker.Event{
		Kind:    broker.KindError,
		ReqID:   reqIDFromClOrdID(refID),
		Message: text,
	})
	return nil
}

func (a *Application) onMarketDataSnapshot(msg marketdatasnapshotfullrefresh.MarketDataSnapshotFullRefresh, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	reqIDStr, _ := msg.GetMDReqID()
	reqID := reqIDFromClOrdID(reqIDStr)

	entries, err := msg.GetNoMDEntries()
	if err != nil {
		return nil
	}
	for i := 0; i < entries.Len(); i++ {
		entry := entries.Get(i)
		entryType, _ := entry.GetMDEntryType()
		px, _ := entry.GetMDEntryPx()
		size, _ := entry.GetMDEntrySize()

		var kind model.TickKind
		switch entryType {
		case enum.MDEntryType_BID:
			kind = model.TickBid
		case enum.MDEntryType_OFFER:
			kind = model.TickAsk
		case enum.MDEntryType_TRADE:
			kind = model.TickLast
		case enum.MDEntryType_CLOSING_PRICE:
			kind = model.TickClose
		default:
			continue
		}
		a.transport.emit(broker.Event{
			Kind:  broker.KindTick,
			ReqID: reqID,
			Tick:  &model.Tick{Kind: kind, Price: px, Size: size},
		})
	}
	return nil
}

func seedFromClock() int64 {
	return time.Now().Unix()
}
