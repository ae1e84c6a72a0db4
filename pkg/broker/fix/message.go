package fixtransport

import (
	"strconv"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/collateralinquiry"
	"github.com/quickfixgo/fix44/marketdatarequest"
	"github.com/quickfixgo/fix44/newordersingle"
	"github.com/quickfixgo/fix44/ordercancelrequest"
	"github.com/quickfixgo/fix44/ordermassstatusrequest"
	"github.com/quickfixgo/fix44/requestforpositions"
	"github.com/quickfixgo/fix44/securitydefinitionrequest"
	"github.com/quickfixgo/fix44/tradecapturereportrequest"
	"github.com/quickfixgo/quickfix"

	"tradelink/pkg/broker"
	"tradelink/pkg/broker/model"
)

const priceScale = 2

var (
	sideMapping = map[model.OrderSide]enum.Side{
		model.OrderSideBuy:  enum.Side_BUY,
		model.OrderSideSell: enum.Side_SELL,
	}

	ordTypeMapping = map[model.OrderType]enum.OrdType{
		model.OrderTypeLimit:     enum.OrdType_LIMIT,
		model.OrderTypeMarket:    enum.OrdType_MARKET,
		model.OrderTypeStop:      enum.OrdType_STOP,
		model.OrderTypeStopLimit: enum.OrdType_STOP_LIMIT,
		model.OrderTypePegMarket: enum.OrdType_PEGGED,
	}

	tifMapping = map[model.OrderTimeInForce]enum.TimeInForce{
		model.OrderTimeInForceDAY: enum.TimeInForce_DAY,
		model.OrderTimeInForceGTC: enum.TimeInForce_GOOD_TILL_CANCEL,
		model.OrderTimeInForceIOC: enum.TimeInForce_IMMEDIATE_OR_CANCEL,
		model.OrderTimeInForceFOK: enum.TimeInForce_FILL_OR_KILL,
	}

	statusMapping = map[enum.OrdStatus]model.OrderStatus{
		enum.OrdStatus_PENDING_NEW:      model.OrderStatusPendingSubmit,
		enum.OrdStatus_NEW:              model.OrderStatusSubmitted,
		enum.OrdStatus_PARTIALLY_FILLED: model.OrderStatusSubmitted,
		enum.OrdStatus_FILLED:           model.OrderStatusFilled,
		enum.OrdStatus_CANCELED:         model.OrderStatusCancelled,
		// still working until the cancel is confirmed
		enum.OrdStatus_PENDING_CANCEL: model.OrderStatusSubmitted,
		enum.OrdStatus_REJECTED:       model.OrderStatusRejected,
		enum.OrdStatus_SUSPENDED:      model.OrderStatusInactive,
	}
)

func sideToFix(s model.OrderSide) enum.Side {
	return sideMapping[s]
}

func sideFromFix(s enum.Side) model.OrderSide {
	if s == enum.Side_SELL {
		return model.OrderSideSell
	}
	return model.OrderSideBuy
}

func statusFromFix(s enum.OrdStatus) model.OrderStatus {
	if st, ok := statusMapping[s]; ok {
		return st
	}
	return model.OrderStatusInactive
}

func rejectCode(reason enum.OrdRejReason) int {
	switch reason {
	case enum.OrdRejReason_UNKNOWN_SYMBOL:
		return broker.CodeAmbiguousContract
	case enum.OrdRejReason_UNSUPPORTED_ORDER_CHARACTERISTIC, enum.OrdRejReason_INCORRECT_QUANTITY:
		return broker.CodeInvalidOrderType
	}
	return 0
}

func clOrdID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func newOrderSingle(cmd broker.Command, account string) quickfix.Messagable {
	order := cmd.Order
	msg := newordersingle.New(
		field.NewClOrdID(clOrdID(cmd.ReqID)),
		field.NewSide(sideToFix(order.Action)),
		field.NewTransactTime(time.Now().UTC()),
		field.NewOrdType(ordTypeMapping[order.Type]),
	)
	msg.SetSymbol(cmd.Contract.Symbol)
	msg.SetOrderQty(order.Quantity, 0)
	msg.SetTimeInForce(tifMapping[order.TimeInForce])
	if order.Account != "" {
		account = order.Account
	}
	msg.SetAccount(account)
	if cmd.Contract.SecurityType != "" {
		msg.SetSecurityType(enum.SecurityType(cmd.Contract.SecurityType))
	}
	if cmd.Contract.Exchange != "" {
		msg.SetExDestination(enum.ExDestination(cmd.Contract.Exchange))
	}
	if !order.LimitPrice.IsZero() {
		msg.SetPrice(order.LimitPrice, priceScale)
	}
	if !order.AuxPrice.IsZero() {
		msg.SetStopPx(order.AuxPrice, priceScale)
	}
	// bracket linkage: children reference the root leg
	if order.ParentID != 0 {
		msg.SetClOrdLinkID(clOrdID(order.ParentID))
	}
	return msg
}

func orderCancelRequest(id int64, meta orderMeta) quickfix.Messagable {
	msg := ordercancelrequest.New(
		field.NewOrigClOrdID(clOrdID(id)),
		field.NewClOrdID(clOrdID(id)+"-cxl"),
		field.NewSide(meta.side),
		field.NewTransactTime(time.Now().UTC()),
	)
	msg.SetSymbol(meta.symbol)
	return msg
}

func securityDefinitionRequest(cmd broker.Command) quickfix.Messagable {
	msg := securitydefinitionrequest.New(
		field.NewSecurityReqID(clOrdID(cmd.ReqID)),
		field.NewSecurityRequestType(enum.SecurityRequestType_REQUEST_SECURITY_IDENTITY_AND_SPECIFICATIONS),
	)
	msg.SetSymbol(cmd.Contract.Symbol)
	if cmd.Contract.SecurityType != "" {
		msg.SetSecurityType(enum.SecurityType(cmd.Contract.SecurityType))
	}
	if cmd.Contract.Currency != "" {
		msg.SetCurrency(cmd.Contract.Currency)
	}
	return msg
}

func orderMassStatusRequest(reqID int64) quickfix.Messagable {
	return ordermassstatusrequest.New(
		field.NewMassStatusReqID(clOrdID(reqID)),
		field.NewMassStatusReqType(enum.MassStatusReqType_STATUS_FOR_ALL_ORDERS),
	)
}

func requestForPositions(reqID int64, account string) quickfix.Messagable {
	msg := requestforpositions.New(
		field.NewPosReqID(clOrdID(reqID)),
		field.NewPosReqType(enum.PosReqType_POSITIONS),
		field.NewAccount(account),
		field.NewAccountType(enum.AccountType_ACCOUNT_IS_CARRIED_ON_CUSTOMER_SIDE_OF_THE_BOOKS),
		field.NewClearingBusinessDate(time.Now().UTC().Format("20060102")),
		field.NewTransactTime(time.Now().UTC()),
	)
	msg.SetSubscriptionRequestType(enum.SubscriptionRequestType_SNAPSHOT)
	return msg
}

func tradeCaptureReportRequest(reqID int64) quickfix.Messagable {
	return tradecapturereportrequest.New(
		field.NewTradeRequestID(clOrdID(reqID)),
		field.NewTradeRequestType(enum.TradeRequestType_ALL_TRADES),
	)
}

func collateralInquiry(cmd broker.Command) quickfix.Messagable {
	msg := collateralinquiry.New()
	msg.SetCollInquiryID(clOrdID(cmd.ReqID))
	msg.SetAccount(cmd.Account)
	if cmd.Subscribe {
		msg.SetSubscriptionRequestType(enum.SubscriptionRequestType_SNAPSHOT_PLUS_UPDATES)
	} else {
		msg.SetSubscriptionRequestType(enum.SubscriptionRequestType_DISABLE_PREVIOUS_SNAPSHOT_PLUS_UPDATE_REQUEST)
	}
	return msg
}

func marketDataRequest(cmd broker.Command, subscribe bool) quickfix.Messagable {
	subType := enum.SubscriptionRequestType_SNAPSHOT_PLUS_UPDATES
	if !subscribe {
		subType = enum.SubscriptionRequestType_DISABLE_PREVIOUS_SNAPSHOT_PLUS_UPDATE_REQUEST
	}
	msg := marketdatarequest.New(
		field.NewMDReqID(clOrdID(cmd.ReqID)),
		field.NewSubscriptionRequestType(subType),
		field.NewMarketDepth(1),
	)

	entryTypes := marketdatarequest.NewNoMDEntryTypesRepeatingGroup()
	entryTypes.Add().SetMDEntryType(enum.MDEntryType_BID)
	entryTypes.Add().SetMDEntryType(enum.MDEntryType_OFFER)
	entryTypes.Add().SetMDEntryType(enum.MDEntryType_TRADE)
	msg.SetNoMDEntryTypes(entryTypes)

	if subscribe && cmd.Contract != nil {
		symbols := marketdatarequest.NewNoRelatedSymRepeatingGroup()
		symbols.Add().SetSymbol(cmd.Contract.Symbol)
		msg.SetNoRelatedSym(symbols)
	}
	return msg
}
