package broker

import "tradelink/pkg/broker/model"

// EventKind discriminates the callbacks the transport can push.
type EventKind int

const (
	KindConnAck EventKind = iota + 1
	KindConnClosed
	KindError
	KindNextOrderID
	KindOrderStatus
	KindOpenOrder
	KindOpenOrderEnd
	KindContractDetails
	KindContractDetailsEnd
	KindPosition
	KindPositionEnd
	KindExecution
	KindExecutionEnd
	KindAccountValue
	KindAccountDownloadEnd
	KindTick
	KindPnL
	KindSecurityDefinition
	KindSecurityDefinitionEnd
)

var kindNames = map[EventKind]string{
	KindConnAck:               "conn_ack",
	KindConnClosed:            "conn_closed",
	KindError:                 "error",
	KindNextOrderID:           "next_order_id",
	KindOrderStatus:           "order_status",
	KindOpenOrder:             "open_order",
	KindOpenOrderEnd:          "open_order_end",
	KindContractDetails:       "contract_details",
	KindContractDetailsEnd:    "contract_details_end",
	KindPosition:              "position",
	KindPositionEnd:           "position_end",
	KindExecution:             "execution",
	KindExecutionEnd:          "execution_end",
	KindAccountValue:          "account_value",
	KindAccountDownloadEnd:    "account_download_end",
	KindTick:                  "tick",
	KindPnL:                   "pnl",
	KindSecurityDefinition:    "security_definition",
	KindSecurityDefinitionEnd: "security_definition_end",
}

func (k EventKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is one inbound callback. Kind selects which payload fields are set.
// ReqID carries the request or order identity the event correlates to; it is
// zero for connection-level events.
type Event struct {
	Kind  EventKind
	ReqID int64

	// KindError
	Code    int
	Message string

	// KindNextOrderID
	NextID int64

	// KindAccountDownloadEnd
	Account string

	Status       *model.OrderStatusUpdate
	OpenOrder    *model.OpenOrderRecord
	Details      *model.ContractDetails
	Position     *model.Position
	Execution    *model.ExecutionRecord
	AccountValue *model.AccountValue
	Tick         *model.Tick
	PnL          *model.PnLUpdate
}
