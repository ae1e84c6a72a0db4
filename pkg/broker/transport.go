package broker

import "tradelink/pkg/broker/model"

// CommandType discriminates outbound commands.
type CommandType int

const (
	CmdPlaceOrder CommandType = iota + 1
	CmdCancelOrder
	CmdReqContractDetails
	CmdReqOpenOrders
	CmdReqPositions
	CmdReqExecutions
	CmdReqAccountUpdates
	CmdReqMarketData
	CmdCancelMarketData
	CmdReqPnL
	CmdCancelPnL
	CmdReqSecurityDefinitions
)

// Command is one outbound request. Type selects which fields are set; ReqID
// is the identity the caller registered listeners under.
type Command struct {
	Type  CommandType
	ReqID int64

	Contract *model.Contract
	Order    *model.Order

	// CmdReqAccountUpdates
	Account   string
	Subscribe bool
}

// Transport is the single physical broker connection. Implementations own
// the wire protocol; they must tag every event they emit with the identity
// of the request that caused it. Exactly one Transport exists per Client.
//
// Send must be safe to call from multiple goroutines once Connect has been
// acknowledged. Events must deliver events in wire arrival order.
type Transport interface {
	Connect(host string, port int, clientID int) error
	Disconnect() error
	Send(cmd Command) error
	Events() <-chan Event
}
