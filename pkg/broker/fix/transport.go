// Package fixtransport implements the broker Transport port over a FIX 4.4
// initiator session.
package fixtransport

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"

	"tradelink/pkg/broker"
)

const eventBufferSize = 4096

type Config struct {
	// SettingsPath points at the quickfix session settings file; the
	// socket address and comp ids live there.
	SettingsPath string `yaml:"settings_path"`
	Account      string `yaml:"account"`
}

// Transport drives one FIX session. Inbound application messages are routed
// on a single dispatcher goroutine and translated into broker events, so the
// client observes them in wire order.
type Transport struct {
	cfg *Config
	log *zap.SugaredLogger

	mu        sync.Mutex
	app       *Application
	initiator *quickfix.Initiator
	sessionID quickfix.SessionID

	events chan broker.Event

	// pending remembers which command a request identity belongs to, for
	// inbound message types that serve more than one request kind
	pending sync.Map // int64 -> broker.CommandType
	// orders remembers symbol/side per placed order; cancel requests and
	// reports need them
	orders sync.Map // int64 -> orderMeta
	// posTotals tracks position report counts per request for end detection
	posTotals sync.Map // int64 -> *posProgress
}

type orderMeta struct {
	symbol string
	side   enum.Side
}

type posProgress struct {
	mu       sync.Mutex
	received int
	total    int
}

func New(cfg *Config) *Transport {
	return &Transport{
		cfg:    cfg,
		log:    zap.S().With("component", "fixtransport"),
		events: make(chan broker.Event, eventBufferSize),
	}
}

// Connect starts the initiator. The socket endpoint comes from the settings
// file; host/port/clientID are accepted for interface compatibility and
// logged when they disagree with the session config.
func (t *Transport) Connect(host string, port int, clientID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initiator != nil {
		return nil
	}

	app, initiator, err := startApp(t.cfg.SettingsPath, t)
	if err != nil {
		return fmt.Errorf("start fix initiator: %w", err)
	}
	t.app = app
	t.initiator = initiator
	t.log.Infow("fix initiator started", "host", host, "port", port, "client_id", clientID)
	return nil
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initiator == nil {
		return nil
	}
	t.initiator.Stop()
	t.app.stop()
	t.initiator = nil
	t.app = nil
	return nil
}

func (t *Transport) Events() <-chan broker.Event { return t.events }

func (t *Transport) Send(cmd broker.Command) error {
	t.mu.Lock()
	sessionID := t.sessionID
	t.mu.Unlock()

	var msg quickfix.Messagable
	switch cmd.Type {
	case broker.CmdPlaceOrder:
		t.orders.Store(cmd.ReqID, orderMeta{
			symbol: cmd.Contract.Symbol,
			side:   sideToFix(cmd.Order.Action),
		})
		msg = newOrderSingle(cmd, t.cfg.Account)
	case broker.CmdCancelOrder:
		meta, ok := t.loadOrderMeta(cmd.ReqID)
		if !ok {
			return fmt.Errorf("cancel for unknown order id %d", cmd.ReqID)
		}
		msg = orderCancelRequest(cmd.ReqID, meta)
	case broker.CmdReqContractDetails, broker.CmdReqSecurityDefinitions:
		t.pending.Store(cmd.ReqID, cmd.Type)
		msg = securityDefinitionRequest(cmd)
	case broker.CmdReqOpenOrders:
		msg = orderMassStatusRequest(cmd.ReqID)
	case broker.CmdReqPositions:
		t.posTotals.Store(cmd.ReqID, &posProgress{total: -1})
		msg = requestForPositions(cmd.ReqID, t.cfg.Account)
	case broker.CmdReqExecutions:
		msg = tradeCaptureReportRequest(cmd.ReqID)
	case broker.CmdReqAccountUpdates:
		msg = collateralInquiry(cmd)
	case broker.CmdReqMarketData:
		msg = marketDataRequest(cmd, true)
	case broker.CmdCancelMarketData:
		msg = marketDataRequest(cmd, false)
	case broker.CmdReqPnL, broker.CmdCancelPnL:
		return fmt.Errorf("pnl subscriptions are not carried over the fix session")
	default:
		return fmt.Errorf("unsupported command type %d", cmd.Type)
	}

	return quickfix.SendToTarget(msg, sessionID)
}

func (t *Transport) loadOrderMeta(id int64) (orderMeta, bool) {
	v, ok := t.orders.Load(id)
	if !ok {
		return orderMeta{}, false
	}
	return v.(orderMeta), true
}

// emit hands one translated event to the client's reader goroutine. Blocking
// here backpressures the dispatcher, never the quickfix session thread.
func (t *Transport) emit(ev broker.Event) {
	t.events <- ev
}

func (t *Transport) onLogon(sessionID quickfix.SessionID) {
	t.mu.Lock()
	t.sessionID = sessionID
	t.mu.Unlock()
	t.emit(broker.Event{Kind: broker.KindConnAck})
	// the venue does not assign order identities; seed from the epoch clock
	// so identities stay unique across sessions
	t.emit(broker.Event{Kind: broker.KindNextOrderID, NextID: seedFromClock()})
}

func (t *Transport) onLogout(quickfix.SessionID) {
	t.emit(broker.Event{Kind: broker.KindConnClosed})
}

// reqIDFromClOrdID recovers the request identity from a ClOrdID of the form
// "<id>" or "<id>-<suffix>".
func reqIDFromClOrdID(clOrdID string) int64 {
	if i := strings.IndexByte(clOrdID, '-'); i >= 0 {
		clOrdID = clOrdID[:i]
	}
	id, err := strconv.ParseInt(clOrdID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
