package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tradelink/pkg/broker/model"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultSettleDelay    = 500 * time.Millisecond
	defaultCallTimeout    = 5 * time.Second
	defaultTickTimeout    = 60 * time.Second
	defaultSecDefTimeout  = 10 * time.Second
)

type Config struct {
	Host     string
	Port     int
	ClientID int
	Account  string

	// ConnectTimeout bounds the wait for the connection ack and close
	// events.
	ConnectTimeout time.Duration
	// SettleDelay is imposed after the ack before EnsureConnected returns;
	// the broker floods the channel with informational noise right after
	// connecting and commands issued too early race against it.
	SettleDelay time.Duration
	// CallTimeout is the default deadline for queries and order commands.
	CallTimeout time.Duration
	// TickTimeout is the default deadline for market data requests.
	TickTimeout time.Duration
	// SecDefTimeout is the default deadline for security definition lookups.
	SecDefTimeout time.Duration
}

func (c *Config) withDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = defaultTickTimeout
	}
	if c.SecDefTimeout <= 0 {
		c.SecDefTimeout = defaultSecDefTimeout
	}
}

// Client turns one broker connection's event-driven callback surface into a
// request/response API. All completions are driven by the single reader
// goroutine; callers may issue commands concurrently.
type Client struct {
	cfg       Config
	transport Transport
	hub       *Hub
	seq       *Sequencer
	log       *zap.SugaredLogger

	state atomic.Int32

	mu       sync.Mutex // serializes connect/disconnect transitions
	pumpStop chan struct{}
	pumpDone chan struct{}
}

func NewClient(cfg Config, transport Transport) *Client {
	cfg.withDefaults()
	c := &Client{
		cfg:       cfg,
		transport: transport,
		hub:       NewHub(),
		log:       zap.S().With("component", "broker", "client_id", cfg.ClientID),
	}
	c.seq = newSequencer(cfg.ConnectTimeout)

	// the seed is pushed once per connection; the listener lives as long as
	// the client
	c.hub.Attach(KindNextOrderID, func(ev Event) {
		c.seq.Seed(ev.NextID)
	})
	c.hub.Attach(KindConnClosed, func(Event) {
		c.state.Store(int32(StateDisconnected))
	})

	return c
}

// Hub exposes the event hub for feed subscribers.
func (c *Client) Hub() *Hub { return c.hub }

// NextOrderID allocates the next request identity. See Sequencer.
func (c *Client) NextOrderID(ctx context.Context) (int64, error) {
	return c.seq.NextOrderID(ctx)
}

func (c *Client) send(cmd Command) error {
	if c.State() != StateConnected {
		return errNotConnected
	}
	return c.transport.Send(cmd)
}

// PlaceOrder submits one order under the given identity and waits for the
// broker's verdict. It returns true when an order notification reports the
// order accepted (Submitted or PreSubmitted), and false — not an error — when
// the broker rejects it with a recognized terminal code (invalid order type,
// ambiguous contract), so compound orchestrators can aggregate partial
// failure. Unrecognized rejection codes surface as *BrokerError.
func (c *Client) PlaceOrder(ctx context.Context, id int64, contract model.Contract, order model.Order, opts ...CallOption) (bool, error) {
	order.OrderID = id
	if order.Account == "" {
		order.Account = c.cfg.Account
	}

	cl := c.preparePlace(id)
	if err := c.send(Command{Type: CmdPlaceOrder, ReqID: id, Contract: &contract, Order: &order}); err != nil {
		cl.resolve(nil, err)
	}
	v, err := cl.wait(ctx, pickTimeout(c.cfg.CallTimeout, opts))
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// preparePlace registers the place-order listener set without sending
// anything. The bracket orchestrator uses it to pin down all leg listeners
// before the first command goes out.
func (c *Client) preparePlace(id int64) *call {
	cl := newCall(c.hub, id)
	accept := func(status model.OrderStatus) {
		// PendingSubmit is the broker's not-yet-accepted ack; it can still
		// turn into a rejection, so only the accepted states resolve
		switch status {
		case model.OrderStatusSubmitted, model.OrderStatusPreSubmitted:
			cl.resolve(true, nil)
		}
	}
	cl.on(KindOrderStatus, func(ev Event) {
		accept(ev.Status.Status)
	})
	cl.on(KindOpenOrder, func(ev Event) {
		accept(ev.OpenOrder.Status)
	})
	cl.on(KindError, func(ev Event) {
		switch ev.Code {
		case CodeInvalidOrderType, CodeAmbiguousContract:
			cl.resolve(false, nil)
		default:
			cl.resolve(nil, newBrokerError(ev))
		}
	})
	return cl
}

// CancelOrder cancels the order with the given identity. Cancelling an order
// that is already cancelled counts as success; an order the broker can no
// longer cancel resolves false. Unrecognized codes surface as *BrokerError.
func (c *Client) CancelOrder(ctx context.Context, id int64, opts ...CallOption) (bool, error) {
	cl := newCall(c.hub, id)
	cl.on(KindOrderStatus, func(ev Event) {
		if ev.Status.Status == model.OrderStatusCancelled {
			cl.resolve(true, nil)
		}
	})
	cl.on(KindError, func(ev Event) {
		switch ev.Code {
		case CodeOrderCancelled:
			// the broker reports cancel confirmation through the error
			// channel on some paths
			cl.resolve(true, nil)
		case CodeCannotCancel, CodeCannotCancelFilled:
			cl.resolve(false, nil)
		default:
			cl.resolve(nil, newBrokerError(ev))
		}
	})

	if err := c.send(Command{Type: CmdCancelOrder, ReqID: id}); err != nil {
		cl.resolve(nil, err)
	}
	v, err := cl.wait(ctx, pickTimeout(c.cfg.CallTimeout, opts))
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// GetContractDetails resolves a contract description. An ambiguous contract
// legitimately yields more than one result; the list is final only once the
// end event for this request has arrived.
func (c *Client) GetContractDetails(ctx context.Context, contract model.Contract, opts ...CallOption) ([]model.ContractDetails, error) {
	id, err := c.seq.NextOrderID(ctx)
	if err != nil {
		return nil, err
	}

	cl := newCall(c.hub, id)
	var acc []model.ContractDetails
	cl.on(KindContractDetails, func(ev Event) {
		acc = append(acc, *ev.Details)
	})
	cl.on(KindContractDetailsEnd, func(Event) {
		cl.resolve(acc, nil)
	})
	cl.fail()

	if err := c.send(Command{Type: CmdReqContractDetails, ReqID: id, Contract: &contract}); err != nil {
		cl.resolve(nil, err)
	}
	v, err := cl.wait(ctx, pickTimeout(c.cfg.CallTimeout, opts))
	if err != nil {
		return nil, err
	}
	return v.([]model.ContractDetails), nil
}

// RequestOpenOrders downloads the current open orders. Order-preserving; the
// same logical order can appear more than once.
func (c *Client) RequestOpenOrders(ctx context.Context, opts ...CallOption) ([]model.OpenOrderRecord, error) {
	id, err := c.seq.NextOrderID(ctx)
	if err != nil {
		return nil, err
	}

	cl := newCall(c.hub, id)
	var acc []model.OpenOrderRecord
	cl.on(KindOpenOrder, func(ev Event) {
		acc = append(acc, *ev.OpenOrder)
	})
	cl.on(KindOpenOrderEnd, func(Event) {
		cl.resolve(acc, nil)
	})
	cl.fail()

	if err := c.send(Command{Type: CmdReqOpenOrders, ReqID: id}); err != nil {
		cl.resolve(nil, err)
	}
	v, err := cl.wait(ctx, pickTimeout(c.cfg.CallTimeout, opts))
	if err != nil {
		return nil, err
	}
	return v.([]model.OpenOrderRecord), nil
}

// RequestPositions downloads the position snapshot for all accounts on this
// connection.
func (c *Client) RequestPositions(ctx context.Context, opts ...CallOption) ([]model.Position, error) {
	id, err := c.seq.NextOrderID(ctx)
	if err != nil {
		return nil, err
	}

	cl := newCall(c.hub, id)
	var acc []model.Position
	cl.on(KindPosition, func(ev Event) {
		acc = append(acc, *ev.Position)
	})
	cl.on(KindPositionEnd, func(Event) {
		cl.resolve(acc, nil)
	})
	cl.fail()

	if err := c.send(Command{Type: CmdReqPositions, ReqID: id}); err != nil {
		cl.resolve(nil, err)
	}
	v, err := cl.wait(ctx, pickTimeout(c.cfg.CallTimeout, opts))
	if err != nil {
		return nil, err
	}
	return v.([]model.Position), nil
}

// RequestExecutions downloads the fills reported for the current session.
func (c *Client) RequestExecutions(ctx context.Context, opts ...CallOption) ([]model.ExecutionRecord, error) {
	id, err := c.seq.NextOrderID(ctx)
	if err != nil {
		return nil, err
	}

	cl := newCall(c.hub, id)
	var acc []model.ExecutionRecord
	cl.on(KindExecution, func(ev Event) {
		acc = append(acc, *ev.Execution)
	})
	cl.on(KindExecutionEnd, func(Event) {
		cl.resolve(acc, nil)
	})
	cl.fail()

	if err := c.send(Command{Type: CmdReqExecutions, ReqID: id}); err != nil {
		cl.resolve(nil, err)
	}
	v, err := cl.wait(ctx, pickTimeout(c.cfg.CallTimeout, opts))
	if err != nil {
		return nil, err
	}
	return v.([]model.ExecutionRecord), nil
}

// RequestSecurityDefinitions looks up the broker's security definitions
// matching the contract. Slower than the other queries; carries its own
// default deadline.
func (c *Client) RequestSecurityDefinitions(ctx context.Context, contract model.Contract, opts ...CallOption) ([]model.ContractDetails, error) {
	id, err := c.seq.NextOrderID(ctx)
	if err != nil {
		return nil, err
	}

	cl := newCall(c.hub, id)
	var acc []model.ContractDetails
	cl.on(KindSecurityDefinition, func(ev Event) {
		acc = append(acc, *ev.Details)
	})
	cl.on(KindSecurityDefinitionEnd, func(Event) {
		cl.resolve(acc, nil)
	})
	cl.fail()

	if err := c.send(Command{Type: CmdReqSecurityDefinitions, ReqID: id, Contract: &contract}); err != nil {
		cl.resolve(nil, err)
	}
	v, err := cl.wait(ctx, pickTimeout(c.cfg.SecDefTimeout, opts))
	if err != nil {
		return nil, err
	}
	return v.([]model.ContractDetails), nil
}

// SubscribeMarketData opens a tick stream for the contract. Closing the
// stream cancels the subscription at the broker.
func (c *Client) SubscribeMarketData(ctx context.Context, contract model.Contract) (*TickStream, error) {
	id, err := c.seq.NextOrderID(ctx)
	if err != nil {
		return nil, err
	}

	stream := c.hub.Channel(func(ev Event) bool { return ev.ReqID == id }, KindTick)
	if err := c.send(Command{Type: CmdReqMarketData, ReqID: id, Contract: &contract}); err != nil {
		stream.Close()
		return nil, err
	}
	return &TickStream{client: c, reqID: id, stream: stream}, nil
}

// SubscribePnL opens a profit-and-loss stream for the account. Closing the
// stream cancels the subscription at the broker.
func (c *Client) SubscribePnL(ctx context.Context, account string) (*PnLStream, error) {
	id, err := c.seq.NextOrderID(ctx)
	if err != nil {
		return nil, err
	}
	if account == "" {
		account = c.cfg.Account
	}

	stream := c.hub.Channel(func(ev Event) bool { return ev.ReqID == id }, KindPnL)
	if err := c.send(Command{Type: CmdReqPnL, ReqID: id, Account: account}); err != nil {
		stream.Close()
		return nil, err
	}
	return &PnLStream{client: c, reqID: id, stream: stream}, nil
}

// TickStream delivers market data updates for one subscription.
type TickStream struct {
	client *Client
	reqID  int64
	stream *Stream
	once   sync.Once
}

func (s *TickStream) Events() <-chan Event { return s.stream.Events() }

func (s *TickStream) Close() {
	s.once.Do(func() {
		s.stream.Close()
		if err := s.client.send(Command{Type: CmdCancelMarketData, ReqID: s.reqID}); err != nil {
			s.client.log.Warnw("cancel market data failed", "req_id", s.reqID, "err", err)
		}
	})
}

// PnLStream delivers PnL updates for one subscription.
type PnLStream struct {
	client *Client
	reqID  int64
	stream *Stream
	once   sync.Once
}

func (s *PnLStream) Events() <-chan Event { return s.stream.Events() }

func (s *PnLStream) Close() {
	s.once.Do(func() {
		s.stream.Close()
		if err := s.client.send(Command{Type: CmdCancelPnL, ReqID: s.reqID}); err != nil {
			s.client.log.Warnw("cancel pnl failed", "req_id", s.reqID, "err", err)
		}
	})
}
