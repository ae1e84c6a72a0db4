package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"tradelink/pkg/broker"
)

// Config names the JetStream destination for published broker events.
type Config struct {
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.URL == "" {
		out.URL = nats.DefaultURL
	}
	if out.Stream == "" {
		out.Stream = "TRADELINK"
	}
	if out.Subject == "" {
		out.Subject = "TRADELINK.events"
	}
	return out
}

// OrderEvent is the wire envelope for one order lifecycle change.
type OrderEvent struct {
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	OrderID   int64     `json:"order_id"`
	Status    string    `json:"status,omitempty"`
	Filled    string    `json:"filled,omitempty"`
	Remaining string    `json:"remaining,omitempty"`
	AvgPrice  string    `json:"avg_price,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	Side      string    `json:"side,omitempty"`
	Quantity  string    `json:"quantity,omitempty"`
	Price     string    `json:"price,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher mirrors order status and execution events onto a JetStream
// subject so downstream consumers see the same stream the client does.
type Publisher struct {
	cfg    Config
	log    *zap.SugaredLogger
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream *broker.Stream
	done   chan struct{}
}

func NewPublisher(cfg Config, hub *broker.Hub, log *zap.SugaredLogger) (*Publisher, error) {
	cfg = cfg.withDefaults()

	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	// the stream may already exist from a previous run
	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Stream + ".*"},
	}); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		nc.Close()
		return nil, err
	}

	p := &Publisher{
		cfg:    cfg,
		log:    log,
		nc:     nc,
		js:     js,
		stream: hub.Channel(nil, broker.KindOrderStatus, broker.KindExecution),
		done:   make(chan struct{}),
	}
	go p.run()
	return p, nil
}

func (p *Publisher) run() {
	defer close(p.done)
	for ev := range p.stream.Events() {
		if err := p.publish(ev); err != nil {
			p.log.Warnw("publish event", "kind", ev.Kind, "err", err)
		}
	}
}

func (p *Publisher) publish(ev broker.Event) error {
	out := OrderEvent{
		EventID:   uuid.NewString(),
		Kind:      ev.Kind.String(),
		Timestamp: time.Now().UTC(),
	}
	switch ev.Kind {
	case broker.KindOrderStatus:
		if ev.Status == nil {
			return nil
		}
		out.OrderID = ev.Status.OrderID
		out.Status = string(ev.Status.Status)
		out.Filled = ev.Status.Filled.String()
		out.Remaining = ev.Status.Remaining.String()
		out.AvgPrice = ev.Status.AvgFillPrice.String()
	case broker.KindExecution:
		if ev.Execution == nil {
			return nil
		}
		out.OrderID = ev.Execution.OrderID
		out.Symbol = ev.Execution.Contract.Symbol
		out.Side = string(ev.Execution.Side)
		out.Quantity = ev.Execution.Quantity.String()
		out.Price = ev.Execution.Price.String()
	default:
		return nil
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(p.cfg.Subject, data, nats.Context(context.Background()))
	return err
}

// Close detaches from the hub, drains in-flight publishes and closes the
// NATS connection.
func (p *Publisher) Close() {
	p.stream.Close()
	<-p.done
	p.nc.Close()
}
