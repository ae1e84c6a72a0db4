package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one account/instrument snapshot entry. Quantity is signed:
// positive is long, negative is short. The snapshot does not retain the
// original trading venue, so Contract.Exchange may be empty.
type Position struct {
	Account     string
	Contract    Contract
	Quantity    decimal.Decimal
	AverageCost decimal.Decimal
}

// ExecutionRecord is one fill reported by the broker.
type ExecutionRecord struct {
	ExecID   string
	OrderID  int64
	Contract Contract
	Side     OrderSide
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Exchange string
	Account  string
	Time     time.Time
}

// AccountValue is one key/value entry of an account update stream.
type AccountValue struct {
	Key      string
	Value    string
	Currency string
	Account  string
}

// TickKind discriminates market data tick fields.
type TickKind string

const (
	TickBid   TickKind = "BID"
	TickAsk   TickKind = "ASK"
	TickLast  TickKind = "LAST"
	TickClose TickKind = "CLOSE"
)

// Tick is one market data update for a subscribed contract.
type Tick struct {
	Kind  TickKind
	Price decimal.Decimal
	Size  decimal.Decimal
}

// PnLUpdate is one profit-and-loss update for a subscribed account.
type PnLUpdate struct {
	Account    string
	Daily      decimal.Decimal
	Unrealized decimal.Decimal
	Realized   decimal.Decimal
}
