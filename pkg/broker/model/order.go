package model

import (
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingSubmit OrderStatus = "PendingSubmit"
	OrderStatusPreSubmitted  OrderStatus = "PreSubmitted"
	OrderStatusSubmitted     OrderStatus = "Submitted"
	OrderStatusFilled        OrderStatus = "Filled"
	OrderStatusCancelled     OrderStatus = "Cancelled"
	OrderStatusRejected      OrderStatus = "Rejected"
	OrderStatusInactive      OrderStatus = "Inactive"
)

// IsLive reports whether the broker considers the order working on the book.
func (s OrderStatus) IsLive() bool {
	switch s {
	case OrderStatusPendingSubmit, OrderStatusPreSubmitted, OrderStatusSubmitted:
		return true
	}
	return false
}

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the closing side for a position opened on s.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

type OrderType string

const (
	OrderTypeLimit     OrderType = "LMT"
	OrderTypeMarket    OrderType = "MKT"
	OrderTypeStop      OrderType = "STP"
	OrderTypeStopLimit OrderType = "STP LMT"
	OrderTypePegMarket OrderType = "PEG MKT"
)

type OrderTimeInForce string

const (
	OrderTimeInForceDAY OrderTimeInForce = "DAY"
	OrderTimeInForceGTC OrderTimeInForce = "GTC"
	OrderTimeInForceIOC OrderTimeInForce = "IOC"
	OrderTimeInForceFOK OrderTimeInForce = "FOK"
)

// Order is the outbound order record. ParentID links bracket children to the
// root leg; Transmit=false holds a leg at the broker until the final leg of
// the set arrives with Transmit=true.
type Order struct {
	OrderID  int64
	ParentID int64 // 0 = root order

	Action      OrderSide
	Type        OrderType
	Quantity    decimal.Decimal
	LimitPrice  decimal.Decimal
	AuxPrice    decimal.Decimal // stop trigger / peg offset
	TimeInForce OrderTimeInForce
	Transmit    bool

	OCAGroup string
	OCAType  int

	Account string
}

// OrderStatusUpdate is pushed by the broker whenever an order transitions.
type OrderStatusUpdate struct {
	OrderID      int64
	Status       OrderStatus
	Filled       decimal.Decimal
	Remaining    decimal.Decimal
	AvgFillPrice decimal.Decimal
	WhyHeld      string
}

// OpenOrderRecord is one entry of an open-orders download. The same logical
// order can appear more than once in a single stream.
type OpenOrderRecord struct {
	OrderID  int64
	Contract Contract
	Order    Order
	Status   OrderStatus
}
