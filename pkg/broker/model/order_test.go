package model

import "testing"

func TestOrderStatusIsLive(t *testing.T) {
	live := []OrderStatus{OrderStatusPendingSubmit, OrderStatusPreSubmitted, OrderStatusSubmitted}
	for _, s := range live {
		if !s.IsLive() {
			t.Errorf("%v: expected live", s)
		}
	}
	terminal := []OrderStatus{OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusInactive}
	for _, s := range terminal {
		if s.IsLive() {
			t.Errorf("%v: expected not live", s)
		}
	}
}

func TestOrderSideOpposite(t *testing.T) {
	if OrderSideBuy.Opposite() != OrderSideSell {
		t.Error("buy must close with sell")
	}
	if OrderSideSell.Opposite() != OrderSideBuy {
		t.Error("sell must close with buy")
	}
}
