package tables

import (
	"github.com/forkline/forkline/internal/engine"
)

// Derived display statuses for the floor board.
const (
	DerivedAvailable     = "available"
	DerivedSeated        = "seated"
	DerivedAwaitingOrder = "awaiting_order"
	DerivedFoodSent      = "food_sent"
)

// DeriveStatus computes a table's display status from the current order
// and item state. Pure function: no hidden state, no I/O, safe to call on
// every render tick.
//
//	no non-terminal order            -> available
//	order with zero items            -> seated
//	any item not yet sent to kitchen -> awaiting_order
//	all items sent                   -> food_sent
func DeriveStatus(table *Table, order *engine.Order, items []engine.OrderItem) string {
	if order == nil || engine.IsTerminalOrderStatus(order.Status) {
		return DerivedAvailable
	}
	if len(items) == 0 {
		return DerivedSeated
	}
	for i := range items {
		if !items[i].Sent() {
			return DerivedAwaitingOrder
		}
	}
	return DerivedFoodSent
}
