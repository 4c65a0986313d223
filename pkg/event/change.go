package event

import "time"

const (
	// OrderChangesTopic is the subject prefix for per-order change
	// notifications. Subscribers must scope to a single order via
	// OrderChangesSubject; subscribing to the bare prefix pulls traffic
	// for every open order in the system.
	OrderChangesTopic = "orders.changes"

	EventOrderChanged = "order.changed"
)

// Change kinds, mirroring the operation the store applied.
const (
	ChangeInsert = "insert"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

// Resource types a change event can refer to.
const (
	ResourceOrder = "order"
	ResourceItem  = "item"
)

// OrderChangedEvent is published by the order store whenever an order or
// one of its items is mutated, by any terminal. It carries no state: the
// receiving terminal refetches canonical data instead of trusting the
// event payload.
type OrderChangedEvent struct {
	EventType  string    `json:"event_type"`
	Kind       string    `json:"kind"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id"`
	OrderID    string    `json:"order_id"`
	Origin     string    `json:"origin,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OrderChangesSubject returns the NATS subject scoped to one order.
func OrderChangesSubject(orderID string) string {
	return OrderChangesTopic + "." + orderID
}
