package engine

import (
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order lifecycle statuses as the remote store reports them.
const (
	OrderStatusCreated        = "created"
	OrderStatusSentToKitchen  = "sent_to_kitchen"
	OrderStatusInPrep         = "in_prep"
	OrderStatusReady          = "ready"
	OrderStatusServed         = "served"
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPaid           = "paid"
	OrderStatusCancelled      = "cancelled"
)

// Item statuses.
const (
	ItemStatusNew    = "new"
	ItemStatusSent   = "sent"
	ItemStatusServed = "served"
)

// IsTerminalOrderStatus reports whether an order in the given status is
// finished for its table. A table may hold at most one order in a
// non-terminal status.
func IsTerminalOrderStatus(status string) bool {
	return status == OrderStatusPaid || status == OrderStatusCancelled
}

// Order mirrors the aggregate owned by the remote store. The engine never
// persists it locally; instances only ever come from store reads.
type Order struct {
	ID         uuid.UUID       `json:"id"`
	TableID    uuid.UUID       `json:"table_id"`
	Status     string          `json:"status"`
	GuestCount int             `json:"guest_count"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Total      decimal.Decimal `json:"total"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Customization is a named per-item adjustment, ordered as the guest
// requested them.
type Customization struct {
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

// OrderItem is a canonical line item. The local copy is a read-through
// mirror of the store, never authoritative.
type OrderItem struct {
	ID             uuid.UUID       `json:"id"`
	OrderID        uuid.UUID       `json:"order_id"`
	MenuItemID     *uuid.UUID      `json:"menu_item_id,omitempty"`
	DishName       string          `json:"dish_name"`
	Category       string          `json:"category"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Notes          string          `json:"notes,omitempty"`
	Customizations []Customization `json:"customizations,omitempty"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// LineTotal computes quantity x (unit price + customization deltas).
func (oi *OrderItem) LineTotal() decimal.Decimal {
	unit := oi.UnitPrice
	for _, c := range oi.Customizations {
		unit = unit.Add(c.PriceDelta)
	}
	return unit.Mul(decimal.NewFromInt(int64(oi.Quantity)))
}

// Sent reports whether the item has been handed to the kitchen.
func (oi *OrderItem) Sent() bool {
	return oi.Status != ItemStatusNew
}

// StagingItem is a not-yet-committed line item candidate. It lives only
// in this terminal's StagingStore; LocalID has no meaning to the remote
// store and doubles as the correlation id for idempotent add commands.
type StagingItem struct {
	LocalID        uuid.UUID       `json:"local_id"`
	MenuItemID     *uuid.UUID      `json:"menu_item_id,omitempty"`
	DishName       string          `json:"dish_name"`
	Category       string          `json:"category"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Notes          string          `json:"notes,omitempty"`
	Customizations []Customization `json:"customizations,omitempty"`
}

// NewStagingItem builds a staging item with a fresh local id.
func NewStagingItem(dishName string, quantity int, unitPrice decimal.Decimal) StagingItem {
	return StagingItem{
		LocalID:   apt.GenerateNewID(),
		DishName:  dishName,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	}
}

// EnsureLocalID assigns a local id when the caller did not set one.
func (si *StagingItem) EnsureLocalID() {
	if si.LocalID == uuid.Nil {
		si.LocalID = apt.GenerateNewID()
	}
}

// LineTotal computes the prospective line total for display before commit.
func (si *StagingItem) LineTotal() decimal.Decimal {
	unit := si.UnitPrice
	for _, c := range si.Customizations {
		unit = unit.Add(c.PriceDelta)
	}
	return unit.Mul(decimal.NewFromInt(int64(si.Quantity)))
}
