package engine

import (
	"sync"

	"github.com/google/uuid"
)

// OrderStateCache is the per-session read-through mirror of one order.
// Each session owns its own instance, constructed when the table view
// opens and discarded when it closes, so state never bleeds across
// tables. Writes carry the sequence number of the fetch that produced
// them; a write with a stale sequence is dropped so a slow fetch can
// never roll the mirror back behind a newer one.
type OrderStateCache struct {
	mu         sync.RWMutex
	order      *Order
	items      []OrderItem
	appliedSeq uint64
}

func NewOrderStateCache() *OrderStateCache {
	return &OrderStateCache{}
}

// Apply installs a fetch result. It returns false when a newer fetch has
// already been applied.
func (c *OrderStateCache) Apply(seq uint64, order *Order, items []OrderItem) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.appliedSeq {
		return false
	}
	c.appliedSeq = seq
	c.order = order
	c.items = items
	return true
}

// Order returns the mirrored order, or false when no fetch has landed yet.
func (c *OrderStateCache) Order() (*Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.order == nil {
		return nil, false
	}
	cp := *c.order
	return &cp, true
}

// Items returns a copy of the mirrored item list.
func (c *OrderStateCache) Items() []OrderItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]OrderItem, len(c.items))
	copy(out, c.items)
	return out
}

// Contains reports whether the mirror currently shows the given order.
func (c *OrderStateCache) Contains(orderID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order != nil && c.order.ID == orderID
}
