package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomerTab is a named sub-partition of an order's items used for bill
// splitting.
type CustomerTab struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TabLedger partitions canonical item ids across customer tabs. It never
// mutates the order itself: reassigning an item between tabs is a purely
// local bookkeeping operation on top of the canonical item list.
type TabLedger struct {
	mu         sync.RWMutex
	order      []uuid.UUID
	tabs       map[uuid.UUID]CustomerTab
	assignment map[uuid.UUID]uuid.UUID
}

func NewTabLedger() *TabLedger {
	return &TabLedger{
		tabs:       make(map[uuid.UUID]CustomerTab),
		assignment: make(map[uuid.UUID]uuid.UUID),
	}
}

// CreateTab adds a named tab and returns it.
func (l *TabLedger) CreateTab(name string) CustomerTab {
	tab := CustomerTab{
		ID:        apt.GenerateNewID(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tabs[tab.ID] = tab
	l.order = append(l.order, tab.ID)
	return tab
}

// RemoveTab drops a tab; its items fall back to unassigned.
func (l *TabLedger) RemoveTab(tabID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tabs, tabID)
	for i, id := range l.order {
		if id == tabID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	for itemID, assigned := range l.assignment {
		if assigned == tabID {
			delete(l.assignment, itemID)
		}
	}
}

// Tabs lists tabs in creation order.
func (l *TabLedger) Tabs() []CustomerTab {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]CustomerTab, 0, len(l.order))
	for _, id := range l.order {
		if tab, ok := l.tabs[id]; ok {
			out = append(out, tab)
		}
	}
	return out
}

// Assign moves an item onto a tab, replacing any previous assignment.
func (l *TabLedger) Assign(itemID, tabID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tabs[tabID]; !ok {
		return fmt.Errorf("unknown tab %s", tabID)
	}
	l.assignment[itemID] = tabID
	return nil
}

// Unassign removes an item's tab assignment.
func (l *TabLedger) Unassign(itemID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.assignment, itemID)
}

// TabFor returns the tab an item is assigned to.
func (l *TabLedger) TabFor(itemID uuid.UUID) (uuid.UUID, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tabID, ok := l.assignment[itemID]
	return tabID, ok
}

// ItemsFor filters the canonical item list down to one tab's items.
func (l *TabLedger) ItemsFor(tabID uuid.UUID, items []OrderItem) []OrderItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]OrderItem, 0)
	for _, item := range items {
		if l.assignment[item.ID] == tabID {
			out = append(out, item)
		}
	}
	return out
}

// SubtotalFor sums line totals for one tab.
func (l *TabLedger) SubtotalFor(tabID uuid.UUID, items []OrderItem) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range l.ItemsFor(tabID, items) {
		subtotal = subtotal.Add(item.LineTotal())
	}
	return subtotal
}
