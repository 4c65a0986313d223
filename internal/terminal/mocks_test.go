package terminal

import (
	"context"
	"fmt"
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/forkline/forkline/internal/engine"
	"github.com/forkline/forkline/internal/tables"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// stubStore is an in-memory StoreClient for handler tests. Defaults act
// like a healthy store; Func fields override single commands.
type stubStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*engine.Order
	items  map[uuid.UUID][]engine.OrderItem
	adds   int

	AddItemFunc       func(ctx context.Context, orderID uuid.UUID, item engine.StagingItem) (*engine.OrderItem, error)
	SendToKitchenFunc func(ctx context.Context, orderID uuid.UUID) error
}

func newStubStore() *stubStore {
	return &stubStore{
		orders: make(map[uuid.UUID]*engine.Order),
		items:  make(map[uuid.UUID][]engine.OrderItem),
	}
}

func (s *stubStore) seed(order *engine.Order, items []engine.OrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *order
	s.orders[order.ID] = &cp
	s.items[order.ID] = append([]engine.OrderItem(nil), items...)
}

func (s *stubStore) addCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adds
}

func (s *stubStore) ActiveOrderForTable(ctx context.Context, tableID uuid.UUID) (*engine.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.TableID == tableID && !engine.IsTerminalOrderStatus(o.Status) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) CreateOrder(ctx context.Context, tableID uuid.UUID, guestCount int, linkedTables []string) (*engine.Order, error) {
	order := &engine.Order{ID: apt.GenerateNewID(), TableID: tableID, Status: engine.OrderStatusCreated, GuestCount: guestCount}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	cp := *order
	return &cp, nil
}

func (s *stubStore) GetOrder(ctx context.Context, orderID uuid.UUID) (*engine.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, &engine.RemoteError{Kind: engine.RemotePermanent, Status: 404, Message: "order not found"}
	}
	cp := *order
	return &cp, nil
}

func (s *stubStore) ListItems(ctx context.Context, orderID uuid.UUID) ([]engine.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.OrderItem, len(s.items[orderID]))
	copy(out, s.items[orderID])
	return out, nil
}

func (s *stubStore) AddItem(ctx context.Context, orderID uuid.UUID, item engine.StagingItem) (*engine.OrderItem, error) {
	if s.AddItemFunc != nil {
		return s.AddItemFunc(ctx, orderID, item)
	}
	created := engine.OrderItem{
		ID:        apt.GenerateNewID(),
		OrderID:   orderID,
		DishName:  item.DishName,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
		Status:    engine.ItemStatusNew,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adds++
	s.items[orderID] = append(s.items[orderID], created)
	return &created, nil
}

func (s *stubStore) RemoveItem(ctx context.Context, itemID uuid.UUID) error { return nil }

func (s *stubStore) UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return nil
}

func (s *stubStore) UpdateGuestCount(ctx context.Context, orderID uuid.UUID, count int) error {
	return nil
}

func (s *stubStore) SendToKitchen(ctx context.Context, orderID uuid.UUID) error {
	if s.SendToKitchenFunc != nil {
		return s.SendToKitchenFunc(ctx, orderID)
	}
	return nil
}

func (s *stubStore) RequestCheck(ctx context.Context, orderID uuid.UUID) error { return nil }

func (s *stubStore) MarkPaid(ctx context.Context, orderID uuid.UUID, method string, amount decimal.Decimal) error {
	return nil
}

func (s *stubStore) LinkTables(ctx context.Context, orderID uuid.UUID, tableNumbers []string) error {
	return nil
}

// stubDirectory serves a fixed table list.
type stubDirectory struct {
	tables []tables.Table
}

func (d *stubDirectory) ListTables(ctx context.Context) ([]tables.Table, error) {
	out := make([]tables.Table, len(d.tables))
	copy(out, d.tables)
	return out, nil
}

func (d *stubDirectory) GetTable(ctx context.Context, id uuid.UUID) (*tables.Table, error) {
	for i := range d.tables {
		if d.tables[i].ID == id {
			cp := d.tables[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("table %s not found", id)
}

// noopSubscriber satisfies events.Subscriber without delivering anything.
type noopSubscriber struct{}

func (noopSubscriber) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	return nil
}
