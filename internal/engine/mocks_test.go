package engine

import (
	"context"
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockStoreClient is an in-memory StoreClient for testing. Default
// behavior acts like a well-behaved store; individual calls can be
// overridden through the Func fields.
type MockStoreClient struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*Order
	items  map[uuid.UUID][]OrderItem

	getOrderCalls  int
	listItemsCalls int
	addCalls       []StagingItem

	ActiveOrderForTableFunc func(ctx context.Context, tableID uuid.UUID) (*Order, error)
	CreateOrderFunc         func(ctx context.Context, tableID uuid.UUID, guestCount int, linkedTables []string) (*Order, error)
	GetOrderFunc            func(ctx context.Context, orderID uuid.UUID) (*Order, error)
	ListItemsFunc           func(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error)
	AddItemFunc             func(ctx context.Context, orderID uuid.UUID, item StagingItem) (*OrderItem, error)
	RemoveItemFunc          func(ctx context.Context, itemID uuid.UUID) error
	UpdateQuantityFunc      func(ctx context.Context, itemID uuid.UUID, quantity int) error
	SendToKitchenFunc       func(ctx context.Context, orderID uuid.UUID) error
}

func NewMockStoreClient() *MockStoreClient {
	return &MockStoreClient{
		orders: make(map[uuid.UUID]*Order),
		items:  make(map[uuid.UUID][]OrderItem),
	}
}

func (m *MockStoreClient) ActiveOrderForTable(ctx context.Context, tableID uuid.UUID) (*Order, error) {
	if m.ActiveOrderForTableFunc != nil {
		return m.ActiveOrderForTableFunc(ctx, tableID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.TableID == tableID && !IsTerminalOrderStatus(o.Status) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockStoreClient) CreateOrder(ctx context.Context, tableID uuid.UUID, guestCount int, linkedTables []string) (*Order, error) {
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, tableID, guestCount, linkedTables)
	}
	order := &Order{
		ID:         apt.GenerateNewID(),
		TableID:    tableID,
		Status:     OrderStatusCreated,
		GuestCount: guestCount,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	cp := *order
	return &cp, nil
}

func (m *MockStoreClient) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	if m.GetOrderFunc != nil {
		return m.GetOrderFunc(ctx, orderID)
	}
	if err := ctx.Err(); err != nil {
		return nil, &RemoteError{Kind: RemoteTransient, Message: err.Error()}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrderCalls++
	order, ok := m.orders[orderID]
	if !ok {
		return nil, &RemoteError{Kind: RemotePermanent, Status: 404, Message: "order not found"}
	}
	cp := *order
	return &cp, nil
}

func (m *MockStoreClient) ListItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	if m.ListItemsFunc != nil {
		return m.ListItemsFunc(ctx, orderID)
	}
	if err := ctx.Err(); err != nil {
		return nil, &RemoteError{Kind: RemoteTransient, Message: err.Error()}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listItemsCalls++
	out := make([]OrderItem, len(m.items[orderID]))
	copy(out, m.items[orderID])
	return out, nil
}

func (m *MockStoreClient) AddItem(ctx context.Context, orderID uuid.UUID, item StagingItem) (*OrderItem, error) {
	if m.AddItemFunc != nil {
		return m.AddItemFunc(ctx, orderID, item)
	}
	created := OrderItem{
		ID:             apt.GenerateNewID(),
		OrderID:        orderID,
		MenuItemID:     item.MenuItemID,
		DishName:       item.DishName,
		Category:       item.Category,
		Quantity:       item.Quantity,
		UnitPrice:      item.UnitPrice,
		Notes:          item.Notes,
		Customizations: item.Customizations,
		Status:         ItemStatusNew,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls = append(m.addCalls, item)
	m.items[orderID] = append(m.items[orderID], created)
	return &created, nil
}

func (m *MockStoreClient) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	if m.RemoveItemFunc != nil {
		return m.RemoveItemFunc(ctx, itemID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for orderID, items := range m.items {
		for i, it := range items {
			if it.ID == itemID {
				m.items[orderID] = append(items[:i], items[i+1:]...)
				return nil
			}
		}
	}
	return &RemoteError{Kind: RemotePermanent, Status: 404, Message: "item not found"}
}

func (m *MockStoreClient) UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	if m.UpdateQuantityFunc != nil {
		return m.UpdateQuantityFunc(ctx, itemID, quantity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for orderID, items := range m.items {
		for i := range items {
			if items[i].ID == itemID {
				m.items[orderID][i].Quantity = quantity
				return nil
			}
		}
	}
	return &RemoteError{Kind: RemotePermanent, Status: 404, Message: "item not found"}
}

func (m *MockStoreClient) UpdateGuestCount(ctx context.Context, orderID uuid.UUID, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.orders[orderID]; ok {
		order.GuestCount = count
		return nil
	}
	return &RemoteError{Kind: RemotePermanent, Status: 404, Message: "order not found"}
}

func (m *MockStoreClient) SendToKitchen(ctx context.Context, orderID uuid.UUID) error {
	if m.SendToKitchenFunc != nil {
		return m.SendToKitchenFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.orders[orderID]; ok {
		order.Status = OrderStatusSentToKitchen
		for i := range m.items[orderID] {
			m.items[orderID][i].Status = ItemStatusSent
		}
		return nil
	}
	return &RemoteError{Kind: RemotePermanent, Status: 404, Message: "order not found"}
}

func (m *MockStoreClient) RequestCheck(ctx context.Context, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.orders[orderID]; ok {
		order.Status = OrderStatusPendingPayment
		return nil
	}
	return &RemoteError{Kind: RemotePermanent, Status: 404, Message: "order not found"}
}

func (m *MockStoreClient) MarkPaid(ctx context.Context, orderID uuid.UUID, method string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.orders[orderID]; ok {
		order.Status = OrderStatusPaid
		return nil
	}
	return &RemoteError{Kind: RemotePermanent, Status: 404, Message: "order not found"}
}

func (m *MockStoreClient) LinkTables(ctx context.Context, orderID uuid.UUID, tableNumbers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; ok {
		return nil
	}
	return &RemoteError{Kind: RemotePermanent, Status: 404, Message: "order not found"}
}

// GetOrderCalls reports how many canonical order reads the client served.
func (m *MockStoreClient) GetOrderCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrderCalls
}

// AddCalls returns the add commands in issuance order.
func (m *MockStoreClient) AddCalls() []StagingItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StagingItem, len(m.addCalls))
	copy(out, m.addCalls)
	return out
}

// ItemsFor returns the store-side item list for an order.
func (m *MockStoreClient) ItemsFor(orderID uuid.UUID) []OrderItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrderItem, len(m.items[orderID]))
	copy(out, m.items[orderID])
	return out
}

// SeedOrder installs a canonical order directly.
func (m *MockStoreClient) SeedOrder(order *Order, items []OrderItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	m.orders[order.ID] = &cp
	m.items[order.ID] = append([]OrderItem(nil), items...)
}

type mockSub struct {
	ctx     context.Context
	handler events.HandlerFunc
}

// MockSubscriber is an in-memory events.Subscriber that lets tests push
// messages to subscribed topics. Subscriptions bound to a cancelled
// context stop receiving, mirroring the NATS adapter.
type MockSubscriber struct {
	mu   sync.Mutex
	subs map[string][]mockSub

	SubscribeFunc func(ctx context.Context, topic string, handler events.HandlerFunc) error
}

func NewMockSubscriber() *MockSubscriber {
	return &MockSubscriber{
		subs: make(map[string][]mockSub),
	}
}

func (m *MockSubscriber) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, topic, handler)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[topic] = append(m.subs[topic], mockSub{ctx: ctx, handler: handler})
	return nil
}

// Deliver pushes one message to every live subscription on topic.
func (m *MockSubscriber) Deliver(topic string, msg []byte) {
	m.mu.Lock()
	subs := append([]mockSub(nil), m.subs[topic]...)
	m.mu.Unlock()

	for _, s := range subs {
		if s.ctx.Err() != nil {
			continue
		}
		_ = s.handler(s.ctx, msg)
	}
}

// ActiveCount reports live subscriptions on topic.
func (m *MockSubscriber) ActiveCount(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.subs[topic] {
		if s.ctx.Err() == nil {
			count++
		}
	}
	return count
}

// Topics lists every subject that was ever subscribed to.
func (m *MockSubscriber) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subs))
	for topic := range m.subs {
		out = append(out, topic)
	}
	return out
}
