package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/forkline/forkline/pkg/event"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionConfig tunes the per-session timing knobs. Zero values fall back
// to the package defaults.
type SessionConfig struct {
	Debounce      time.Duration
	WaiterPoll    time.Duration
	WaiterTimeout time.Duration
}

// Session is one terminal's view of one table. It owns the staging store,
// the canonical mirror, the reconciliation loop, and the change
// subscription for the table's active order, and exposes the command
// wrappers the view layer calls. Constructed when the operator opens the
// table view, disposed with Close when they leave; disposal cancels every
// outstanding fetch, waiter, and subscription so nothing leaks into a
// reused terminal session.
type Session struct {
	tableID uuid.UUID
	client  StoreClient
	changes *ChangeSubscription
	cfg     SessionConfig
	logger  apt.Logger

	ctx    context.Context
	cancel context.CancelFunc

	staging *StagingStore
	tabs    *TabLedger

	mu         sync.Mutex
	orderID    uuid.UUID
	cache      *OrderStateCache
	reconciler *Reconciler
	waiter     *ConsistencyWaiter
	closeSub   context.CancelFunc
	closed     bool
}

// CommitResult reports how far a staging commit got. On partial failure
// Committed counts the items that are already canonical.
type CommitResult struct {
	OrderID   uuid.UUID `json:"order_id"`
	Committed int       `json:"committed"`
	Remaining int       `json:"remaining"`
}

func NewSession(ctx context.Context, tableID uuid.UUID, client StoreClient, changes *ChangeSubscription, cfg SessionConfig, logger apt.Logger) *Session {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	return &Session{
		tableID: tableID,
		client:  client,
		changes: changes,
		cfg:     cfg,
		logger:  logger.With("table_id", tableID.String()),
		ctx:     sessionCtx,
		cancel:  cancel,
		staging: NewStagingStore(),
		tabs:    NewTabLedger(),
	}
}

// Open looks up the table's active order, if any, and attaches to it.
// Tables without an active order stay detached until the first commit
// creates one.
func (s *Session) Open(ctx context.Context) error {
	order, err := s.client.ActiveOrderForTable(ctx, s.tableID)
	if err != nil {
		return fmt.Errorf("cannot look up active order: %w", err)
	}
	if order == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachLocked(order.ID)
}

// attachLocked wires a fresh mirror, reconciler, waiter and scoped
// subscription for orderID. The previous order's loop, if any, is torn
// down first; mirrors are never shared across orders.
func (s *Session) attachLocked(orderID uuid.UUID) error {
	if s.closed {
		return fmt.Errorf("session closed")
	}
	if s.orderID == orderID {
		return nil
	}
	s.detachLocked()

	cache := NewOrderStateCache()
	reconciler := NewReconciler(s.ctx, orderID, s.client, cache, s.cfg.Debounce, s.logger)

	closeSub, err := s.changes.Open(s.ctx, orderID, func(evt event.OrderChangedEvent) {
		reconciler.Notify(evt)
	})
	if err != nil {
		reconciler.Close()
		return fmt.Errorf("cannot open change subscription: %w", err)
	}

	s.orderID = orderID
	s.cache = cache
	s.reconciler = reconciler
	s.waiter = NewConsistencyWaiter(cache, reconciler, s.cfg.WaiterPoll, s.cfg.WaiterTimeout, s.logger)
	s.closeSub = closeSub

	// Anything delivered before the subscription existed is gone; start
	// from a full refetch.
	reconciler.Refresh()

	s.logger.Info("attached to order", "order_id", orderID.String())
	return nil
}

func (s *Session) detachLocked() {
	if s.closeSub != nil {
		s.closeSub()
		s.closeSub = nil
	}
	if s.reconciler != nil {
		s.reconciler.Close()
		s.reconciler = nil
	}
	s.cache = nil
	s.waiter = nil
	s.orderID = uuid.Nil
}

// Stage appends an item to the staging store. No network, no failure.
func (s *Session) Stage(item StagingItem) {
	s.staging.Add(item)
}

// Unstage removes a staged item by local id.
func (s *Session) Unstage(localID uuid.UUID) {
	s.staging.Remove(localID)
}

// StagingItems lists the currently staged items.
func (s *Session) StagingItems() []StagingItem {
	return s.staging.List()
}

// Order returns the canonical mirror: the order and its item list, or
// false when no canonical order is visible yet.
func (s *Session) Order() (*Order, []OrderItem, bool) {
	s.mu.Lock()
	cache := s.cache
	s.mu.Unlock()
	if cache == nil {
		return nil, nil, false
	}
	order, ok := cache.Order()
	if !ok {
		return nil, nil, false
	}
	return order, cache.Items(), true
}

// OrderID returns the attached order id, if any.
func (s *Session) OrderID() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderID, s.orderID != uuid.Nil
}

// Tabs exposes the customer tab ledger for bill splitting.
func (s *Session) Tabs() *TabLedger {
	return s.tabs
}

// Commit persists the staged items. It first ensures a canonical order
// exists (creating one and waiting for it to become visible when needed),
// then issues one add command per item, in order. The first failure stops
// the run: already-persisted items are canonical and stay removed from
// staging, the failing item and everything after it remain staged for
// retry. Partial commit is a visible, accepted state, not a rollback.
func (s *Session) Commit(ctx context.Context, guestCount int) (CommitResult, error) {
	result := CommitResult{}

	orderID, err := s.ensureOrder(ctx, guestCount)
	if err != nil {
		result.Remaining = s.staging.Len()
		return result, err
	}
	result.OrderID = orderID

	snapshot := s.staging.List()
	for i, item := range snapshot {
		if _, err := s.client.AddItem(ctx, orderID, item); err != nil {
			result.Committed = i
			result.Remaining = s.staging.Len()
			s.logger.Info("commit stopped on item failure",
				"order_id", orderID.String(), "item", item.DishName, "error", err)
			return result, &CommitError{Index: i, DishName: item.DishName, Err: err}
		}
		s.staging.Remove(item.LocalID)
	}

	result.Committed = len(snapshot)
	result.Remaining = s.staging.Len()
	return result, nil
}

// ensureOrder attaches to the table's canonical order, creating one when
// the table has none. After a create, the consistency waiter bridges the
// window between the acknowledgement and the order showing up in the
// mirror; dependent add commands are not issued before that.
func (s *Session) ensureOrder(ctx context.Context, guestCount int) (uuid.UUID, error) {
	s.mu.Lock()
	if s.orderID != uuid.Nil {
		id := s.orderID
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	order, err := s.client.CreateOrder(ctx, s.tableID, guestCount, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("cannot create order: %w", err)
	}

	s.mu.Lock()
	if err := s.attachLocked(order.ID); err != nil {
		s.mu.Unlock()
		return uuid.Nil, err
	}
	waiter := s.waiter
	s.mu.Unlock()

	if _, err := waiter.Await(ctx, order.ID); err != nil {
		return uuid.Nil, err
	}
	return order.ID, nil
}

func (s *Session) requireOrder() (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("no active order for table %s", s.tableID)
	}
	return s.orderID, nil
}

// SendToKitchen fires the kitchen send for the active order.
func (s *Session) SendToKitchen(ctx context.Context) error {
	orderID, err := s.requireOrder()
	if err != nil {
		return err
	}
	return s.client.SendToKitchen(ctx, orderID)
}

// RequestCheck asks the store to move the order to pending payment.
func (s *Session) RequestCheck(ctx context.Context) error {
	orderID, err := s.requireOrder()
	if err != nil {
		return err
	}
	return s.client.RequestCheck(ctx, orderID)
}

// MarkPaid settles the active order.
func (s *Session) MarkPaid(ctx context.Context, method string, amount decimal.Decimal) error {
	orderID, err := s.requireOrder()
	if err != nil {
		return err
	}
	return s.client.MarkPaid(ctx, orderID, method, amount)
}

// UpdateQuantity changes a canonical item's quantity.
func (s *Session) UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if _, err := s.requireOrder(); err != nil {
		return err
	}
	return s.client.UpdateQuantity(ctx, itemID, quantity)
}

// RemoveItem deletes a canonical item.
func (s *Session) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	if _, err := s.requireOrder(); err != nil {
		return err
	}
	return s.client.RemoveItem(ctx, itemID)
}

// UpdateGuestCount changes the guest count on the active order.
func (s *Session) UpdateGuestCount(ctx context.Context, count int) error {
	orderID, err := s.requireOrder()
	if err != nil {
		return err
	}
	return s.client.UpdateGuestCount(ctx, orderID, count)
}

// LinkTables merges the given tables into the active order's seating
// group. Validation happens at the store, the arbiter of table state.
func (s *Session) LinkTables(ctx context.Context, tableNumbers []string) error {
	orderID, err := s.requireOrder()
	if err != nil {
		return err
	}
	return s.client.LinkTables(ctx, orderID, tableNumbers)
}

// Close tears the session down: change subscription, reconciler, any
// in-flight fetch or waiter poll. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.detachLocked()
	s.cancel()
	s.logger.Debug("session closed")
}
