package engine

import (
	"context"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// Consistency waiter defaults. The 3s bound matches the store's observed
// write-then-read window; deployments with a different bound override it
// through configuration.
const (
	DefaultWaiterPoll    = 100 * time.Millisecond
	DefaultWaiterTimeout = 3 * time.Second
)

// Refresher nudges the reconciliation loop into a canonical refetch.
type Refresher interface {
	Refresh()
}

// ConsistencyWaiter bridges the gap between "create command acknowledged"
// and "order visible in the local mirror". It is a deliberate, narrow
// workaround for replication lag in the immediate post-create window;
// everything after that window relies on the reconciliation loop, not on
// polling.
type ConsistencyWaiter struct {
	cache     *OrderStateCache
	refresher Refresher
	poll      time.Duration
	timeout   time.Duration
	logger    apt.Logger
}

func NewConsistencyWaiter(cache *OrderStateCache, refresher Refresher, poll, timeout time.Duration, logger apt.Logger) *ConsistencyWaiter {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if poll <= 0 {
		poll = DefaultWaiterPoll
	}
	if timeout <= 0 {
		timeout = DefaultWaiterTimeout
	}
	return &ConsistencyWaiter{
		cache:     cache,
		refresher: refresher,
		poll:      poll,
		timeout:   timeout,
		logger:    logger,
	}
}

// Await polls the local mirror until it shows orderID or the timeout
// elapses. Each miss nudges the reconciler so the mirror keeps being
// refreshed while we wait. On timeout the caller gets a
// ConsistencyTimeoutError and must surface "not ready, try again" instead
// of issuing the dependent command.
func (w *ConsistencyWaiter) Await(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	if order, ok := w.cache.Order(); ok && order.ID == orderID {
		return order, nil
	}

	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	started := time.Now()
	for {
		if w.refresher != nil {
			w.refresher.Refresh()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			w.logger.Info("order did not become visible in time",
				"order_id", orderID.String(), "waited", time.Since(started).String())
			return nil, &ConsistencyTimeoutError{OrderID: orderID, Waited: w.timeout}
		case <-ticker.C:
			if order, ok := w.cache.Order(); ok && order.ID == orderID {
				return order, nil
			}
		}
	}
}
