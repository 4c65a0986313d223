package engine

import (
	"context"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/forkline/forkline/pkg/event"
	"github.com/google/uuid"
)

type reconcilerState int

const (
	stateIdle reconcilerState = iota
	statePending
	stateFetching
)

// DefaultDebounce absorbs the burst of per-item events emitted by a
// single multi-item kitchen send without issuing a fetch per item.
const DefaultDebounce = 300 * time.Millisecond

// Reconciler keeps one order's local mirror convergent with the remote
// store. Change notifications are debounced into a single canonical
// refetch; only the most recently started fetch may land, so a stale
// result can never roll the mirror back. One instance exists per open
// order and owns all of its mutable state.
type Reconciler struct {
	orderID  uuid.UUID
	reader   StoreReader
	cache    *OrderStateCache
	debounce time.Duration
	logger   apt.Logger
	ctx      context.Context

	mu          sync.Mutex
	state       reconcilerState
	timer       *time.Timer
	refetch     bool
	seq         uint64
	cancelFetch context.CancelFunc
	closed      bool
}

// NewReconciler builds a reconciler bound to ctx; cancelling ctx aborts
// any in-flight fetch. A zero debounce falls back to DefaultDebounce.
func NewReconciler(ctx context.Context, orderID uuid.UUID, reader StoreReader, cache *OrderStateCache, debounce time.Duration, logger apt.Logger) *Reconciler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Reconciler{
		orderID:  orderID,
		reader:   reader,
		cache:    cache,
		debounce: debounce,
		logger:   logger,
		ctx:      ctx,
	}
}

// Notify feeds one change notification into the state machine. Events
// for other orders are ignored; the subscription is scoped per order, so
// this is a guard, not a filter.
func (r *Reconciler) Notify(evt event.OrderChangedEvent) {
	if evt.OrderID != "" && evt.OrderID != r.orderID.String() {
		r.logger.Debug("ignoring change event for foreign order", "order_id", evt.OrderID)
		return
	}
	r.schedule()
}

// Refresh requests an unconditional refetch, bypassing the debounce.
// Used after a subscription reconnect, when delivered events may have
// been missed, and by the consistency waiter while an acknowledged order
// is not yet visible. The bypass matters for the waiter: its poll
// interval is shorter than the debounce window, so routing a nudge
// through the quiet-period reset would keep deferring the fetch forever.
func (r *Reconciler) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	switch r.state {
	case stateIdle:
		r.state = statePending
		r.timer = time.AfterFunc(0, r.fire)
	case statePending:
		r.timer.Reset(0)
	case stateFetching:
		r.refetch = true
	}
}

func (r *Reconciler) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	switch r.state {
	case stateIdle:
		r.state = statePending
		r.timer = time.AfterFunc(r.debounce, r.fire)
	case statePending:
		// Coalesce: restart the quiet period.
		r.timer.Reset(r.debounce)
	case stateFetching:
		// A fetch is already running; do not drop the event, run another
		// pass as soon as the current fetch completes.
		r.refetch = true
	}
}

func (r *Reconciler) fire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.state != statePending {
		return
	}

	r.state = stateFetching
	r.seq++
	seq := r.seq

	// Cancelling a superseded fetch is a correctness requirement: its
	// result must never be applied over a newer one. The sequence check
	// in finish backstops slow cancellations.
	if r.cancelFetch != nil {
		r.cancelFetch()
	}
	fetchCtx, cancel := context.WithCancel(r.ctx)
	r.cancelFetch = cancel

	go r.fetch(fetchCtx, cancel, seq)
}

func (r *Reconciler) fetch(ctx context.Context, cancel context.CancelFunc, seq uint64) {
	defer cancel()

	order, err := r.reader.GetOrder(ctx, r.orderID)
	var items []OrderItem
	if err == nil {
		items, err = r.reader.ListItems(ctx, r.orderID)
	}

	r.finish(seq, order, items, err)
}

func (r *Reconciler) finish(seq uint64, order *Order, items []OrderItem, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq != r.seq {
		// Superseded while in flight; the newer fetch owns the state machine.
		return
	}
	r.cancelFetch = nil

	if err != nil {
		// Never crash the loop: log and retry on the next change event.
		r.logger.Info("order refetch failed, retrying on next change",
			"order_id", r.orderID.String(), "error", err)
	} else {
		r.cache.Apply(seq, order, items)
	}

	if r.refetch && !r.closed {
		r.refetch = false
		r.state = statePending
		r.timer = time.AfterFunc(r.debounce, r.fire)
		return
	}
	r.state = stateIdle
}

// Close stops the loop and cancels any in-flight fetch. Safe to call
// more than once.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.cancelFetch != nil {
		r.cancelFetch()
		r.cancelFetch = nil
	}
	r.state = stateIdle
}
