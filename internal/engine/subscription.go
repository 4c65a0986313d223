package engine

import (
	"context"
	"encoding/json"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/forkline/forkline/pkg/event"
	"github.com/google/uuid"
)

// ChangeSubscription opens per-order change notification streams. It is
// transport-agnostic: anything satisfying events.Subscriber works, the
// production wiring uses the NATS adapter. Subscriptions are always
// scoped to one order's subject; an unscoped subscription would receive
// traffic for every open order in the restaurant.
type ChangeSubscription struct {
	subscriber events.Subscriber
	logger     apt.Logger
}

func NewChangeSubscription(sub events.Subscriber, logger apt.Logger) *ChangeSubscription {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &ChangeSubscription{
		subscriber: sub,
		logger:     logger,
	}
}

// Open subscribes to the given order's change subject and forwards each
// decoded event to sink. The returned cancel func closes the
// subscription; calling it after the subscription is already closed is a
// no-op. Malformed payloads are logged and dropped, never fatal.
func (s *ChangeSubscription) Open(ctx context.Context, orderID uuid.UUID, sink func(event.OrderChangedEvent)) (context.CancelFunc, error) {
	subCtx, cancel := context.WithCancel(ctx)
	topic := event.OrderChangesSubject(orderID.String())

	err := s.subscriber.Subscribe(subCtx, topic, func(_ context.Context, msg []byte) error {
		var evt event.OrderChangedEvent
		if err := json.Unmarshal(msg, &evt); err != nil {
			s.logger.Info("invalid change event payload", "topic", topic, "error", err)
			return nil
		}
		sink(evt)
		return nil
	})
	if err != nil {
		cancel()
		return nil, err
	}

	s.logger.Debug("change subscription opened", "topic", topic)
	return cancel, nil
}
