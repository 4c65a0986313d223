package pkg

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt/events"
	"github.com/nats-io/nats.go"
)

// NATSSubscriber implements events.Subscriber over core NATS. Each
// subscription is bound to the caller's context: cancelling the context
// drains the subscription, so a per-order scoped subscription is torn
// down by cancelling the context it was opened with. Cancelling twice is
// a no-op.
type NATSSubscriber struct {
	conn *nats.Conn
}

func NewNATSSubscriber(url string) (*NATSSubscriber, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSubscriber{conn: conn}, nil
}

func (s *NATSSubscriber) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		if err := handler(ctx, msg.Data); err != nil {
			// Handler errors are the handler's concern; core NATS has no
			// redelivery, so there is nothing useful to do here.
			_ = err
		}
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
