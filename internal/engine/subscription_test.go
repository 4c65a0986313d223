package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/appetiteclub/apt/events"
	"github.com/forkline/forkline/pkg/event"
	"github.com/google/uuid"
)

func TestChangeSubscriptionScopedToOrder(t *testing.T) {
	sub := NewMockSubscriber()
	cs := NewChangeSubscription(sub, nil)
	orderID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440020")

	cancel, err := cs.Open(context.Background(), orderID, func(event.OrderChangedEvent) {})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cancel()

	topics := sub.Topics()
	if len(topics) != 1 {
		t.Fatalf("Open() created %d subscriptions, want 1", len(topics))
	}
	want := event.OrderChangesSubject(orderID.String())
	if topics[0] != want {
		t.Errorf("subscribed to %q, want %q", topics[0], want)
	}
}

func TestChangeSubscriptionDeliversToSink(t *testing.T) {
	sub := NewMockSubscriber()
	cs := NewChangeSubscription(sub, nil)
	orderID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440021")

	got := make(chan event.OrderChangedEvent, 1)
	cancel, err := cs.Open(context.Background(), orderID, func(evt event.OrderChangedEvent) {
		got <- evt
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cancel()

	evt := event.OrderChangedEvent{
		EventType:  event.EventOrderChanged,
		Kind:       event.ChangeInsert,
		Resource:   event.ResourceItem,
		ResourceID: uuid.New().String(),
		OrderID:    orderID.String(),
		OccurredAt: time.Now(),
	}
	payload, _ := json.Marshal(evt)
	sub.Deliver(event.OrderChangesSubject(orderID.String()), payload)

	select {
	case received := <-got:
		if received.OrderID != orderID.String() || received.Kind != event.ChangeInsert {
			t.Errorf("sink received %+v, want the delivered event", received)
		}
	case <-time.After(time.Second):
		t.Fatal("sink never received the event")
	}
}

func TestChangeSubscriptionDropsMalformedPayload(t *testing.T) {
	sub := NewMockSubscriber()
	cs := NewChangeSubscription(sub, nil)
	orderID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440022")

	delivered := false
	cancel, err := cs.Open(context.Background(), orderID, func(event.OrderChangedEvent) {
		delivered = true
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cancel()

	sub.Deliver(event.OrderChangesSubject(orderID.String()), []byte("not json"))

	if delivered {
		t.Error("malformed payload must be dropped, not forwarded")
	}
}

func TestChangeSubscriptionCancelStopsDelivery(t *testing.T) {
	sub := NewMockSubscriber()
	cs := NewChangeSubscription(sub, nil)
	orderID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440023")
	topic := event.OrderChangesSubject(orderID.String())

	cancel, err := cs.Open(context.Background(), orderID, func(event.OrderChangedEvent) {})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if sub.ActiveCount(topic) != 1 {
		t.Fatalf("ActiveCount = %d after Open(), want 1", sub.ActiveCount(topic))
	}

	cancel()
	if sub.ActiveCount(topic) != 0 {
		t.Error("subscription still active after cancel")
	}

	// Closing twice is a no-op.
	cancel()
}

func TestChangeSubscriptionOpenFailure(t *testing.T) {
	sub := NewMockSubscriber()
	wantErr := errors.New("broker unavailable")
	sub.SubscribeFunc = func(ctx context.Context, topic string, handler events.HandlerFunc) error {
		return wantErr
	}

	cs := NewChangeSubscription(sub, nil)
	_, err := cs.Open(context.Background(), uuid.New(), func(event.OrderChangedEvent) {})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Open() error = %v, want %v", err, wantErr)
	}
}
