package realtime

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/fluent-backend/internal/platform/logger"
)

func TestHubDeliversOnlyToOwner(t *testing.T) {
	hub := NewHub(logger.Nop())
	alice, bob := uuid.New(), uuid.New()
	ca := hub.Subscribe(alice)
	cb := hub.Subscribe(bob)
	defer hub.Unsubscribe(ca)
	defer hub.Unsubscribe(cb)

	hub.Broadcast(Event{Type: EventSourceCreated, UserID: alice, ID: uuid.New()})

	select {
	case ev := <-ca.Outbound:
		if ev.Type != EventSourceCreated {
			t.Fatalf("unexpected event %v", ev.Type)
		}
	default:
		t.Fatalf("alice should receive her event")
	}
	select {
	case ev := <-cb.Outbound:
		t.Fatalf("bob must not receive alice's event: %+v", ev)
	default:
	}
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(logger.Nop())
	c := hub.Subscribe(uuid.New())
	hub.Unsubscribe(c)
	hub.Unsubscribe(c)
	if _, open := <-c.Outbound; open {
		t.Fatalf("outbound should be closed")
	}
}

func TestLocalBusForwards(t *testing.T) {
	hub := NewHub(logger.Nop())
	bus := NewLocalBus()
	if err := bus.StartForwarder(context.Background(), hub.Broadcast); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	user := uuid.New()
	c := hub.Subscribe(user)
	defer hub.Unsubscribe(c)
	if err := bus.Publish(context.Background(), Event{Type: EventViewRefreshed, UserID: user}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ev := <-c.Outbound; ev.Type != EventViewRefreshed {
		t.Fatalf("got %v", ev.Type)
	}
}
