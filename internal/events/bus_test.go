package events_test

import (
	"testing"

	"boardline/internal/events"
)

func TestPublishRunsHandlersInRegistrationOrder(t *testing.T) {
	bus := events.NewBus()
	var order []string
	bus.Subscribe("x", func(any) { order = append(order, "first") })
	bus.Subscribe("x", func(any) { order = append(order, "second") })
	bus.Subscribe("y", func(any) { order = append(order, "other") })

	bus.Publish("x", nil)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v", order)
	}
}

func TestPayloadDelivery(t *testing.T) {
	bus := events.NewBus()
	var got any
	bus.Subscribe(events.TicketCreated, func(payload any) { got = payload })
	bus.Publish(events.TicketCreated, 42)
	if got != 42 {
		t.Fatalf("payload = %v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := events.NewBus()
	calls := 0
	sub := bus.Subscribe("x", func(any) { calls++ })
	keep := 0
	bus.Subscribe("x", func(any) { keep++ })

	bus.Publish("x", nil)
	bus.Unsubscribe(sub)
	bus.Publish("x", nil)

	if calls != 1 {
		t.Fatalf("unsubscribed handler ran %d times", calls)
	}
	if keep != 2 {
		t.Fatalf("remaining handler ran %d times, want 2", keep)
	}

	// A stale token is a no-op.
	bus.Unsubscribe(sub)
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := events.NewBus()
	ran := false
	bus.Subscribe("x", func(any) { panic("boom") })
	bus.Subscribe("x", func(any) { ran = true })

	bus.Publish("x", nil)
	if !ran {
		t.Fatalf("handler after the panicking one did not run")
	}
}

func TestPublishWithNoSubscribers(t *testing.T) {
	bus := events.NewBus()
	bus.Publish("nobody-listens", "payload")
}
