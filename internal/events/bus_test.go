package events

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{}, 1)

	bus.Subscribe(EventBalanceUpdate, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		done <- struct{}{}
	})

	bus.PublishBalanceUpdate("u-1", "admin_funding")
	bus.PublishContractCompleted("c-1", "u-1") // different type, not delivered

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if got[0].Type != EventBalanceUpdate {
		t.Errorf("type = %s, want %s", got[0].Type, EventBalanceUpdate)
	}
	if got[0].Data["owner_id"] != "u-1" {
		t.Errorf("owner_id = %v, want u-1", got[0].Data["owner_id"])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewEventBus()

	received := make(chan EventType, 4)
	bus.SubscribeAll(func(e Event) {
		received <- e.Type
	})

	bus.PublishContractFunded("c-1", "u-1", "investment", "1000.00")
	bus.PublishWithdrawalSettled("w-1", "u-1", "approved")

	seen := make(map[EventType]bool)
	for i := 0; i < 2; i++ {
		select {
		case typ := <-received:
			seen[typ] = true
		case <-time.After(time.Second):
			t.Fatalf("only received %d of 2 events", i)
		}
	}

	if !seen[EventContractFunded] || !seen[EventWithdrawalSettled] {
		t.Errorf("seen = %v, want both event types", seen)
	}
}
