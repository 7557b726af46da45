package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventDistributionCompleted EventType = "DISTRIBUTION_COMPLETED"
	EventContractFunded        EventType = "CONTRACT_FUNDED"
	EventContractCompleted     EventType = "CONTRACT_COMPLETED"
	EventBalanceUpdate         EventType = "BALANCE_UPDATE"
	EventWithdrawalSettled     EventType = "WITHDRAWAL_SETTLED"
	EventError                 EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Subscribers run in goroutines so a slow consumer never blocks a
	// ledger unit of work.
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishDistributionCompleted publishes a distribution run summary
func (eb *EventBus) PublishDistributionCompleted(class string, processed, credited, errors int, totalAmount string) {
	eb.Publish(Event{
		Type: EventDistributionCompleted,
		Data: map[string]interface{}{
			"contract_class":      class,
			"processed_contracts": processed,
			"periods_credited":    credited,
			"errors":              errors,
			"total_amount":        totalAmount,
		},
	})
}

// PublishContractFunded publishes a newly funded contract
func (eb *EventBus) PublishContractFunded(contractID, ownerID, class, principal string) {
	eb.Publish(Event{
		Type: EventContractFunded,
		Data: map[string]interface{}{
			"contract_id":    contractID,
			"owner_id":       ownerID,
			"contract_class": class,
			"principal":      principal,
		},
	})
}

// PublishContractCompleted publishes a contract reaching its full term
func (eb *EventBus) PublishContractCompleted(contractID, ownerID string) {
	eb.Publish(Event{
		Type: EventContractCompleted,
		Data: map[string]interface{}{
			"contract_id": contractID,
			"owner_id":    ownerID,
		},
	})
}

// PublishBalanceUpdate publishes that an owner's balance changed
func (eb *EventBus) PublishBalanceUpdate(ownerID, reason string) {
	eb.Publish(Event{
		Type: EventBalanceUpdate,
		Data: map[string]interface{}{
			"owner_id": ownerID,
			"reason":   reason,
		},
	})
}

// PublishWithdrawalSettled publishes a withdrawal settlement transition
func (eb *EventBus) PublishWithdrawalSettled(requestID, ownerID, status string) {
	eb.Publish(Event{
		Type: EventWithdrawalSettled,
		Data: map[string]interface{}{
			"request_id": requestID,
			"owner_id":   ownerID,
			"status":     status,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
