package feedback

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventType represents the type of event
type EventType string

const (
	// Collection events
	EventRecordsChanged    EventType = "records.changed"
	EventVocabularyChanged EventType = "vocabulary.changed"

	// Workflow events
	EventCommitCompleted EventType = "commit.completed"
	EventCommitFailed    EventType = "commit.failed"
	EventSpansWritten    EventType = "spans.written"

	// Session events
	EventSessionOpened EventType = "session.opened"
	EventSessionClosed EventType = "session.closed"
)

// Event represents a system event
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Source    string
	Data      interface{}
}

// ChangeKind tells consumers whether rows were added or removed.
type ChangeKind string

const (
	ChangeInserted ChangeKind = "inserted"
	ChangeRemoved  ChangeKind = "removed"
	ChangeCleared  ChangeKind = "cleared"
)

// ChangeData describes a records.changed or vocabulary.changed event. When
// Full is true every row may have changed and From/To are 0 and the new size.
type ChangeData struct {
	Kind ChangeKind `json:"kind"`
	From int        `json:"from"`
	To   int        `json:"to"`
	Full bool       `json:"full"`
}

// CommitData contains data for commit events
type CommitData struct {
	Text      string  `json:"text"`
	TimeMs    float64 `json:"timeMs"`
	Index     int     `json:"index"`
	Intrusion bool    `json:"intrusion"`
	Grew      bool    `json:"grew"`
	Err       error   `json:"-"`
}

// SpansData contains data for spans.written events
type SpansData struct {
	Count int    `json:"count"`
	Path  string `json:"path"`
}

// EventHandler is a function that handles events
type EventHandler func(event Event)

type subscription struct {
	id      string
	handler EventHandler
}

// EventBus distributes events to subscribers. Delivery is synchronous: when
// Publish returns every handler has run, in subscription order.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]subscription
	allHandlers []subscription
	metrics     *EventMetrics
}

// EventMetrics tracks event statistics
type EventMetrics struct {
	EventsPublished map[EventType]int64
	EventsDelivered int64
	HandlerPanics   int64
	mu              sync.Mutex
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
		metrics: &EventMetrics{
			EventsPublished: make(map[EventType]int64),
		},
	}
}

// Subscribe registers a handler for specific event types
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := subscription{id: uuid.New().String(), handler: handler}
	eb.handlers[eventType] = append(eb.handlers[eventType], sub)

	return func() {
		eb.unsubscribe(eventType, sub.id)
	}
}

// SubscribeAll registers a handler for all events
func (eb *EventBus) SubscribeAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := subscription{id: uuid.New().String(), handler: handler}
	eb.allHandlers = append(eb.allHandlers, sub)

	return func() {
		eb.unsubscribeAll(sub.id)
	}
}

func (eb *EventBus) unsubscribe(eventType EventType, id string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			eb.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (eb *EventBus) unsubscribeAll(id string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, s := range eb.allHandlers {
		if s.id == id {
			eb.allHandlers = append(eb.allHandlers[:i:i], eb.allHandlers[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to all subscribers. A nil bus drops the event.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.metrics.mu.Lock()
	eb.metrics.EventsPublished[event.Type]++
	eb.metrics.mu.Unlock()

	// Handlers may subscribe or unsubscribe while being called, so deliver
	// from a copy taken under the lock.
	eb.mu.RLock()
	targets := make([]subscription, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	targets = append(targets, eb.handlers[event.Type]...)
	targets = append(targets, eb.allHandlers...)
	eb.mu.RUnlock()

	for _, sub := range targets {
		eb.deliver(sub.handler, event)
	}
}

func (eb *EventBus) deliver(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.metrics.mu.Lock()
			eb.metrics.HandlerPanics++
			eb.metrics.mu.Unlock()

			logrus.WithFields(logrus.Fields{
				"event_type": event.Type,
				"panic":      r,
			}).Error("Event handler panic")
		}
	}()

	h(event)

	eb.metrics.mu.Lock()
	eb.metrics.EventsDelivered++
	eb.metrics.mu.Unlock()
}

// GetMetrics returns event bus metrics
func (eb *EventBus) GetMetrics() EventMetrics {
	eb.metrics.mu.Lock()
	defer eb.metrics.mu.Unlock()

	// Create a copy
	metrics := EventMetrics{
		EventsPublished: make(map[EventType]int64),
		EventsDelivered: eb.metrics.EventsDelivered,
		HandlerPanics:   eb.metrics.HandlerPanics,
	}

	for k, v := range eb.metrics.EventsPublished {
		metrics.EventsPublished[k] = v
	}

	return metrics
}

// Helper functions for common event publishing

// PublishRecordsChanged publishes a records changed event
func (eb *EventBus) PublishRecordsChanged(source string, data ChangeData) {
	eb.Publish(Event{
		Type:   EventRecordsChanged,
		Source: source,
		Data:   data,
	})
}

// PublishVocabularyChanged publishes a vocabulary changed event
func (eb *EventBus) PublishVocabularyChanged(data ChangeData) {
	eb.Publish(Event{
		Type: EventVocabularyChanged,
		Data: data,
	})
}

// PublishCommit publishes a commit completed or failed event
func (eb *EventBus) PublishCommit(sessionID string, data CommitData) {
	eventType := EventCommitCompleted
	if data.Err != nil {
		eventType = EventCommitFailed
	}
	eb.Publish(Event{
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
	})
}
