package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a lifecycle event emitted by the orchestrator.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	RunID      string `json:"run_id,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeRunStarted           = "run.started"
	EventTypeRunCompleted         = "run.completed"
	EventTypeRunFailed            = "run.failed"
	EventTypeRunStateChanged      = "run.state_changed"
	EventTypeOperationSucceeded   = "operation.succeeded"
	EventTypeOperationFailed      = "operation.failed"
	EventTypeResourceStateChanged = "resource.state_changed"
	EventTypePolicyViolation      = "policy.violation"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

var (
	// ErrPublisherStopped is returned by Publish after Shutdown.
	ErrPublisherStopped = errors.New("event publisher stopped")

	// ErrBufferFull is returned when an async publisher cannot queue an event.
	ErrBufferFull = errors.New("event buffer full, event dropped")
)

// EventSubscriber handles a delivered event.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers.
// Each subscriber sees events in publish order.
type EventPublisher struct {
	config EventsConfig
	buffer chan Event
	done   chan struct{}

	mu          sync.RWMutex
	subscribers []subscriberEntry
	filters     []EventFilter
	stopped     bool

	deliverMu sync.Mutex
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.EnableAsync && cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}

	ep := &EventPublisher{config: cfg}
	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.done = make(chan struct{})
		go ep.processEvents()
	}

	return ep, nil
}

// Publish delivers an event to all subscribers, or queues it in async mode.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	if ep.stopped {
		ep.mu.RUnlock()
		return ErrPublisherStopped
	}
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}

	if ep.config.EnableAsync {
		defer ep.mu.RUnlock()
		select {
		case ep.buffer <- event:
			return nil
		default:
			return ErrBufferFull
		}
	}
	ep.mu.RUnlock()

	ep.deliverEvent(event)
	return nil
}

// Subscribe adds a new event subscriber. filter may be nil.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents drains the buffer until it is closed.
func (ep *EventPublisher) processEvents() {
	defer close(ep.done)

	for event := range ep.buffer {
		ep.deliverEvent(event)
	}
}

// deliverEvent calls every matching subscriber in registration order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.deliverMu.Lock()
	defer ep.deliverMu.Unlock()

	ep.mu.RLock()
	subs := append([]subscriberEntry(nil), ep.subscribers...)
	ep.mu.RUnlock()

	for _, entry := range subs {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops accepting events and waits for queued ones to be delivered.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.mu.Lock()
	if ep.stopped {
		ep.mu.Unlock()
		return nil
	}
	ep.stopped = true
	if ep.buffer != nil {
		close(ep.buffer)
	}
	ep.mu.Unlock()

	if ep.done == nil {
		return nil
	}
	select {
	case <-ep.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown: %w", ctx.Err())
	}
}

// NewLogSubscriber returns a subscriber that writes each event to logger.
func NewLogSubscriber(logger *Logger) EventSubscriber {
	return func(event Event) {
		zl := logger.Zerolog()
		e := zl.Info()
		switch event.Level {
		case EventLevelWarning:
			e = zl.Warn()
		case EventLevelError:
			e = zl.Error()
		}
		e = e.Str("event_type", event.Type).Str("run_id", event.RunID)
		if event.ResourceID != "" {
			e = e.Str("resource_id", event.ResourceID)
		}
		if len(event.Data) > 0 {
			e = e.Fields(event.Data)
		}
		e.Msg(event.Message)
	}
}

// FilterByLevel allows events of minLevel or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}
	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType allows only the given event types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID allows only events for one run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
