package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a resolution lifecycle notification.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`

	// Source names the component that published the event.
	Source string `json:"source"`

	// Resource is the pointer or context kind the event concerns.
	Resource string `json:"resource,omitempty"`

	// Principal is the identity the resolution ran for.
	Principal string `json:"principal,omitempty"`

	Message string                 `json:"message"`
	Level   string                 `json:"level"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeModelResolved    = "model.resolved"
	EventTypeModelFailed      = "model.failed"
	EventTypeLoaderRetry      = "loader.retry"
	EventTypeCacheInvalidated = "cache.invalidated"
	EventTypeAccessDenied     = "authz.denied"
	EventTypePolicyReloaded   = "authz.policy_reloaded"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles delivered events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, either synchronously or
// from a background goroutine. A nil publisher drops every event.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	mu          sync.RWMutex
	wg          sync.WaitGroup
	done        chan struct{}
	closeOnce   sync.Once
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if cfg.EnableAsync && cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}

	ep := &EventPublisher{
		config: cfg,
		done:   make(chan struct{}),
	}

	if cfg.Enabled && cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish delivers an event to all matching subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	if ep.buffer == nil {
		ep.deliverEvent(event)
		return nil
	}

	select {
	case <-ep.done:
		return fmt.Errorf("event publisher stopped")
	default:
	}

	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, %s event dropped", event.Type)
	}
}

// PublishResolved publishes a successful resolution.
func (ep *EventPublisher) PublishResolved(kind, resource, principal string, elements int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypeModelResolved,
		Source:    "resolver",
		Resource:  resource,
		Principal: principal,
		Message:   fmt.Sprintf("resolved %s context", kind),
		Data: map[string]interface{}{
			"kind":     kind,
			"elements": elements,
			"duration": duration.String(),
		},
	})
}

// PublishFailed publishes a failed resolution.
func (ep *EventPublisher) PublishFailed(kind, resource, principal, code string, err error) error {
	return ep.Publish(Event{
		Type:      EventTypeModelFailed,
		Source:    "resolver",
		Resource:  resource,
		Principal: principal,
		Message:   err.Error(),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"kind": kind,
			"code": code,
		},
	})
}

// PublishRetry publishes a transient remote failure that will be retried.
func (ep *EventPublisher) PublishRetry(loader, resource string, attempt int, err error) error {
	return ep.Publish(Event{
		Type:     EventTypeLoaderRetry,
		Source:   loader,
		Resource: resource,
		Message:  err.Error(),
		Level:    EventLevelWarning,
		Data: map[string]interface{}{
			"attempt": attempt,
		},
	})
}

// PublishAccessDenied publishes an authorization denial.
func (ep *EventPublisher) PublishAccessDenied(resource, principal, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeAccessDenied,
		Source:    "authz",
		Resource:  resource,
		Principal: principal,
		Message:   reason,
		Level:     EventLevelWarning,
	})
}

// Subscribe registers a subscriber with an optional filter.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.done:
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown drains buffered events and stops the background goroutine.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil {
		return nil
	}
	ep.closeOnce.Do(func() { close(ep.done) })

	finished := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout: %w", ctx.Err())
	}
}

// FilterByLevel allows events at minLevel or above.
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

// FilterByType allows only events of the given types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}
