// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types for avatarcore
const (
	// Speech events
	EventTypeSpeechStarted  EventType = "speech.started"
	EventTypeSpeechStopped  EventType = "speech.stopped"
	EventTypeSpeechFailed   EventType = "speech.failed"
	EventTypeSpeechCacheHit EventType = "speech.cache_hit"

	// Avatar events
	EventTypeAvatarSpawned   EventType = "avatar.spawned"
	EventTypeAvatarDespawned EventType = "avatar.despawned"
	EventTypeEmotionChanged  EventType = "avatar.emotion_changed"

	// Animation events
	EventTypeClipLoaded EventType = "animation.clip_loaded"
	EventTypeClipFailed EventType = "animation.clip_failed"

	// Config events
	EventTypeConfigReloaded EventType = "config.reloaded"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	return handlers
}

// Publish sends an event to all subscribed handlers without waiting.
// A nil bus drops the event.
func (b *EventBus) Publish(event Event) {
	if b == nil {
		return
	}
	for _, handler := range b.snapshot(event.Type) {
		// Call handlers in goroutines to avoid blocking the frame loop
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	if b == nil {
		return
	}
	var wg sync.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}
