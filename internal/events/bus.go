package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// A nil bus drops the event so components can run without one.
// Usage: bus.Publish(FrameReleasedEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	// Use type switch to call the generic Publish with the correct type
	switch e := ev.(type) {
	case FrameStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case FrameReleasedEvent:
		event.Publish(b.dispatcher, e)
	case PipelineDegradedEvent:
		event.Publish(b.dispatcher, e)
	case UnitOwnershipEvent:
		event.Publish(b.dispatcher, e)
	case BandwidthRequestEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	case PipelineMetricsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives (type inference)
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e FrameReleasedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(FrameStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameReleasedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PipelineDegradedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UnitOwnershipEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BandwidthRequestEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PipelineMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
