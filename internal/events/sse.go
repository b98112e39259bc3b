package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T into ch for select-based
// consumers such as SSE handlers. A slow reader loses events instead of
// stalling the publisher, which may be a pipeline worker.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
