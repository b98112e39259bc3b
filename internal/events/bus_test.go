package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan FrameReleasedEvent, 1)

	unsub := bus.Subscribe(func(e FrameReleasedEvent) {
		received <- e
	})
	defer unsub()

	event := FrameReleasedEvent{
		Pipeline:  "internal",
		Token:     7,
		Timestamp: "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.Token != event.Token || got.Pipeline != event.Pipeline {
		t.Errorf("Expected %+v, got %+v", event, got)
	}
}

func TestBus_NilBusDrops(_ *testing.T) {
	var bus *Bus
	bus.Publish(FrameReleasedEvent{Token: 1})
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan UnitOwnershipEvent, 1)

	unsub := bus.Subscribe(func(e UnitOwnershipEvent) {
		received <- e
	})

	bus.Publish(UnitOwnershipEvent{Unit: 0, To: "internal"})
	<-received

	unsub()

	bus.Publish(UnitOwnershipEvent{Unit: 1, To: "external"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	frameReceived := make(chan bool, 1)
	degradedReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ FrameStateChangedEvent) {
		frameReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ PipelineDegradedEvent) {
		degradedReceived <- true
	})
	defer unsub2()

	bus.Publish(FrameStateChangedEvent{Pipeline: "internal", To: "applying"})
	<-frameReceived

	select {
	case <-degradedReceived:
		t.Fatal("Degraded subscriber should NOT have received FrameStateChangedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(PipelineDegradedEvent{Pipeline: "internal", Degraded: true})
	<-degradedReceived

	select {
	case <-frameReceived:
		t.Fatal("Frame subscriber should NOT have received PipelineDegradedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ BandwidthRequestEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(BandwidthRequestEvent{
					Pipeline:  "internal",
					Level:     "mid",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"FrameStateChanged", FrameStateChangedEvent{Pipeline: "internal"}},
		{"FrameReleased", FrameReleasedEvent{Pipeline: "internal"}},
		{"PipelineDegraded", PipelineDegradedEvent{Pipeline: "internal"}},
		{"UnitOwnership", UnitOwnershipEvent{Unit: 1}},
		{"BandwidthRequest", BandwidthRequestEvent{Pipeline: "internal"}},
		{"LogEntry", LogEntryEvent{Message: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case FrameStateChangedEvent:
				unsub = bus.Subscribe(func(e FrameStateChangedEvent) { received <- e })
			case FrameReleasedEvent:
				unsub = bus.Subscribe(func(e FrameReleasedEvent) { received <- e })
			case PipelineDegradedEvent:
				unsub = bus.Subscribe(func(e PipelineDegradedEvent) { received <- e })
			case UnitOwnershipEvent:
				unsub = bus.Subscribe(func(e UnitOwnershipEvent) { received <- e })
			case BandwidthRequestEvent:
				unsub = bus.Subscribe(func(e BandwidthRequestEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestEventJSONSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event any
		key   string
	}{
		{"FrameReleasedEvent", FrameReleasedEvent{Pipeline: "internal", Token: 3, Code: "VSYNC_TIMEOUT"}, "code"},
		{"UnitOwnershipEvent", UnitOwnershipEvent{Unit: 1, From: "internal", To: "external"}, "to"},
		{"BandwidthRequestEvent", BandwidthRequestEvent{Pipeline: "external", Level: "high"}, "level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var result map[string]any
			if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
				t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
			}

			if _, ok := result[tt.key]; !ok {
				t.Errorf("Expected key %q in %s", tt.key, data)
			}
		})
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[FrameReleasedEvent](bus, ch)
	defer unsub()

	bus.Publish(FrameReleasedEvent{Pipeline: "external", Token: 9})

	received := <-ch
	ev, ok := received.(FrameReleasedEvent)
	if !ok {
		t.Fatalf("Expected FrameReleasedEvent, got %T", received)
	}
	if ev.Token != 9 {
		t.Errorf("Expected token 9, got %d", ev.Token)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[FrameStateChangedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(FrameStateChangedEvent{To: "released"})
		done <- true
	}()

	<-done // Should complete without blocking
}
