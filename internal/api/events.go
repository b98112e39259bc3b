package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/decon/internal/events"
	"github.com/smazurov/decon/internal/pipeline"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of frame transitions, releases, pipeline health, unit ownership and bandwidth requests",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"frame-state-changed": events.FrameStateChangedEvent{},
		"frame-released":      events.FrameReleasedEvent{},
		"pipeline-degraded":   events.PipelineDegradedEvent{},
		"unit-ownership":      events.UnitOwnershipEvent{},
		"bandwidth-request":   events.BandwidthRequestEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 64)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.FrameStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameReleasedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PipelineDegradedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.UnitOwnershipEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.BandwidthRequestEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Current health first so clients need not poll /api/pipelines.
		for _, p := range s.pipelines.List() {
			st := p.Status()
			if err := send.Data(events.PipelineDegradedEvent{
				Pipeline:  st.ID,
				Degraded:  st.State == pipeline.StateDegraded,
				Code:      st.DegradedCode,
				Message:   st.DegradedError,
				Timestamp: time.Now().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}

		forward(ctx, eventCh, send)
	})
}

// forward relays events to the client until it disconnects.
func forward(ctx context.Context, eventCh <-chan any, send sse.Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			if err := send.Data(event); err != nil {
				return
			}
		}
	}
}
