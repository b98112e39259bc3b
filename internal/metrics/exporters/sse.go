package exporters

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/decon/internal/events"
	"github.com/smazurov/decon/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes pipeline metric snapshots for SSE clients.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	all := metrics.GetAllPipelineMetrics()
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		m := all[id]
		s.eventBus.Publish(events.PipelineMetricsEvent{
			EventType:       "pipeline_metrics",
			Pipeline:        id,
			FramesReleased:  strconv.FormatUint(m.FramesReleased, 10),
			FramesAborted:   strconv.FormatUint(m.FramesAborted, 10),
			LastLatencyMs:   strconv.FormatFloat(m.LastLatency*1000, 'f', 2, 64),
			QoSLevel:        m.QoSLevel,
			InterconnectBps: strconv.FormatUint(m.InterconnectBps, 10),
			Degraded:        m.Degraded,
		})
	}
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"pipeline-metrics": events.PipelineMetricsEvent{},
	}
}
