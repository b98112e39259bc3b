// Package collectors feeds the metrics package from the events bus and from
// the platform's devfreq nodes.
package collectors

import (
	"log/slog"
	"strconv"

	"github.com/smazurov/decon/internal/events"
	"github.com/smazurov/decon/internal/metrics"
)

var levelValues = map[string]int{"min": 0, "low": 1, "mid": 2, "high": 3}

// EventCollector subscribes to pipeline events and keeps the Prometheus
// series in step with them.
type EventCollector struct {
	eventBus     *events.Bus
	unsubscribes []func()
	logger       *slog.Logger
}

// NewEventCollector creates a collector for eventBus.
func NewEventCollector(eventBus *events.Bus, logger *slog.Logger) *EventCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventCollector{
		eventBus: eventBus,
		logger:   logger,
	}
}

// Start subscribes to the bus.
func (c *EventCollector) Start() {
	c.unsubscribes = append(c.unsubscribes,
		c.eventBus.Subscribe(func(e events.FrameReleasedEvent) {
			c.handleFrameReleased(e)
		}),
		c.eventBus.Subscribe(func(e events.PipelineDegradedEvent) {
			metrics.SetDegraded(e.Pipeline, e.Degraded)
		}),
		c.eventBus.Subscribe(func(e events.BandwidthRequestEvent) {
			c.handleBandwidthRequest(e)
		}),
		c.eventBus.Subscribe(func(e events.UnitOwnershipEvent) {
			metrics.SetUnitOwner(strconv.Itoa(e.Unit), e.From, e.To)
		}),
	)
	c.logger.Info("Event metrics collector started")
}

// Stop unsubscribes from the bus.
func (c *EventCollector) Stop() {
	for _, unsub := range c.unsubscribes {
		unsub()
	}
	c.unsubscribes = nil
	c.logger.Info("Event metrics collector stopped")
}

func (c *EventCollector) handleFrameReleased(e events.FrameReleasedEvent) {
	if e.Aborted {
		metrics.ObserveFrameAborted(e.Pipeline, e.Code, e.ReleasedBuffers)
		return
	}
	metrics.ObserveFrameReleased(e.Pipeline, e.LatencySeconds, e.ReleasedBuffers)
}

func (c *EventCollector) handleBandwidthRequest(e events.BandwidthRequestEvent) {
	if !e.Admitted {
		c.logger.Debug("Bandwidth request refused", "pipeline", e.Pipeline, "level", e.Level)
	}
	metrics.SetBandwidthRequest(e.Pipeline, metrics.BandwidthRequest{
		Level:           levelValues[e.Level],
		LevelName:       e.Level,
		EffectiveDepth:  e.EffectiveDepth,
		InterconnectBps: e.InterconnectBps,
		DisplayClockHz:  e.DisplayClockHz,
		Admitted:        e.Admitted,
	})
}
