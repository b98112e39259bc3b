package led

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/smazurov/decon/internal/events"
)

// Manager subscribes to pipeline events and shows the aggregate health on
// the status LED: solid while every pipeline is healthy, blinking while any
// pipeline is degraded.
type Manager struct {
	controller  Controller
	eventBus    *events.Bus
	unsubscribe func()
	logger      *slog.Logger

	mu       sync.RWMutex
	degraded map[string]bool // pipeline -> degraded
}

// NewManager creates a new LED manager.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
		degraded:   make(map[string]bool),
	}
}

// Start shows the healthy pattern and begins listening for degradation events.
func (m *Manager) Start() {
	m.unsubscribe = m.eventBus.Subscribe(func(e events.PipelineDegradedEvent) {
		m.handleEvent(e)
	})
	m.updateStatusLED()
	m.logger.Info("LED manager started")
}

// Stop unsubscribes and switches the LED off.
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	if err := m.controller.Set(StatusLED, false, PatternSolid); err != nil {
		m.logger.Debug("Failed to switch status LED off", "error", err)
	}
	m.logger.Info("LED manager stopped")
}

func (m *Manager) handleEvent(e events.PipelineDegradedEvent) {
	m.mu.Lock()
	if e.Degraded {
		m.degraded[e.Pipeline] = true
	} else {
		delete(m.degraded, e.Pipeline)
	}
	m.mu.Unlock()

	m.logger.Debug("Pipeline health changed",
		"pipeline", e.Pipeline,
		"degraded", e.Degraded,
		"code", e.Code)

	m.updateStatusLED()
}

func (m *Manager) updateStatusLED() {
	m.mu.RLock()
	healthy := len(m.degraded) == 0
	m.mu.RUnlock()

	pattern := PatternSolid
	if !healthy {
		pattern = PatternBlink
	}
	if err := m.controller.Set(StatusLED, true, pattern); err != nil {
		m.logger.Warn("Failed to set status LED", "pattern", pattern, "error", err)
	}
}

// Degraded returns the pipelines currently reported as degraded.
func (m *Manager) Degraded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.degraded))
	for id := range m.degraded {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// GetController returns the underlying LED controller for direct API access
func (m *Manager) GetController() Controller {
	return m.controller
}
