package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/decon/internal/units"
)

// ErrNotFound is returned for an unknown pipeline ID.
var ErrNotFound = errors.New("pipeline not found")

// Manager owns the pipelines of one device. Every pipeline shares the
// manager's compositing unit arbiter.
type Manager struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline
	order     []string
	arbiter   *units.Arbiter
	logger    *slog.Logger
}

// NewManager creates an empty manager. arbiter may be nil when the device
// has no compositing units.
func NewManager(arbiter *units.Arbiter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pipelines: make(map[string]*Pipeline),
		arbiter:   arbiter,
		logger:    logger,
	}
}

// Arbiter returns the shared compositing unit arbiter.
func (m *Manager) Arbiter() *units.Arbiter {
	return m.arbiter
}

// Add creates a pipeline from opts. Units defaults to the shared arbiter.
func (m *Manager) Add(opts Options) (*Pipeline, error) {
	if opts.Units == nil {
		opts.Units = m.arbiter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pipelines[opts.ID]; exists {
		return nil, fmt.Errorf("pipeline %s already exists", opts.ID)
	}

	p, err := New(opts)
	if err != nil {
		return nil, err
	}
	m.pipelines[opts.ID] = p
	m.order = append(m.order, opts.ID)
	return p, nil
}

// Get returns the pipeline named id.
func (m *Manager) Get(id string) (*Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pipelines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// List returns every pipeline in the order it was added.
func (m *Manager) List() []*Pipeline {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Pipeline, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.pipelines[id])
	}
	return out
}

// StartAll starts every pipeline that has not been started yet.
func (m *Manager) StartAll() error {
	for _, p := range m.List() {
		if p.Status().State != StateCreated {
			continue
		}
		if err := p.Start(); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every pipeline, newest first, and returns the first error.
func (m *Manager) StopAll(ctx context.Context) error {
	m.logger.Info("Stopping all pipelines")

	list := m.List()
	var firstErr error
	for i := len(list) - 1; i >= 0; i-- {
		if err := list[i].Stop(ctx); err != nil {
			m.logger.Warn("Pipeline did not stop cleanly", "pipeline", list[i].ID(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	m.logger.Info("All pipelines stopped")
	return firstErr
}
