// Package transport programs the panel-side scan region used by partial
// updates. The display controller only fetches the region; the panel has to
// be told which columns and rows the incoming pixels belong to.
package transport

import (
	"context"
	"sync"

	"github.com/smazurov/decon/internal/geom"
)

// ScanRegionSetter updates the panel's column and page address window.
type ScanRegionSetter interface {
	SetScanRegion(ctx context.Context, r geom.Rect) error
	Name() string
	Close() error
}

// Noop remembers the last region without talking to a panel.
type Noop struct {
	mu     sync.Mutex
	region geom.Rect
	calls  int
}

// NewNoop creates a transport for panels without a command interface.
func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) SetScanRegion(_ context.Context, r geom.Rect) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.region = r
	n.calls++
	return nil
}

// Region returns the last programmed region and how many times it was set.
func (n *Noop) Region() (geom.Rect, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.region, n.calls
}

func (n *Noop) Name() string { return "noop" }

func (n *Noop) Close() error { return nil }
