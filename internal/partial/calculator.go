// Package partial decides whether a frame can be scanned out as a partial
// update and rewrites the window table into region-local coordinates when it
// can.
package partial

import (
	"log/slog"
	"sync"

	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/format"
	"github.com/smazurov/decon/internal/geom"
)

// State is the update mode of a pipeline.
type State int

// Update states.
const (
	StateFullFrame State = iota
	StatePendingRegion
	StateActiveRegion
)

func (s State) String() string {
	switch s {
	case StatePendingRegion:
		return "pending_region"
	case StateActiveRegion:
		return "active_region"
	default:
		return "full_frame"
	}
}

// Smallest region a compositing unit can process.
var (
	MinTileSinglePlane = geom.R(0, 0, 32, 16)
	MinTileMultiPlane  = geom.R(0, 0, 64, 32)
)

// Plan is the scan-out decision for one frame.
type Plan struct {
	// Full is true when the whole panel is scanned out.
	Full bool `json:"full"`
	// Rect is the scan region in panel coordinates.
	Rect geom.Rect `json:"rect"`
	// ScanChanged is true when Rect differs from the last committed region.
	ScanChanged bool `json:"scan_changed"`
	// Reason explains a fallback to a full frame.
	Reason string `json:"reason,omitempty"`
	// Windows is the table to program. It never aliases the input.
	Windows []display.WindowConfig `json:"-"`
}

// Calculator tracks the update state of one panel.
type Calculator struct {
	mu      sync.Mutex
	panel   display.Panel
	enabled bool
	state   State
	active  geom.Rect
	pending geom.Rect
	logger  *slog.Logger
}

// NewCalculator creates a calculator. When enabled is false every plan is a
// full frame.
func NewCalculator(panel display.Panel, enabled bool, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		panel:   panel,
		enabled: enabled,
		active:  panel.Bounds(),
		logger:  logger,
	}
}

// State returns the current state and committed scan region.
func (c *Calculator) State() (State, geom.Rect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.active
}

// Plan builds the scan-out plan for windows given the requested update region.
func (c *Calculator) Plan(windows []display.WindowConfig, region *geom.Rect) Plan {
	c.mu.Lock()
	defer c.mu.Unlock()

	bounds := c.panel.Bounds()
	if !c.enabled || region == nil {
		return c.fullPlan(windows, "")
	}

	rect := c.align(*region)
	if rect.Empty() || rect == bounds {
		return c.fullPlan(windows, "")
	}

	for _, w := range windows {
		if !w.Active() {
			continue
		}
		in := w.Dst.Intersect(rect)
		if in.Empty() {
			continue
		}
		if w.Scaled() {
			return c.fullPlan(windows, "scaled window in update region")
		}
		if w.Offloaded() && belowTile(w, in) {
			return c.fullPlan(windows, "compositing unit region below minimum tile")
		}
	}

	out := make([]display.WindowConfig, len(windows))
	for i, w := range windows {
		out[i] = clip(w, rect)
	}

	if rect != c.active || c.state == StateFullFrame {
		c.state = StatePendingRegion
		c.pending = rect
	}

	return Plan{
		Rect:        rect,
		ScanChanged: rect != c.active,
		Windows:     out,
	}
}

func (c *Calculator) fullPlan(windows []display.WindowConfig, reason string) Plan {
	if reason != "" {
		c.logger.Debug("Partial update falls back to full frame", "reason", reason)
	}
	bounds := c.panel.Bounds()
	out := make([]display.WindowConfig, len(windows))
	copy(out, windows)
	return Plan{
		Full:        true,
		Rect:        bounds,
		ScanChanged: c.active != bounds,
		Reason:      reason,
		Windows:     out,
	}
}

// align expands r to the panel's update granularity and clamps it.
func (c *Calculator) align(r geom.Rect) geom.Rect {
	bounds := c.panel.Bounds()
	r = r.AlignOut(c.panel.UpdateXAlign, c.panel.UpdateYAlign, bounds)
	if r.Empty() {
		return r
	}

	if minW := min(c.panel.UpdateMinWidth, bounds.Width); r.Width < minW {
		r.Width = minW
		if r.Right() > bounds.Right() {
			r.X = bounds.Right() - minW
		}
	}
	if minH := min(c.panel.UpdateMinHeight, bounds.Height); r.Height < minH {
		r.Height = minH
		if r.Bottom() > bounds.Bottom() {
			r.Y = bounds.Bottom() - minH
		}
	}
	return r
}

func belowTile(w display.WindowConfig, in geom.Rect) bool {
	tile := MinTileSinglePlane
	if info, err := format.Lookup(w.Format); err == nil && (info.YUV || info.MultiPlane()) {
		tile = MinTileMultiPlane
	}
	return in.Width < tile.Width || in.Height < tile.Height
}

// clip maps w into the coordinates of region. Windows outside the region are
// disabled for this frame.
func clip(w display.WindowConfig, region geom.Rect) display.WindowConfig {
	if !w.Active() {
		return w
	}
	in := w.Dst.Intersect(region)
	if in.Empty() {
		off := display.Disabled(w.Index)
		off.Buffers = w.Buffers
		return off
	}

	dx := in.X - w.Dst.X
	dy := in.Y - w.Dst.Y
	w.Dst = in.Translate(-region.X, -region.Y)
	w.Src = geom.R(w.Src.X+dx, w.Src.Y+dy, in.Width, in.Height)
	return w
}

// Commit records that plan reached the panel.
func (c *Calculator) Commit(p Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.Full {
		if c.state != StateFullFrame {
			c.logger.Debug("Partial update restored to full frame")
		}
		c.state = StateFullFrame
		c.active = c.panel.Bounds()
		return
	}
	c.active = p.Rect
	// A newer region may already be pending behind this frame.
	if c.state != StatePendingRegion || c.pending == p.Rect {
		c.state = StateActiveRegion
	}
}

// Abort forgets a pending region whose frame never reached the panel.
func (c *Calculator) Abort(p Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePendingRegion || c.pending != p.Rect {
		return
	}
	if c.active == c.panel.Bounds() {
		c.state = StateFullFrame
	} else {
		c.state = StateActiveRegion
	}
}

// Reset returns to full frame updates.
func (c *Calculator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateFullFrame
	c.active = c.panel.Bounds()
	c.pending = geom.Rect{}
}
