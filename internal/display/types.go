// Package display holds the window model shared by every stage of the
// composition pipeline, and the validation applied to producer requests.
package display

import (
	"github.com/smazurov/decon/internal/buffer"
	"github.com/smazurov/decon/internal/format"
	"github.com/smazurov/decon/internal/geom"
	"github.com/smazurov/decon/internal/units"
)

// State is what a window contributes to a frame.
type State string

// Window states.
const (
	StateDisabled   State = "disabled"
	StateSolidColor State = "solid_color"
	StateBuffer     State = "buffer"
	// StatePartialUpdateRegion marks a request entry that carries the update
	// rectangle in Dst instead of describing a layer.
	StatePartialUpdateRegion State = "partial_update_region"
)

// WindowConfig describes one hardware window for one frame.
type WindowConfig struct {
	Index      int             `json:"index" toml:"index" yaml:"index"`
	State      State           `json:"state" toml:"state" yaml:"state"`
	Dst        geom.Rect       `json:"dst" toml:"dst" yaml:"dst"`
	Src        geom.Rect       `json:"src" toml:"src" yaml:"src"`
	Format     format.Pixel    `json:"format,omitempty" toml:"format" yaml:"format"`
	Blend      format.Blend    `json:"blend,omitempty" toml:"blend" yaml:"blend"`
	PlaneAlpha int             `json:"plane_alpha" toml:"plane_alpha" yaml:"plane_alpha"`
	Color      uint32          `json:"color,omitempty" toml:"color" yaml:"color"`
	Planes     []buffer.Handle `json:"planes,omitempty" toml:"planes" yaml:"planes"`
	Unit       *units.ID       `json:"unit,omitempty" toml:"unit" yaml:"unit"`
	Protected  bool            `json:"protected,omitempty" toml:"protected" yaml:"protected"`

	// Filled in by the pipeline after validation.
	Resolved format.Resolved  `json:"-" toml:"-" yaml:"-"`
	Buffers  []*buffer.Buffer `json:"-" toml:"-" yaml:"-"`
}

// Active reports whether the window is scanned out.
func (w WindowConfig) Active() bool {
	return w.State == StateSolidColor || w.State == StateBuffer
}

// Offloaded reports whether the window is routed through a compositing unit.
func (w WindowConfig) Offloaded() bool {
	return w.Unit != nil
}

// Scaled reports whether source and destination sizes differ.
func (w WindowConfig) Scaled() bool {
	return w.State == StateBuffer && !w.Src.SameSize(w.Dst)
}

// Disabled returns a disabled window at index i.
func Disabled(i int) WindowConfig {
	return WindowConfig{Index: i, State: StateDisabled}
}

// Request is one producer submission.
type Request struct {
	Windows []WindowConfig `json:"windows" toml:"windows" yaml:"windows"`
}

// Panel describes the physical display attached to a pipeline.
type Panel struct {
	Width        int    `json:"width" toml:"width" yaml:"width"`
	Height       int    `json:"height" toml:"height" yaml:"height"`
	RefreshHz    int    `json:"refresh_hz" toml:"refresh_hz" yaml:"refresh_hz"`
	PixelClockHz uint64 `json:"pixel_clock_hz" toml:"pixel_clock_hz" yaml:"pixel_clock_hz"`
	// Partial update alignment constraints of the panel.
	UpdateXAlign    int `json:"update_x_align" toml:"update_x_align" yaml:"update_x_align"`
	UpdateYAlign    int `json:"update_y_align" toml:"update_y_align" yaml:"update_y_align"`
	UpdateMinWidth  int `json:"update_min_width" toml:"update_min_width" yaml:"update_min_width"`
	UpdateMinHeight int `json:"update_min_height" toml:"update_min_height" yaml:"update_min_height"`
}

// Bounds returns the full panel rectangle.
func (p Panel) Bounds() geom.Rect {
	return geom.R(0, 0, p.Width, p.Height)
}

// EffectivePixelClock returns PixelClockHz, or an estimate from resolution and
// refresh rate when it is not configured.
func (p Panel) EffectivePixelClock() uint64 {
	if p.PixelClockHz > 0 {
		return p.PixelClockHz
	}
	refresh := p.RefreshHz
	if refresh <= 0 {
		refresh = 60
	}
	return uint64(p.Width) * uint64(p.Height) * uint64(refresh)
}

// Capabilities is what a pipeline reports to producers.
type Capabilities struct {
	Panel            Panel          `json:"panel"`
	MaxWindows       int            `json:"max_windows"`
	Formats          []format.Pixel `json:"formats"`
	Units            []units.ID     `json:"units"`
	PartialUpdate    bool           `json:"partial_update"`
	ProtectedContent bool           `json:"protected_content"`
}
