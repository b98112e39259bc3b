// Package hw defines the boundary between the commit worker and the display
// controller registers.
package hw

import (
	"errors"

	"github.com/smazurov/decon/internal/format"
	"github.com/smazurov/decon/internal/geom"
)

// ErrNoWindow is returned for a window index the controller does not have.
var ErrNoWindow = errors.New("no such window")

// NoUnit marks a window fetched directly by the display DMA.
const NoUnit = -1

// WindowRegisters is the programmed state of one hardware window.
type WindowRegisters struct {
	Index      int                 `json:"index"`
	Enabled    bool                `json:"enabled"`
	Solid      bool                `json:"solid,omitempty"`
	Color      uint32              `json:"color,omitempty"`
	Dst        geom.Rect           `json:"dst"`
	Src        geom.Rect           `json:"src"`
	FormatCode uint32              `json:"format_code,omitempty"`
	Addresses  []uint64            `json:"addresses,omitempty"`
	PlaneAlpha uint8               `json:"plane_alpha"`
	Blend      format.Coefficients `json:"blend"`
	Unit       int                 `json:"unit"`
}

// Hardware is the shadow register bank of a display controller. Writes land
// in the shadow bank and reach the panel on the vsync after ApplyAndTrigger.
type Hardware interface {
	WriteShadow(win int, regs WindowRegisters) error
	DisableShadow(win int) error
	// ApplyAndTrigger arms the shadow bank to be latched on the next vsync.
	ApplyAndTrigger() error
}

// Sink receives controller interrupts. Implementations must not block.
type Sink interface {
	OnVsync()
	OnHardwareAck()
	OnHardwareError(err error)
}
