package pipeline

import (
	"time"

	"github.com/smazurov/decon/internal/bandwidth"
	"github.com/smazurov/decon/internal/buffer"
	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/fence"
	"github.com/smazurov/decon/internal/hw"
	"github.com/smazurov/decon/internal/partial"
	"github.com/smazurov/decon/internal/units"
)

// Frame is an immutable snapshot of one submission. Only the worker touches
// state and triggered after the frame is queued.
type Frame struct {
	Token     fence.Token
	Windows   []display.WindowConfig
	Plan      partial.Plan
	Registers []hw.WindowRegisters
	Estimate  bandwidth.Estimate
	// Buffers holds every buffer imported for the frame, including those of
	// windows the partial plan disabled.
	Buffers     []*buffer.Buffer
	Units       []units.ID
	SubmittedAt time.Time

	state     FrameState
	triggered bool
}

// unitSet returns the units the frame needs.
func (f *Frame) unitSet() map[units.ID]bool {
	if f == nil {
		return nil
	}
	set := make(map[units.ID]bool, len(f.Units))
	for _, id := range f.Units {
		set[id] = true
	}
	return set
}

// deriveRegisters builds the shadow register image for a window table.
func deriveRegisters(windows []display.WindowConfig) []hw.WindowRegisters {
	regs := make([]hw.WindowRegisters, len(windows))
	for i, w := range windows {
		r := hw.WindowRegisters{Index: w.Index, Unit: hw.NoUnit}
		if !w.Active() {
			regs[i] = r
			continue
		}

		r.Enabled = true
		r.Dst = w.Dst
		r.Src = w.Src
		r.PlaneAlpha = w.Resolved.PlaneAlpha
		r.Blend = w.Resolved.Coefficients

		if w.State == display.StateSolidColor {
			r.Solid = true
			r.Color = w.Color
		} else {
			r.FormatCode = w.Resolved.Info.Code
			r.Addresses = make([]uint64, len(w.Buffers))
			for j, b := range w.Buffers {
				r.Addresses[j] = b.DeviceAddress
			}
			if w.Unit != nil {
				r.Unit = int(*w.Unit)
			}
		}
		regs[i] = r
	}
	return regs
}

// disabledRegisters is the register image with every window off.
func disabledRegisters(n int) []hw.WindowRegisters {
	regs := make([]hw.WindowRegisters, n)
	for i := range regs {
		regs[i] = hw.WindowRegisters{Index: i, Unit: hw.NoUnit}
	}
	return regs
}
