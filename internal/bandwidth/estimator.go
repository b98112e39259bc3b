// Package bandwidth estimates the memory interconnect and display clock load
// of a frame from how deeply its windows overlap on screen.
package bandwidth

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/format"
	"github.com/smazurov/decon/internal/geom"
)

// Level is a coarse QoS step requested from the interconnect.
type Level int

// QoS levels, lowest first.
const (
	LevelMin Level = iota
	LevelLow
	LevelMid
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMid:
		return "mid"
	case LevelHigh:
		return "high"
	default:
		return "min"
	}
}

// MarshalText renders the level by name in JSON and logs.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name.
func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "min":
		*l = LevelMin
	case "low":
		*l = LevelLow
	case "mid":
		*l = LevelMid
	case "high":
		*l = LevelHigh
	default:
		return fmt.Errorf("unknown QoS level %q", text)
	}
	return nil
}

// Estimate is the bandwidth demand of one frame.
type Estimate struct {
	// Depth is the raw maximum overlap depth.
	Depth int `json:"depth"`
	// EffectiveDepth is Depth after the narrow/short overlap discount.
	EffectiveDepth  int         `json:"effective_depth"`
	Regions         []geom.Rect `json:"regions,omitempty"`
	BytesPerPixel   int         `json:"bytes_per_pixel"`
	InterconnectBps uint64      `json:"interconnect_bps"`
	DisplayClockHz  uint64      `json:"display_clock_hz"`
	Percent         int         `json:"percent"`
	Level           Level       `json:"level"`
}

// SameRequest reports whether e and o would put the same demand on the
// platform QoS interface.
func (e Estimate) SameRequest(o Estimate) bool {
	return e.Level == o.Level && e.InterconnectBps == o.InterconnectBps && e.DisplayClockHz == o.DisplayClockHz
}

// Estimator computes Estimates. Its tuning can be swapped at runtime.
type Estimator struct {
	mu     sync.RWMutex
	tuning Tuning
	logger *slog.Logger
}

// NewEstimator creates an estimator with the given tuning.
func NewEstimator(t Tuning, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{tuning: t, logger: logger}
}

// Tuning returns the active constants.
func (e *Estimator) Tuning() Tuning {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tuning
}

// SetTuning replaces the active constants. Invalid tuning is ignored.
func (e *Estimator) SetTuning(t Tuning) {
	if err := t.Validate(); err != nil {
		e.logger.Warn("Ignoring invalid bandwidth tuning", "error", err)
		return
	}
	e.mu.Lock()
	e.tuning = t
	e.mu.Unlock()
	e.logger.Info("Bandwidth tuning updated",
		"narrow_ratio", t.NarrowRatio,
		"headroom_percent", t.HeadroomPercent,
		"thresholds", []int{t.HighPercent, t.MidPercent, t.LowPercent})
}

// Estimate computes the demand of the windows that fetch through the display
// DMA. Disabled, solid color and offloaded windows do not count.
func (e *Estimator) Estimate(windows []display.WindowConfig, panel display.Panel) Estimate {
	t := e.Tuning()

	var rects []geom.Rect
	bpp := 0
	for _, w := range windows {
		if w.State != display.StateBuffer || w.Offloaded() {
			continue
		}
		rects = append(rects, w.Dst)
		if b := bytesPerPixel(w); b > bpp {
			bpp = b
		}
	}

	est := Estimate{BytesPerPixel: bpp}
	est.Depth, est.Regions = MaxDepth(rects, t.MaxDepth)
	est.EffectiveDepth = est.Depth
	if est.Depth > 1 && negligible(est.Regions, panel.Width, t) {
		est.EffectiveDepth--
	}

	clock := panel.EffectivePixelClock()
	depth := uint64(est.EffectiveDepth)
	est.InterconnectBps = withHeadroom(clock*depth*uint64(bpp), t.HeadroomPercent)
	est.DisplayClockHz = withHeadroom(clock*depth/uint64(t.PixelsPerClock), t.HeadroomPercent)

	ceiling := t.MaxInterconnectBps
	if ceiling == 0 {
		ceiling = withHeadroom(clock*uint64(t.MaxDepth)*4, t.HeadroomPercent)
	}
	if ceiling > 0 {
		est.Percent = int(est.InterconnectBps * 100 / ceiling)
	}
	est.Level = levelFor(est.Percent, t)
	return est
}

// negligible reports whether every deepest region is too narrow or too short
// to occupy a full layer of fetch bandwidth.
func negligible(regions []geom.Rect, panelWidth int, t Tuning) bool {
	for _, r := range regions {
		narrow := r.Width*t.NarrowRatio < panelWidth
		short := r.Height < t.MinOverlapLines
		if !narrow && !short {
			return false
		}
	}
	return len(regions) > 0
}

func bytesPerPixel(w display.WindowConfig) int {
	info := w.Resolved.Info
	if info.Name == "" {
		var err error
		if info, err = format.Lookup(w.Format); err != nil {
			return 0
		}
	}
	return (info.BitsPerPixel + 7) / 8
}

func withHeadroom(v uint64, percent int) uint64 {
	return v * uint64(100+percent) / 100
}

func levelFor(percent int, t Tuning) Level {
	switch {
	case percent >= t.HighPercent:
		return LevelHigh
	case percent >= t.MidPercent:
		return LevelMid
	case percent >= t.LowPercent:
		return LevelLow
	default:
		return LevelMin
	}
}
