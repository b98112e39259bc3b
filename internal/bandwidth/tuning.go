package bandwidth

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Tuning holds the board specific constants of the estimator.
type Tuning struct {
	// An overlap narrower than panelWidth/NarrowRatio does not count as a full layer.
	NarrowRatio int `toml:"narrow_ratio" json:"narrow_ratio" yaml:"narrow_ratio"`
	// Overlaps shorter than MinOverlapLines are discounted the same way.
	MinOverlapLines int `toml:"min_overlap_lines" json:"min_overlap_lines" yaml:"min_overlap_lines"`
	// HeadroomPercent is added on top of every computed rate.
	HeadroomPercent int `toml:"headroom_percent" json:"headroom_percent" yaml:"headroom_percent"`
	PixelsPerClock  int `toml:"pixels_per_clock" json:"pixels_per_clock" yaml:"pixels_per_clock"`
	MaxDepth        int `toml:"max_depth" json:"max_depth" yaml:"max_depth"`

	// Level thresholds as a percentage of MaxInterconnectBps.
	HighPercent int `toml:"high_percent" json:"high_percent" yaml:"high_percent"`
	MidPercent  int `toml:"mid_percent" json:"mid_percent" yaml:"mid_percent"`
	LowPercent  int `toml:"low_percent" json:"low_percent" yaml:"low_percent"`

	// MaxInterconnectBps is the interconnect ceiling. Zero derives it from the
	// panel as MaxDepth full-screen 32-bit layers.
	MaxInterconnectBps uint64 `toml:"max_interconnect_bps" json:"max_interconnect_bps" yaml:"max_interconnect_bps"`
}

// DefaultTuning returns the stock thresholds.
func DefaultTuning() Tuning {
	return Tuning{
		NarrowRatio:     10,
		MinOverlapLines: 8,
		HeadroomPercent: 15,
		PixelsPerClock:  2,
		MaxDepth:        7,
		HighPercent:     60,
		MidPercent:      30,
		LowPercent:      10,
	}
}

// Validate checks that the constants are usable.
func (t Tuning) Validate() error {
	switch {
	case t.NarrowRatio < 1:
		return fmt.Errorf("narrow_ratio must be at least 1, got %d", t.NarrowRatio)
	case t.MinOverlapLines < 0:
		return fmt.Errorf("min_overlap_lines must not be negative, got %d", t.MinOverlapLines)
	case t.HeadroomPercent < 0:
		return fmt.Errorf("headroom_percent must not be negative, got %d", t.HeadroomPercent)
	case t.PixelsPerClock < 1:
		return fmt.Errorf("pixels_per_clock must be at least 1, got %d", t.PixelsPerClock)
	case t.MaxDepth < 1:
		return fmt.Errorf("max_depth must be at least 1, got %d", t.MaxDepth)
	case !(t.HighPercent >= t.MidPercent && t.MidPercent >= t.LowPercent && t.LowPercent >= 0):
		return fmt.Errorf("level thresholds must be ordered high >= mid >= low >= 0, got %d/%d/%d",
			t.HighPercent, t.MidPercent, t.LowPercent)
	}
	return nil
}

// LoadTuning reads a tuning file. Keys missing from the file keep their
// default value.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("failed to read tuning file: %w", err)
	}
	if err := toml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("failed to parse tuning file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid tuning file %s: %w", path, err)
	}
	return t, nil
}
