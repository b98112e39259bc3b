// Package scenario reads scripted frame sequences used to exercise a
// pipeline offline (validate) or against the simulated controller (simulate).
//
// Scenarios are TOML or YAML files:
//
//	name = "overlay over video"
//	partial_update = true
//
//	[panel]
//	width = 1080
//	height = 1920
//	refresh_hz = 60
//
//	[[buffers]]
//	handle = "fb0"
//	size = 8294400
//
//	[[frames]]
//	name = "background"
//	[[frames.windows]]
//	index = 0
//	state = "buffer"
//	format = "argb8888"
//	plane_alpha = 255
//	planes = ["fb0"]
//	dst = { x = 0, y = 0, width = 1080, height = 1920 }
//	src = { x = 0, y = 0, width = 1080, height = 1920 }
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/smazurov/decon/internal/bandwidth"
	"github.com/smazurov/decon/internal/buffer"
	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/format"
	"github.com/smazurov/decon/internal/units"
)

// Fault is a hardware misbehavior injected while a frame is committed.
type Fault string

// Faults understood by the simulator.
const (
	FaultNone          Fault = ""
	FaultDropVsync     Fault = "drop_vsync"
	FaultDropAck       Fault = "drop_ack"
	FaultHardwareError Fault = "hardware_error"
)

// IsValid reports whether f is a known fault.
func (f Fault) IsValid() bool {
	switch f {
	case FaultNone, FaultDropVsync, FaultDropAck, FaultHardwareError:
		return true
	}
	return false
}

// Buffer is a producer buffer known to the simulated allocator.
type Buffer struct {
	Handle buffer.Handle `toml:"handle" yaml:"handle"`
	Size   uint64        `toml:"size" yaml:"size"`
}

// Frame is one submission.
type Frame struct {
	Name    string                 `toml:"name" yaml:"name"`
	Windows []display.WindowConfig `toml:"windows" yaml:"windows"`
	// Fault is injected before the frame is submitted.
	Fault Fault `toml:"fault" yaml:"fault"`
	// Reset clears a degraded pipeline before the frame is submitted.
	Reset bool `toml:"reset" yaml:"reset"`
	// Expect is the error code the frame should end with; empty expects release.
	Expect string `toml:"expect" yaml:"expect"`
}

// Scenario is a panel description and a list of frames.
type Scenario struct {
	Name          string           `toml:"name" yaml:"name"`
	Panel         display.Panel    `toml:"panel" yaml:"panel"`
	MaxWindows    int              `toml:"max_windows" yaml:"max_windows"`
	Formats       []format.Pixel   `toml:"formats" yaml:"formats"`
	Units         []units.ID       `toml:"units" yaml:"units"`
	PartialUpdate bool             `toml:"partial_update" yaml:"partial_update"`
	Tuning        bandwidth.Tuning `toml:"tuning" yaml:"tuning"`
	Buffers       []Buffer         `toml:"buffers" yaml:"buffers"`
	Frames        []Frame          `toml:"frames" yaml:"frames"`
}

// ErrUnknownExtension is returned for files that are neither TOML nor YAML.
var ErrUnknownExtension = errors.New("scenario must be a .toml, .yaml or .yml file")

// Load reads and validates the scenario at path. The decoder is chosen by
// file extension.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a scenario. ext is ".toml", ".yaml" or ".yml".
func Parse(data []byte, ext string) (*Scenario, error) {
	// Keys missing from the tuning table keep their default.
	s := Scenario{Tuning: bandwidth.DefaultTuning()}
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse scenario: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse scenario: %w", err)
		}
	default:
		return nil, ErrUnknownExtension
	}

	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) applyDefaults() {
	if s.MaxWindows == 0 {
		s.MaxWindows = 7
	}
	if len(s.Formats) == 0 {
		s.Formats = format.All()
	}
	if s.Panel.RefreshHz == 0 {
		s.Panel.RefreshHz = 60
	}
	for i := range s.Frames {
		if s.Frames[i].Name == "" {
			s.Frames[i].Name = fmt.Sprintf("frame-%d", i+1)
		}
	}
}

// Validate checks the scenario itself. Window contents are deliberately not
// checked here; invalid windows are how rejection paths are scripted.
func (s *Scenario) Validate() error {
	if s.Panel.Width <= 0 || s.Panel.Height <= 0 {
		return fmt.Errorf("panel size must be positive, got %dx%d", s.Panel.Width, s.Panel.Height)
	}
	if s.MaxWindows < 1 {
		return fmt.Errorf("max_windows must be at least 1, got %d", s.MaxWindows)
	}
	if len(s.Frames) == 0 {
		return errors.New("scenario has no frames")
	}
	if err := s.Tuning.Validate(); err != nil {
		return fmt.Errorf("tuning: %w", err)
	}

	seen := make(map[buffer.Handle]bool, len(s.Buffers))
	for _, b := range s.Buffers {
		if b.Handle == "" {
			return errors.New("buffer with empty handle")
		}
		if seen[b.Handle] {
			return fmt.Errorf("buffer %q declared twice", b.Handle)
		}
		seen[b.Handle] = true
	}

	for _, f := range s.Frames {
		if !f.Fault.IsValid() {
			return fmt.Errorf("frame %q: unknown fault %q", f.Name, f.Fault)
		}
		if f.Expect != "" && display.KindForCode(f.Expect) == "" {
			return fmt.Errorf("frame %q: unknown error code %q", f.Name, f.Expect)
		}
	}
	return nil
}

// Capabilities returns what a pipeline built from the scenario reports.
func (s *Scenario) Capabilities() display.Capabilities {
	return display.Capabilities{
		Panel:         s.Panel,
		MaxWindows:    s.MaxWindows,
		Formats:       s.Formats,
		Units:         s.Units,
		PartialUpdate: s.PartialUpdate,
	}
}
