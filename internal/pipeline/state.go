package pipeline

import (
	"github.com/smazurov/decon/internal/bandwidth"
	"github.com/smazurov/decon/internal/fence"
	"github.com/smazurov/decon/internal/geom"
)

// FrameState is the position of a frame in the commit sequence.
type FrameState string

// Frame states.
const (
	FrameQueued              FrameState = "queued"
	FrameApplying            FrameState = "applying"
	FrameAwaitingVsync       FrameState = "awaiting_vsync"
	FrameAwaitingHardwareAck FrameState = "awaiting_hardware_ack"
	FrameReleased            FrameState = "released"
	FrameAborted             FrameState = "aborted"
)

// State is the lifecycle state of a pipeline.
type State string

// Pipeline states.
const (
	StateCreated  State = "created"  // Not started
	StateRunning  State = "running"  // Worker committing frames
	StateDegraded State = "degraded" // Hardware stopped responding, Reset required
	StateStopped  State = "stopped"  // Torn down
)

// Status is a point-in-time snapshot of a pipeline.
type Status struct {
	ID    string `json:"id"`
	State State  `json:"state"`
	// InFlight is the state of the frame owned by the worker, empty when idle.
	InFlight      FrameState      `json:"in_flight,omitempty"`
	InFlightToken fence.Token     `json:"in_flight_token,omitempty"`
	Issued        fence.Token     `json:"issued"`
	LastSignaled  fence.Token     `json:"last_signaled"`
	Displayed     fence.Token     `json:"displayed"`
	QueueLength   int             `json:"queue_length"`
	PartialState  string          `json:"partial_state"`
	ScanRegion    geom.Rect       `json:"scan_region"`
	QoSLevel      bandwidth.Level `json:"qos_level"`
	DegradedCode  string          `json:"degraded_code,omitempty"`
	DegradedError string          `json:"degraded_error,omitempty"`
}
