package events

// Event type constants for kelindar/event.
const (
	TypeFrameStateChanged uint32 = iota + 1
	TypeFrameReleased
	TypePipelineDegraded
	TypeUnitOwnership
	TypeBandwidthRequest
	TypeLogEntry
	TypePipelineMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// FrameStateChangedEvent is published on every frame state transition.
type FrameStateChangedEvent struct {
	Pipeline  string `json:"pipeline" example:"internal" doc:"Pipeline identifier"`
	Token     uint64 `json:"token" example:"42" doc:"Release token of the frame"`
	From      string `json:"from" example:"applying" doc:"Previous frame state"`
	To        string `json:"to" example:"awaiting_vsync" doc:"New frame state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameStateChangedEvent.
func (e FrameStateChangedEvent) Type() uint32 { return TypeFrameStateChanged }

// FrameReleasedEvent is published when a frame's token is signaled.
type FrameReleasedEvent struct {
	Pipeline string `json:"pipeline" example:"internal" doc:"Pipeline identifier"`
	Token    uint64 `json:"token" example:"42" doc:"Release token of the frame"`
	Aborted  bool   `json:"aborted" example:"false" doc:"Whether the frame was aborted instead of displayed"`
	// Code is the error code of an aborted frame.
	Code            string  `json:"code,omitempty" example:"VSYNC_TIMEOUT" doc:"Abort reason code"`
	LatencySeconds  float64 `json:"latency_seconds" example:"0.016" doc:"Time from submit to release"`
	ReleasedBuffers int     `json:"released_buffers" example:"2" doc:"Buffers handed back to the allocator"`
	Timestamp       string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameReleasedEvent.
func (e FrameReleasedEvent) Type() uint32 { return TypeFrameReleased }

// PipelineDegradedEvent reports entering or leaving the degraded state.
type PipelineDegradedEvent struct {
	Pipeline  string `json:"pipeline" example:"internal" doc:"Pipeline identifier"`
	Degraded  bool   `json:"degraded" example:"true" doc:"Whether the pipeline is degraded"`
	Code      string `json:"code,omitempty" example:"VSYNC_TIMEOUT" doc:"Cause of degradation"`
	Message   string `json:"message,omitempty" doc:"Human readable cause"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PipelineDegradedEvent.
func (e PipelineDegradedEvent) Type() uint32 { return TypePipelineDegraded }

// UnitOwnershipEvent is published when a compositing unit changes owner.
type UnitOwnershipEvent struct {
	Unit      int    `json:"unit" example:"1" doc:"Compositing unit identifier"`
	From      string `json:"from" example:"internal" doc:"Previous owner, empty when free"`
	To        string `json:"to" example:"external" doc:"New owner, empty when released"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for UnitOwnershipEvent.
func (e UnitOwnershipEvent) Type() uint32 { return TypeUnitOwnership }

// BandwidthRequestEvent is published for every QoS request a pipeline makes.
type BandwidthRequestEvent struct {
	Pipeline        string `json:"pipeline" example:"internal" doc:"Pipeline identifier"`
	Level           string `json:"level" example:"mid" doc:"Requested QoS level"`
	Depth           int    `json:"depth" example:"3" doc:"Maximum overlap depth"`
	EffectiveDepth  int    `json:"effective_depth" example:"2" doc:"Overlap depth after discounts"`
	InterconnectBps uint64 `json:"interconnect_bps" doc:"Requested interconnect bandwidth in bytes per second"`
	DisplayClockHz  uint64 `json:"display_clock_hz" doc:"Requested display clock"`
	Admitted        bool   `json:"admitted" example:"true" doc:"Whether the platform accepted the request"`
	Timestamp       string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for BandwidthRequestEvent.
func (e BandwidthRequestEvent) Type() uint32 { return TypeBandwidthRequest }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// PipelineMetricsEvent is a periodic snapshot of one pipeline's counters.
type PipelineMetricsEvent struct {
	EventType       string `json:"type" example:"pipeline_metrics" doc:"Event type"`
	Pipeline        string `json:"pipeline" example:"internal" doc:"Pipeline identifier"`
	FramesReleased  string `json:"frames_released" example:"3600" doc:"Frames displayed and released"`
	FramesAborted   string `json:"frames_aborted" example:"2" doc:"Frames aborted"`
	LastLatencyMs   string `json:"last_latency_ms" example:"16.70" doc:"Latency of the last released frame"`
	QoSLevel        string `json:"qos_level" example:"mid" doc:"Last requested QoS level"`
	InterconnectBps string `json:"interconnect_bps" example:"1200000000" doc:"Last requested interconnect bandwidth"`
	Degraded        bool   `json:"degraded" example:"false" doc:"Whether the pipeline is degraded"`
}

// Type returns the event type identifier for PipelineMetricsEvent.
func (e PipelineMetricsEvent) Type() uint32 { return TypePipelineMetrics }
