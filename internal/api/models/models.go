package models

import (
	"github.com/smazurov/decon/internal/buffer"
	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/fence"
	"github.com/smazurov/decon/internal/format"
	"github.com/smazurov/decon/internal/geom"
	"github.com/smazurov/decon/internal/pipeline"
	"github.com/smazurov/decon/internal/units"
	"github.com/smazurov/decon/internal/version"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionResponse struct {
	Body version.Info
}

// Pipeline models
type PipelineData struct {
	ID            string    `json:"id" example:"internal" doc:"Pipeline identifier"`
	State         string    `json:"state" enum:"created,running,degraded,stopped" doc:"Pipeline lifecycle state"`
	InFlight      string    `json:"in_flight,omitempty" example:"awaiting_vsync" doc:"State of the frame owned by the commit worker"`
	InFlightToken uint64    `json:"in_flight_token,omitempty" doc:"Token of the in-flight frame"`
	Issued        uint64    `json:"issued" example:"42" doc:"Last token issued"`
	LastSignaled  uint64    `json:"last_signaled" example:"41" doc:"Last token released or aborted"`
	Displayed     uint64    `json:"displayed" example:"41" doc:"Token of the frame currently on screen"`
	QueueLength   int       `json:"queue_length" example:"1" doc:"Frames waiting for the commit worker"`
	PartialState  string    `json:"partial_state" example:"partial" doc:"Partial update state"`
	ScanRegion    geom.Rect `json:"scan_region" doc:"Region the panel currently scans out"`
	QoSLevel      string    `json:"qos_level" enum:"min,low,mid,high" doc:"Last requested bandwidth level"`
	DegradedCode  string    `json:"degraded_code,omitempty" example:"VSYNC_TIMEOUT" doc:"Cause of the degraded state"`
	DegradedError string    `json:"degraded_error,omitempty" doc:"Human readable cause"`
}

type PipelineListData struct {
	Pipelines []PipelineData `json:"pipelines" doc:"Display pipelines"`
	Count     int            `json:"count" example:"2" doc:"Number of pipelines"`
}

type PipelineListResponse struct {
	Body PipelineListData
}

type PipelineResponse struct {
	Body PipelineData
}

type PipelinePath struct {
	ID string `path:"id" example:"internal" doc:"Pipeline identifier"`
}

type CapabilitiesResponse struct {
	Body display.Capabilities
}

// WindowData is one window of a frame submission.
type WindowData struct {
	Index      int          `json:"index" minimum:"0" example:"0" doc:"Hardware window index"`
	State      string       `json:"state" enum:"disabled,solid_color,buffer,partial_update_region" doc:"Window state"`
	Dst        geom.Rect    `json:"dst" doc:"Destination rectangle on the panel"`
	Src        *geom.Rect   `json:"src,omitempty" doc:"Source crop inside the buffer"`
	Format     format.Pixel `json:"format,omitempty" doc:"Pixel format of buffer windows"`
	Blend      format.Blend `json:"blend,omitempty" doc:"Blend mode"`
	PlaneAlpha *int         `json:"plane_alpha,omitempty" minimum:"0" maximum:"255" doc:"Plane alpha, defaults to 255"`
	Color      uint32       `json:"color,omitempty" example:"4278190335" doc:"ARGB color of solid windows"`
	Planes     []string     `json:"planes,omitempty" doc:"Buffer handles, one per plane"`
	Unit       *int         `json:"unit,omitempty" doc:"Compositing unit to route the window through"`
	Protected  bool         `json:"protected,omitempty" doc:"Window carries protected content"`
}

// ToDomain converts the API window to the pipeline representation.
func (w WindowData) ToDomain() display.WindowConfig {
	out := display.WindowConfig{
		Index:      w.Index,
		State:      display.State(w.State),
		Dst:        w.Dst,
		Format:     w.Format,
		Blend:      w.Blend,
		PlaneAlpha: 255,
		Color:      w.Color,
		Protected:  w.Protected,
	}
	if w.Src != nil {
		out.Src = *w.Src
	}
	if w.PlaneAlpha != nil {
		out.PlaneAlpha = *w.PlaneAlpha
	}
	for _, h := range w.Planes {
		out.Planes = append(out.Planes, buffer.Handle(h))
	}
	if w.Unit != nil {
		id := units.ID(*w.Unit)
		out.Unit = &id
	}
	return out
}

type SubmitFrameRequest struct {
	ID   string `path:"id" example:"internal" doc:"Pipeline identifier"`
	Body struct {
		Windows []WindowData `json:"windows" minItems:"1" doc:"Window table of the frame"`
	}
}

type SubmitFrameData struct {
	Token uint64 `json:"token" example:"42" doc:"Release token, signaled once the frame is on screen. The previous frame's buffers may be reused from then on"`
}

type SubmitFrameResponse struct {
	Body SubmitFrameData
}

type FenceRequest struct {
	ID        string `path:"id" example:"internal" doc:"Pipeline identifier"`
	Token     uint64 `path:"token" example:"42" doc:"Release token"`
	TimeoutMs int    `query:"timeout_ms" minimum:"0" maximum:"10000" default:"0" doc:"How long to wait for the token, 0 returns immediately"`
}

type FenceData struct {
	Token  uint64       `json:"token" example:"42" doc:"Release token"`
	Status fence.Status `json:"status" enum:"pending,released,aborted,timed_out" doc:"Token state"`
}

type FenceResponse struct {
	Body FenceData
}

// Compositing unit models
type UnitListData struct {
	Units []units.Unit `json:"units" doc:"Compositing units and their owners"`
	Count int          `json:"count" example:"2" doc:"Number of units"`
}

type UnitListResponse struct {
	Body UnitListData
}

// PipelineToAPI converts a pipeline snapshot.
func PipelineToAPI(s pipeline.Status) PipelineData {
	return PipelineData{
		ID:            s.ID,
		State:         string(s.State),
		InFlight:      string(s.InFlight),
		InFlightToken: uint64(s.InFlightToken),
		Issued:        uint64(s.Issued),
		LastSignaled:  uint64(s.LastSignaled),
		Displayed:     uint64(s.Displayed),
		QueueLength:   s.QueueLength,
		PartialState:  s.PartialState,
		ScanRegion:    s.ScanRegion,
		QoSLevel:      s.QoSLevel.String(),
		DegradedCode:  s.DegradedCode,
		DegradedError: s.DegradedError,
	}
}
