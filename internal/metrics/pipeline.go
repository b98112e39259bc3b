// Package metrics provides Prometheus metrics for the display pipelines.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "decon"

var (
	framesReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "frames_released_total",
		Help:      "Frames displayed and released",
	}, []string{"pipeline"})

	framesAborted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "frames_aborted_total",
		Help:      "Frames aborted before reaching the panel",
	}, []string{"pipeline", "code"})

	buffersReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "buffers_released_total",
		Help:      "Producer buffers handed back to the allocator",
	}, []string{"pipeline"})

	frameLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "frame_latency_seconds",
		Help:      "Time from submit to token release",
		Buckets:   []float64{.004, .008, .016, .033, .050, .100, .250, .500},
	}, []string{"pipeline"})

	pipelineDegraded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "degraded",
		Help:      "1 while the pipeline refuses frames after a hardware timeout",
	}, []string{"pipeline"})

	qosLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bandwidth",
		Name:      "qos_level",
		Help:      "Last requested QoS level (0=min, 3=high)",
	}, []string{"pipeline"})

	interconnectBps = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bandwidth",
		Name:      "interconnect_bytes_per_second",
		Help:      "Last requested interconnect bandwidth",
	}, []string{"pipeline"})

	displayClock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bandwidth",
		Name:      "display_clock_hz",
		Help:      "Last requested display clock",
	}, []string{"pipeline"})

	overlapDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bandwidth",
		Name:      "overlap_depth",
		Help:      "Effective overlap depth of the last requested frame",
	}, []string{"pipeline"})

	admissionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bandwidth",
		Name:      "admission_failures_total",
		Help:      "QoS requests the platform refused",
	}, []string{"pipeline"})

	unitOwner = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "units",
		Name:      "owner_info",
		Help:      "1 for the pipeline currently owning a compositing unit",
	}, []string{"unit", "owner"})

	// Local cache for API and SSE access.
	pipelineCache   = make(map[string]*PipelineMetrics)
	pipelineCacheMu sync.RWMutex
)

// PipelineMetrics holds current metric values for a pipeline.
type PipelineMetrics struct {
	FramesReleased    uint64  `json:"frames_released"`
	FramesAborted     uint64  `json:"frames_aborted"`
	BuffersReleased   uint64  `json:"buffers_released"`
	LastLatency       float64 `json:"last_latency_seconds"`
	Degraded          bool    `json:"degraded"`
	QoSLevel          string  `json:"qos_level"`
	InterconnectBps   uint64  `json:"interconnect_bps"`
	DisplayClockHz    uint64  `json:"display_clock_hz"`
	OverlapDepth      int     `json:"overlap_depth"`
	AdmissionFailures uint64  `json:"admission_failures"`
}

// ObserveFrameReleased records a displayed frame.
func ObserveFrameReleased(pipeline string, latencySeconds float64, buffers int) {
	framesReleased.WithLabelValues(pipeline).Inc()
	frameLatency.WithLabelValues(pipeline).Observe(latencySeconds)
	buffersReleased.WithLabelValues(pipeline).Add(float64(buffers))
	updateCache(pipeline, func(m *PipelineMetrics) {
		m.FramesReleased++
		m.BuffersReleased += uint64(buffers)
		m.LastLatency = latencySeconds
	})
}

// ObserveFrameAborted records a frame aborted with code.
func ObserveFrameAborted(pipeline, code string, buffers int) {
	framesAborted.WithLabelValues(pipeline, code).Inc()
	buffersReleased.WithLabelValues(pipeline).Add(float64(buffers))
	updateCache(pipeline, func(m *PipelineMetrics) {
		m.FramesAborted++
		m.BuffersReleased += uint64(buffers)
	})
}

// SetDegraded sets the degraded flag of a pipeline.
func SetDegraded(pipeline string, degraded bool) {
	v := 0.0
	if degraded {
		v = 1
	}
	pipelineDegraded.WithLabelValues(pipeline).Set(v)
	updateCache(pipeline, func(m *PipelineMetrics) { m.Degraded = degraded })
}

// BandwidthRequest is the subset of a QoS request that is exported.
type BandwidthRequest struct {
	Level           int
	LevelName       string
	EffectiveDepth  int
	InterconnectBps uint64
	DisplayClockHz  uint64
	Admitted        bool
}

// SetBandwidthRequest records the last QoS request of a pipeline. Refused
// requests only count as admission failures.
func SetBandwidthRequest(pipeline string, req BandwidthRequest) {
	if !req.Admitted {
		admissionFailures.WithLabelValues(pipeline).Inc()
		updateCache(pipeline, func(m *PipelineMetrics) { m.AdmissionFailures++ })
		return
	}
	qosLevel.WithLabelValues(pipeline).Set(float64(req.Level))
	interconnectBps.WithLabelValues(pipeline).Set(float64(req.InterconnectBps))
	displayClock.WithLabelValues(pipeline).Set(float64(req.DisplayClockHz))
	overlapDepth.WithLabelValues(pipeline).Set(float64(req.EffectiveDepth))
	updateCache(pipeline, func(m *PipelineMetrics) {
		m.QoSLevel = req.LevelName
		m.InterconnectBps = req.InterconnectBps
		m.DisplayClockHz = req.DisplayClockHz
		m.OverlapDepth = req.EffectiveDepth
	})
}

// SetUnitOwner moves the owner_info series of a unit from oldOwner to newOwner.
// An empty owner means the unit is free.
func SetUnitOwner(unit, oldOwner, newOwner string) {
	if oldOwner != "" {
		unitOwner.DeleteLabelValues(unit, oldOwner)
	}
	if newOwner != "" {
		unitOwner.WithLabelValues(unit, newOwner).Set(1)
	}
}

// DeletePipelineMetrics removes all metrics for a pipeline.
func DeletePipelineMetrics(pipeline string) {
	labels := prometheus.Labels{"pipeline": pipeline}
	framesReleased.DeletePartialMatch(labels)
	framesAborted.DeletePartialMatch(labels)
	buffersReleased.DeletePartialMatch(labels)
	frameLatency.DeletePartialMatch(labels)
	pipelineDegraded.DeletePartialMatch(labels)
	qosLevel.DeletePartialMatch(labels)
	interconnectBps.DeletePartialMatch(labels)
	displayClock.DeletePartialMatch(labels)
	overlapDepth.DeletePartialMatch(labels)
	admissionFailures.DeletePartialMatch(labels)

	pipelineCacheMu.Lock()
	delete(pipelineCache, pipeline)
	pipelineCacheMu.Unlock()
}

// GetPipelineMetrics returns current metric values for a pipeline.
func GetPipelineMetrics(pipeline string) *PipelineMetrics {
	pipelineCacheMu.RLock()
	defer pipelineCacheMu.RUnlock()
	if m, ok := pipelineCache[pipeline]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllPipelineMetrics returns metrics for all pipelines seen so far.
func GetAllPipelineMetrics() map[string]*PipelineMetrics {
	pipelineCacheMu.RLock()
	defer pipelineCacheMu.RUnlock()
	result := make(map[string]*PipelineMetrics, len(pipelineCache))
	for id, m := range pipelineCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(pipeline string, update func(*PipelineMetrics)) {
	pipelineCacheMu.Lock()
	defer pipelineCacheMu.Unlock()
	m, ok := pipelineCache[pipeline]
	if !ok {
		m = &PipelineMetrics{}
		pipelineCache[pipeline] = m
	}
	update(m)
}
