package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFrameCounters(t *testing.T) {
	id := "counters-test"
	DeletePipelineMetrics(id)
	defer DeletePipelineMetrics(id)

	ObserveFrameReleased(id, 0.016, 2)
	ObserveFrameReleased(id, 0.017, 1)
	ObserveFrameAborted(id, "VSYNC_TIMEOUT", 3)

	if v := testutil.ToFloat64(framesReleased.WithLabelValues(id)); v != 2 {
		t.Errorf("framesReleased = %v, want 2", v)
	}
	if v := testutil.ToFloat64(framesAborted.WithLabelValues(id, "VSYNC_TIMEOUT")); v != 1 {
		t.Errorf("framesAborted = %v, want 1", v)
	}
	if v := testutil.ToFloat64(buffersReleased.WithLabelValues(id)); v != 6 {
		t.Errorf("buffersReleased = %v, want 6", v)
	}

	m := GetPipelineMetrics(id)
	if m == nil {
		t.Fatal("GetPipelineMetrics() = nil")
	}
	if m.FramesReleased != 2 || m.FramesAborted != 1 || m.BuffersReleased != 6 || m.LastLatency != 0.017 {
		t.Errorf("cache = %+v", m)
	}
}

func TestSetDegraded(t *testing.T) {
	id := "degraded-test"
	defer DeletePipelineMetrics(id)

	SetDegraded(id, true)
	if v := testutil.ToFloat64(pipelineDegraded.WithLabelValues(id)); v != 1 {
		t.Errorf("degraded = %v, want 1", v)
	}
	SetDegraded(id, false)
	if v := testutil.ToFloat64(pipelineDegraded.WithLabelValues(id)); v != 0 {
		t.Errorf("degraded = %v, want 0", v)
	}
	if GetPipelineMetrics(id).Degraded {
		t.Error("cache still degraded")
	}
}

func TestSetBandwidthRequest(t *testing.T) {
	id := "bandwidth-test"
	defer DeletePipelineMetrics(id)

	SetBandwidthRequest(id, BandwidthRequest{
		Level:           2,
		LevelName:       "mid",
		EffectiveDepth:  3,
		InterconnectBps: 1 << 30,
		DisplayClockHz:  200_000_000,
		Admitted:        true,
	})
	// A refused request leaves the gauges at the last admitted values.
	SetBandwidthRequest(id, BandwidthRequest{Level: 3, LevelName: "high", Admitted: false})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"qos_level", testutil.ToFloat64(qosLevel.WithLabelValues(id)), 2},
		{"overlap_depth", testutil.ToFloat64(overlapDepth.WithLabelValues(id)), 3},
		{"interconnect", testutil.ToFloat64(interconnectBps.WithLabelValues(id)), 1 << 30},
		{"display_clock", testutil.ToFloat64(displayClock.WithLabelValues(id)), 200_000_000},
		{"admission_failures", testutil.ToFloat64(admissionFailures.WithLabelValues(id)), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	m := GetPipelineMetrics(id)
	if m.QoSLevel != "mid" || m.AdmissionFailures != 1 {
		t.Errorf("cache = %+v", m)
	}
}

func TestSetUnitOwner(t *testing.T) {
	SetUnitOwner("9", "", "internal")
	if n := testutil.CollectAndCount(unitOwner); n != 1 {
		t.Fatalf("series = %d, want 1", n)
	}

	SetUnitOwner("9", "internal", "external")
	if v := testutil.ToFloat64(unitOwner.WithLabelValues("9", "external")); v != 1 {
		t.Errorf("external owner = %v, want 1", v)
	}
	if n := testutil.CollectAndCount(unitOwner); n != 1 {
		t.Errorf("series after transfer = %d, want 1", n)
	}

	SetUnitOwner("9", "external", "")
	if n := testutil.CollectAndCount(unitOwner); n != 0 {
		t.Errorf("series after release = %d, want 0", n)
	}
}

func TestDeletePipelineMetrics(t *testing.T) {
	id := "delete-test"
	ObserveFrameAborted(id, "UNIT_BUSY", 0)
	SetDegraded(id, true)

	DeletePipelineMetrics(id)

	if GetPipelineMetrics(id) != nil {
		t.Error("cache entry survived delete")
	}
	if _, ok := GetAllPipelineMetrics()[id]; ok {
		t.Error("GetAllPipelineMetrics() still lists the pipeline")
	}

	// Delete non-existent should not panic
	DeletePipelineMetrics("non-existent-pipeline")
}

func TestDevfreqMetrics(t *testing.T) {
	node := "devfreq-test"
	SetDevfreq(node, 800e6, 400e6)

	if v := testutil.ToFloat64(devfreqCurrent.WithLabelValues(node)); v != 800e6 {
		t.Errorf("current = %v", v)
	}
	if v := testutil.ToFloat64(devfreqFloor.WithLabelValues(node)); v != 400e6 {
		t.Errorf("floor = %v", v)
	}
	DeleteDevfreqMetrics(node)
}
