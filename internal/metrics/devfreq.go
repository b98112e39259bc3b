package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	devfreqCurrent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "devfreq",
		Name:      "current_hz",
		Help:      "Current frequency of a devfreq node",
	}, []string{"node"})

	devfreqFloor = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "devfreq",
		Name:      "min_hz",
		Help:      "Frequency floor of a devfreq node",
	}, []string{"node"})
)

// SetDevfreq sets the current frequency and floor of a devfreq node.
func SetDevfreq(node string, currentHz, minHz float64) {
	devfreqCurrent.WithLabelValues(node).Set(currentHz)
	devfreqFloor.WithLabelValues(node).Set(minHz)
}

// DeleteDevfreqMetrics removes all metrics for a devfreq node.
func DeleteDevfreqMetrics(node string) {
	devfreqCurrent.DeleteLabelValues(node)
	devfreqFloor.DeleteLabelValues(node)
}
