package qos

import (
	"github.com/smazurov/decon/internal/bandwidth"
	"github.com/smazurov/decon/internal/logging"
)

// noop implements Requester for systems without a QoS interface
type noop struct {
	logger logging.Logger
}

func newNoop(logger logging.Logger) *noop {
	return &noop{logger: logger}
}

// Request logs the demand but performs no platform request
func (n *noop) Request(owner string, est bandwidth.Estimate) error {
	if n.logger != nil {
		n.logger.Debug("QoS request not available (no-op)",
			"owner", owner,
			"level", est.Level,
			"interconnect_bps", est.InterconnectBps)
	}
	return nil
}

func (n *noop) Clear(string) error {
	return nil
}

func (n *noop) Name() string {
	return "noop"
}
