package collectors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/decon/internal/logging"
	"github.com/smazurov/decon/internal/metrics"
)

const defaultDevfreqRoot = "/sys/class/devfreq"

// DevfreqCollector samples the current frequency and floor of the devfreq
// nodes the QoS requester drives.
type DevfreqCollector struct {
	logger   logging.Logger
	root     string
	nodes    []string
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewDevfreqCollector creates a collector for nodes under /sys/class/devfreq.
func NewDevfreqCollector(nodes ...string) *DevfreqCollector {
	return &DevfreqCollector{
		logger:   logging.GetLogger("devfreq"),
		root:     defaultDevfreqRoot,
		nodes:    nodes,
		interval: 5 * time.Second,
	}
}

// Start begins sampling.
func (d *DevfreqCollector) Start(ctx context.Context) error {
	if len(d.nodes) == 0 {
		return nil
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.run()
	return nil
}

// Stop stops sampling and removes the node series.
func (d *DevfreqCollector) Stop() error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	<-d.done
	for _, node := range d.nodes {
		metrics.DeleteDevfreqMetrics(node)
	}
	return nil
}

func (d *DevfreqCollector) run() {
	defer close(d.done)
	d.logger.Info("Starting devfreq metrics collection", "nodes", d.nodes, "interval", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.collectMetrics()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.collectMetrics()
		}
	}
}

func (d *DevfreqCollector) collectMetrics() {
	for _, node := range d.nodes {
		cur, err := readHz(filepath.Join(d.root, node, "cur_freq"))
		if err != nil {
			d.logger.Warn("Failed to read devfreq node", "node", node, "error", err)
			continue
		}
		floor, err := readHz(filepath.Join(d.root, node, "min_freq"))
		if err != nil {
			d.logger.Warn("Failed to read devfreq floor", "node", node, "error", err)
			continue
		}
		metrics.SetDevfreq(node, float64(cur), float64(floor))
	}
}

func readHz(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	hz, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return hz, nil
}
