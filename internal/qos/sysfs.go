package qos

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/smazurov/decon/internal/bandwidth"
)

const sysfsDevfreqPath = "/sys/class/devfreq"

// Nodes names the devfreq devices driven by the sysfs backend.
type Nodes struct {
	// Interconnect is the memory interface devfreq, shared by all pipelines.
	Interconnect string
	// Display is the display controller clock devfreq.
	Display string
	// BusBytes is how many bytes the interconnect moves per clock.
	BusBytes uint64
}

// sysfs implements Requester by raising devfreq min_freq floors
type sysfs struct {
	root    string
	nodes   Nodes
	mu      sync.Mutex
	demands map[string]bandwidth.Estimate
	written map[string]uint64 // node -> last written floor
}

func newSysfs(root string, nodes Nodes) *sysfs {
	if root == "" {
		root = sysfsDevfreqPath
	}
	if nodes.BusBytes == 0 {
		nodes.BusBytes = 16
	}
	return &sysfs{
		root:    root,
		nodes:   nodes,
		demands: make(map[string]bandwidth.Estimate),
		written: make(map[string]uint64),
	}
}

// Request records owner's demand and rewrites the floors
func (s *sysfs) Request(owner string, est bandwidth.Estimate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.demands[owner] = est
	return s.apply()
}

// Clear drops owner's demand and rewrites the floors
func (s *sysfs) Clear(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.demands[owner]; !ok {
		return nil
	}
	delete(s.demands, owner)
	return s.apply()
}

func (s *sysfs) Name() string {
	return "sysfs"
}

// apply writes the aggregate demand (must hold lock). Interconnect demand is
// summed across owners, the display clock takes the highest request.
func (s *sysfs) apply() error {
	var bps, clock uint64
	for _, est := range s.demands {
		bps += est.InterconnectBps
		clock = max(clock, est.DisplayClockHz)
	}

	if s.nodes.Interconnect != "" {
		if err := s.writeFloor(s.nodes.Interconnect, bps/s.nodes.BusBytes); err != nil {
			return err
		}
	}
	if s.nodes.Display != "" {
		if err := s.writeFloor(s.nodes.Display, clock); err != nil {
			return err
		}
	}
	return nil
}

func (s *sysfs) writeFloor(node string, hz uint64) error {
	if prev, ok := s.written[node]; ok && prev == hz {
		return nil
	}

	nodePath := filepath.Join(s.root, node)
	if _, err := os.Stat(nodePath); os.IsNotExist(err) {
		return fmt.Errorf("devfreq %q not found at %s", node, nodePath)
	}

	minPath := filepath.Join(nodePath, "min_freq")
	if err := os.WriteFile(minPath, []byte(strconv.FormatUint(hz, 10)), 0644); err != nil {
		return fmt.Errorf("failed to set %s min_freq: %w", node, err)
	}
	s.written[node] = hz
	return nil
}
