package qos

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/smazurov/decon/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// Backend names accepted by New.
const (
	BackendAuto  = "auto"
	BackendSysfs = "sysfs"
	BackendNoop  = "noop"
)

// New creates a QoS requester for backend. "auto" picks the sysfs backend on
// boards with known devfreq nodes and falls back to a no-op requester.
func New(backend string, logger logging.Logger) Requester {
	return newWithRoot(backend, sysfsDevfreqPath, logger)
}

func newWithRoot(backend, root string, logger logging.Logger) Requester {
	switch backend {
	case BackendNoop:
		return newNoop(logger)
	case BackendSysfs:
		return newSysfs(root, exynosNodes)
	}

	boardModel := detectBoard()
	if logger != nil {
		logger.Info("Detecting board for QoS control", "board_model", boardModel)
	}

	switch {
	case strings.Contains(boardModel, "Exynos") && devfreqPresent(root, exynosNodes.Interconnect):
		if logger != nil {
			logger.Info("Detected Exynos board, using sysfs devfreq QoS")
		}
		return newSysfs(root, exynosNodes)

	default:
		if logger != nil {
			logger.Info("No QoS support detected, using no-op requester", "board_model", boardModel)
		}
		return newNoop(logger)
	}
}

var exynosNodes = Nodes{
	Interconnect: "17000010.devfreq_mif",
	Display:      "17000040.devfreq_disp",
	BusBytes:     16,
}

func devfreqPresent(root, node string) bool {
	_, err := os.Stat(filepath.Join(root, node))
	return err == nil
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}

	// Device tree model contains null bytes, trim them
	return strings.TrimRight(string(data), "\x00")
}
