package led

import (
	"os"
	"strings"

	"github.com/smazurov/decon/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// StatusLED is the LED name the Manager drives.
const StatusLED = "status"

// Backend names accepted by New.
const (
	BackendAuto  = "auto"
	BackendSysfs = "sysfs"
	BackendGPIO  = "gpio"
	BackendNone  = "none"
)

// Options selects the status LED hardware.
type Options struct {
	Backend string
	// Sysfs is the /sys/class/leds directory used by the sysfs backend.
	Sysfs string
	// GPIO is the gpioreg pin name used by the gpio backend.
	GPIO string
}

// New creates a controller for opts. "auto" detects the board from the
// device tree and falls back to a no-op controller.
func New(opts Options, logger logging.Logger) Controller {
	switch opts.Backend {
	case BackendNone:
		return newNoop(logger)
	case BackendSysfs:
		return newSysfs("", map[string]string{StatusLED: opts.Sysfs})
	case BackendGPIO:
		ctrl, err := openGPIO(StatusLED, opts.GPIO)
		if err != nil {
			if logger != nil {
				logger.Warn("GPIO status LED unavailable, using no-op controller", "gpio", opts.GPIO, "error", err)
			}
			return newNoop(logger)
		}
		return ctrl
	}

	boardModel := detectBoard()
	if logger != nil {
		logger.Info("Detecting board for LED control", "board_model", boardModel)
	}

	if dir, ok := boardLED(boardModel); ok {
		if logger != nil {
			logger.Info("Using sysfs status LED", "board_model", boardModel, "led", dir)
		}
		return newSysfs("", map[string]string{StatusLED: dir})
	}

	if logger != nil {
		logger.Info("No LED support detected, using no-op controller", "board_model", boardModel)
	}
	return newNoop(logger)
}

// boardLED maps a device tree model to its status LED directory.
func boardLED(model string) (string, bool) {
	switch {
	case strings.Contains(model, "ODROID-XU4"), strings.Contains(model, "Odroid XU4"):
		return "blue:heartbeat", true
	case strings.Contains(model, "ODROID-XU3"):
		return "blue:heartbeat", true
	case strings.Contains(model, "Exynos"):
		return "status", true
	}
	return "", false
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
