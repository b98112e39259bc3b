package pipeline

import (
	"log/slog"
	"time"

	"github.com/smazurov/decon/internal/bandwidth"
	"github.com/smazurov/decon/internal/buffer"
	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/events"
	"github.com/smazurov/decon/internal/fence"
	"github.com/smazurov/decon/internal/format"
	"github.com/smazurov/decon/internal/hw"
	"github.com/smazurov/decon/internal/qos"
	"github.com/smazurov/decon/internal/transport"
	"github.com/smazurov/decon/internal/units"
)

// Default hardware timeouts.
const (
	DefaultVsyncTimeout = 300 * time.Millisecond
	DefaultAckTimeout   = 100 * time.Millisecond
	DefaultMaxWindows   = 7
)

// StateChangeCallback is called on every frame state transition.
// Used for domain-specific reactions (e.g., tests, tracing).
type StateChangeCallback func(id string, token fence.Token, oldState, newState FrameState)

// ReleaseCallback is called once per frame just before its token is signaled.
// code is empty for a released frame and the abort reason otherwise.
type ReleaseCallback func(id string, token fence.Token, code string)

// Options configures a new Pipeline.
type Options struct {
	// ID names the pipeline and is the owner name used for unit arbitration (required).
	ID    string
	Panel display.Panel
	// MaxWindows defaults to DefaultMaxWindows.
	MaxWindows int
	// Formats restricts the accepted pixel formats. Empty accepts every format.
	Formats          []format.Pixel
	PartialUpdate    bool
	ProtectedContent bool

	// Hardware is the shadow register bank (required).
	Hardware hw.Hardware
	// Importer attaches producer buffers (required).
	Importer *buffer.Importer
	// Units arbitrates compositing units. Nil disables offloading.
	Units *units.Arbiter
	// Estimator defaults to one with bandwidth.DefaultTuning.
	Estimator *bandwidth.Estimator
	// QoS defaults to a no-op requester.
	QoS qos.Requester
	// Transport programs the panel scan region. Defaults to transport.Noop.
	Transport transport.ScanRegionSetter
	// Events receives frame and pipeline events (optional).
	Events *events.Bus

	VsyncTimeout time.Duration
	AckTimeout   time.Duration

	// OnStateChange is called when a frame changes state (optional).
	OnStateChange StateChangeCallback
	// OnRelease is called when a frame is released or aborted (optional).
	OnRelease ReleaseCallback

	// Logger for pipeline operations. If nil, uses slog.Default().
	Logger *slog.Logger
}
