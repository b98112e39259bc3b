package led

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/decon/internal/events"
)

// Mock controller for testing
type mockController struct {
	mu       sync.Mutex
	setCalls []setCall
}

type setCall struct {
	name    string
	enabled bool
	pattern string
}

func (m *mockController) Set(name string, enabled bool, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls = append(m.setCalls, setCall{name, enabled, pattern})
	return nil
}

func (m *mockController) Available() []string {
	return []string{StatusLED}
}

func (m *mockController) Patterns() []string {
	return []string{PatternSolid, PatternBlink}
}

func (m *mockController) last(t *testing.T) setCall {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.setCalls) == 0 {
		t.Fatal("No LED control calls made")
	}
	return m.setCalls[len(m.setCalls)-1]
}

func newTestManager(t *testing.T) (*Manager, *mockController, *events.Bus) {
	t.Helper()
	ctrl := &mockController{}
	eventBus := events.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return NewManager(ctrl, eventBus, logger), ctrl, eventBus
}

func TestManager_StartsSolid(t *testing.T) {
	mgr, ctrl, _ := newTestManager(t)
	mgr.Start()
	defer mgr.Stop()

	if got := ctrl.last(t); got != (setCall{StatusLED, true, PatternSolid}) {
		t.Errorf("initial call = %+v, want solid status LED", got)
	}
}

func TestManager_BlinksWhileDegraded(t *testing.T) {
	mgr, ctrl, eventBus := newTestManager(t)
	mgr.Start()
	defer mgr.Stop()

	eventBus.Publish(events.PipelineDegradedEvent{
		Pipeline:  "internal",
		Degraded:  true,
		Code:      "VSYNC_TIMEOUT",
		Timestamp: time.Now().Format(time.RFC3339),
	})
	eventBus.Publish(events.PipelineDegradedEvent{
		Pipeline:  "external",
		Degraded:  true,
		Code:      "ACK_TIMEOUT",
		Timestamp: time.Now().Format(time.RFC3339),
	})

	// Give manager time to process
	time.Sleep(50 * time.Millisecond)

	if got := ctrl.last(t); got.pattern != PatternBlink {
		t.Errorf("Expected blink pattern while degraded, got %q", got.pattern)
	}

	// One pipeline recovering is not enough.
	eventBus.Publish(events.PipelineDegradedEvent{Pipeline: "internal", Degraded: false})
	time.Sleep(50 * time.Millisecond)

	if got := ctrl.last(t); got.pattern != PatternBlink {
		t.Errorf("Expected blink with one pipeline still degraded, got %q", got.pattern)
	}
	if d := mgr.Degraded(); len(d) != 1 || d[0] != "external" {
		t.Errorf("Degraded() = %v, want [external]", d)
	}

	eventBus.Publish(events.PipelineDegradedEvent{Pipeline: "external", Degraded: false})
	time.Sleep(50 * time.Millisecond)

	if got := ctrl.last(t); got.pattern != PatternSolid {
		t.Errorf("Expected solid after recovery, got %q", got.pattern)
	}
}

func TestManager_StopSwitchesOff(t *testing.T) {
	mgr, ctrl, _ := newTestManager(t)
	mgr.Start()
	mgr.Stop()

	if got := ctrl.last(t); got.enabled {
		t.Errorf("last call after Stop = %+v, want LED off", got)
	}
}

func TestManager_GetController(t *testing.T) {
	mgr, ctrl, _ := newTestManager(t)

	if got := mgr.GetController(); got != ctrl {
		t.Error("GetController() did not return the original controller")
	}
}
