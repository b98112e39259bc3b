package led

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
)

func TestNoopController(t *testing.T) {
	ctrl := newNoop(nil)

	if err := ctrl.Set(StatusLED, true, PatternSolid); err != nil {
		t.Errorf("Set() returned error: %v", err)
	}
	if names := ctrl.Available(); len(names) != 0 {
		t.Errorf("Available() = %v, want empty slice", names)
	}
	if patterns := ctrl.Patterns(); len(patterns) != 0 {
		t.Errorf("Patterns() = %v, want empty slice", patterns)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSysfsController_Set(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "blue:heartbeat")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	ctrl := newSysfs(root, map[string]string{StatusLED: "blue:heartbeat"})

	tests := []struct {
		name           string
		enabled        bool
		pattern        string
		wantTrigger    string
		wantBrightness string
	}{
		{"solid on", true, PatternSolid, "none", "1"},
		{"blink", true, PatternBlink, "heartbeat", "1"},
		{"off", false, PatternSolid, "none", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ctrl.Set(StatusLED, tt.enabled, tt.pattern); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if got := readFile(t, filepath.Join(dir, "trigger")); got != tt.wantTrigger {
				t.Errorf("trigger = %q, want %q", got, tt.wantTrigger)
			}
			if got := readFile(t, filepath.Join(dir, "brightness")); got != tt.wantBrightness {
				t.Errorf("brightness = %q, want %q", got, tt.wantBrightness)
			}
		})
	}

	if err := ctrl.Set("power", true, PatternSolid); err == nil {
		t.Error("Set() of unknown LED expected error")
	}
	if err := newSysfs(root, map[string]string{StatusLED: "missing"}).Set(StatusLED, true, ""); err == nil {
		t.Error("Set() of absent LED expected error")
	}
}

func TestSysfsController_Available(t *testing.T) {
	ctrl := newSysfs("", map[string]string{"b": "b_led", "a": "a_led"})
	got := ctrl.Available()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Available() = %v, want [a b]", got)
	}
}

type fakePin struct {
	mu     sync.Mutex
	levels []gpio.Level
}

func (p *fakePin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, l)
	return nil
}

func (p *fakePin) snapshot() []gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]gpio.Level(nil), p.levels...)
}

func TestGPIOController(t *testing.T) {
	pin := &fakePin{}
	ctrl := newGPIO(StatusLED, pin, 10*time.Millisecond)

	if err := ctrl.Set(StatusLED, true, PatternSolid); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := pin.snapshot(); len(got) != 1 || got[0] != gpio.High {
		t.Fatalf("levels after solid = %v", got)
	}

	if err := ctrl.Set(StatusLED, true, PatternBlink); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	var low, high int
	for _, l := range pin.snapshot()[1:] {
		if l == gpio.High {
			high++
		} else {
			low++
		}
	}
	if low == 0 || high == 0 {
		t.Errorf("blink produced %d high and %d low levels", high, low)
	}

	// Switching off stops the blink goroutine.
	if err := ctrl.Set(StatusLED, false, PatternSolid); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	n := len(pin.snapshot())
	time.Sleep(30 * time.Millisecond)
	got := pin.snapshot()
	if len(got) != n || got[n-1] != gpio.Low {
		t.Errorf("pin still toggling after off: %v", got[n-1:])
	}

	if err := ctrl.Set("power", true, PatternSolid); err == nil {
		t.Error("Set() of unknown LED expected error")
	}
}
