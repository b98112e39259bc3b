package led

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// DefaultBlinkPeriod is the on+off period of a blinking GPIO LED.
const DefaultBlinkPeriod = 500 * time.Millisecond

// outPin is the subset of gpio.PinOut the controller needs.
type outPin interface {
	Out(l gpio.Level) error
}

// gpioLED drives a single LED wired to a GPIO line. Blinking runs in a
// goroutine since plain GPIO has no hardware trigger.
type gpioLED struct {
	name   string
	pin    outPin
	period time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func newGPIO(name string, pin outPin, period time.Duration) *gpioLED {
	if period <= 0 {
		period = DefaultBlinkPeriod
	}
	return &gpioLED{name: name, pin: pin, period: period}
}

// openGPIO initializes the host drivers and looks the pin up by gpioreg name.
func openGPIO(name, pinName string) (*gpioLED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("led: periph host init failed: %w", err)
	}
	p := gpioreg.ByName(pinName)
	if p == nil {
		return nil, fmt.Errorf("led: GPIO %q not found", pinName)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("led: failed to drive GPIO %q: %w", pinName, err)
	}
	return newGPIO(name, p, DefaultBlinkPeriod), nil
}

func (g *gpioLED) Set(name string, enabled bool, pattern string) error {
	if name != g.name {
		return fmt.Errorf("LED %q not supported on this board", name)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopBlink()
	if enabled && pattern == PatternBlink {
		g.stop = make(chan struct{})
		g.done = make(chan struct{})
		go g.blink(g.stop, g.done)
		return nil
	}
	return g.pin.Out(gpio.Level(enabled))
}

// stopBlink ends a running blink goroutine (must hold lock).
func (g *gpioLED) stopBlink() {
	if g.stop == nil {
		return
	}
	close(g.stop)
	<-g.done
	g.stop, g.done = nil, nil
}

func (g *gpioLED) blink(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(g.period / 2)
	defer ticker.Stop()

	level := gpio.High
	for {
		_ = g.pin.Out(level)
		select {
		case <-stop:
			return
		case <-ticker.C:
			level = !level
		}
	}
}

func (g *gpioLED) Available() []string {
	return []string{g.name}
}

func (g *gpioLED) Patterns() []string {
	return []string{PatternSolid, PatternBlink}
}
