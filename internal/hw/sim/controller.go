// Package sim is a software display controller. It keeps a shadow and an
// active register bank per window, latches the shadow bank on a vsync tick and
// can be told to lose interrupts or raise errors.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/decon/internal/hw"
	"github.com/smazurov/decon/internal/units"
)

// Options configures a Controller.
type Options struct {
	Name    string
	Windows int
	// Period is the vsync interval. Zero disables the ticker and frames are
	// latched only through Tick.
	Period time.Duration
	// OnShadowWrite is called after every shadow register write (optional).
	OnShadowWrite func(win int)
	Logger        *slog.Logger
}

// Controller simulates one display controller.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	sink    hw.Sink
	shadow  []hw.WindowRegisters
	active  []hw.WindowRegisters
	armed   bool
	latches uint64
	writes  uint64

	dropVsync int
	dropAck   int
	injectErr error

	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a controller with every window disabled.
func NewController(opts Options) *Controller {
	if opts.Windows <= 0 {
		opts.Windows = 7
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		opts:   opts,
		logger: logger.With("controller", opts.Name),
		shadow: make([]hw.WindowRegisters, opts.Windows),
		active: make([]hw.WindowRegisters, opts.Windows),
	}
	for i := range c.shadow {
		c.shadow[i] = hw.WindowRegisters{Index: i, Unit: hw.NoUnit}
		c.active[i] = c.shadow[i]
	}
	return c
}

// Attach sets the receiver of vsync, ack and error interrupts.
func (c *Controller) Attach(sink hw.Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// Start runs the vsync ticker until ctx is done or Stop is called.
func (c *Controller) Start(ctx context.Context) {
	if c.opts.Period <= 0 {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.opts.Period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Tick()
			}
		}
	}()
	c.logger.Debug("Vsync ticker started", "period", c.opts.Period)
}

// Stop halts the ticker.
func (c *Controller) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
}

// WriteShadow implements hw.Hardware.
func (c *Controller) WriteShadow(win int, regs hw.WindowRegisters) error {
	c.mu.Lock()
	if win < 0 || win >= len(c.shadow) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", hw.ErrNoWindow, win)
	}
	regs.Index = win
	regs.Addresses = append([]uint64(nil), regs.Addresses...)
	c.shadow[win] = regs
	c.writes++
	hook := c.opts.OnShadowWrite
	c.mu.Unlock()

	if hook != nil {
		hook(win)
	}
	return nil
}

// DisableShadow implements hw.Hardware.
func (c *Controller) DisableShadow(win int) error {
	return c.WriteShadow(win, hw.WindowRegisters{Index: win, Unit: hw.NoUnit})
}

// ApplyAndTrigger implements hw.Hardware.
func (c *Controller) ApplyAndTrigger() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = true
	return nil
}

// Tick simulates one vsync. An armed shadow bank is latched into the active
// bank, followed by the vsync and update-applied interrupts.
func (c *Controller) Tick() {
	c.mu.Lock()
	if !c.armed {
		c.mu.Unlock()
		return
	}
	sink := c.sink

	if c.injectErr != nil {
		err := c.injectErr
		c.injectErr = nil
		c.armed = false
		c.mu.Unlock()
		c.logger.Debug("Injecting hardware error", "error", err)
		if sink != nil {
			sink.OnHardwareError(err)
		}
		return
	}

	if c.dropVsync > 0 {
		c.dropVsync--
		c.mu.Unlock()
		return
	}

	copy(c.active, c.shadow)
	c.armed = false
	c.latches++
	sendAck := c.dropAck == 0
	if !sendAck {
		c.dropAck--
	}
	c.mu.Unlock()

	if sink == nil {
		return
	}
	sink.OnVsync()
	if sendAck {
		sink.OnHardwareAck()
	}
}

// DropVsync makes the next n armed vsyncs disappear.
func (c *Controller) DropVsync(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropVsync = n
}

// DropAck suppresses the update-applied interrupt of the next n latches.
func (c *Controller) DropAck(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropAck = n
}

// InjectError reports err instead of latching the next armed frame.
func (c *Controller) InjectError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.injectErr = err
}

// Disarm cancels a pending trigger.
func (c *Controller) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = false
}

// Armed reports whether a trigger is waiting for vsync.
func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Shadow returns a copy of the shadow bank.
func (c *Controller) Shadow() []hw.WindowRegisters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneBank(c.shadow)
}

// Active returns a copy of the bank being scanned out.
func (c *Controller) Active() []hw.WindowRegisters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneBank(c.active)
}

// Stats returns the number of latched frames and shadow writes.
func (c *Controller) Stats() (latches, writes uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latches, c.writes
}

func cloneBank(bank []hw.WindowRegisters) []hw.WindowRegisters {
	out := make([]hw.WindowRegisters, len(bank))
	for i, r := range bank {
		r.Addresses = append([]uint64(nil), r.Addresses...)
		out[i] = r
	}
	return out
}

// UnitPool simulates the idle and routing registers of the compositing units.
type UnitPool struct {
	mu     sync.Mutex
	busy   map[units.ID]bool
	routes map[units.ID]string
}

// NewUnitPool creates a pool where every unit is idle.
func NewUnitPool() *UnitPool {
	return &UnitPool{
		busy:   make(map[units.ID]bool),
		routes: make(map[units.ID]string),
	}
}

// Idle implements units.Hardware.
func (p *UnitPool) Idle(id units.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.busy[id]
}

// Route implements units.Hardware.
func (p *UnitPool) Route(id units.ID, owner string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[id] = owner
	return nil
}

// SetBusy marks a unit as processing.
func (p *UnitPool) SetBusy(id units.ID, busy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy[id] = busy
}

// RoutedTo returns the pipeline the unit output is routed to.
func (p *UnitPool) RoutedTo(id units.ID) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.routes[id]
}
