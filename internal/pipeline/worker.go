package pipeline

import (
	"errors"
	"time"

	"github.com/smazurov/decon/internal/bandwidth"
	"github.com/smazurov/decon/internal/buffer"
	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/events"
	"github.com/smazurov/decon/internal/geom"
	"github.com/smazurov/decon/internal/hw"
	"github.com/smazurov/decon/internal/units"
)

// run is the commit worker. It owns at most one frame at a time.
func (p *Pipeline) run() {
	defer close(p.done)

	for {
		f, ok := p.queue.Pop()
		if !ok {
			return
		}

		var derr *display.Error
		if err := p.acceptingErr(); errors.As(err, &derr) && derr.Code == display.ErrCodePipelineDegraded {
			p.abort(f, derr)
			continue
		}

		p.mu.Lock()
		p.inFlight = f
		p.mu.Unlock()

		if err := p.commit(f); err != nil {
			p.fail(f, err)
		}

		p.mu.Lock()
		p.inFlight = nil
		p.mu.Unlock()
	}
}

// commit programs f into the shadow bank, triggers the latch and waits for
// the controller to report it on screen.
func (p *Pipeline) commit(f *Frame) error {
	p.setFrameState(f, FrameApplying)

	if err := p.acquireUnits(f); err != nil {
		return err
	}

	p.raiseQoS(f.Estimate)

	if !f.Plan.Rect.Empty() && f.Plan.Rect != p.currentScan() {
		if err := p.transport.SetScanRegion(p.ctx, f.Plan.Rect); err != nil {
			return display.NewError(display.ErrCodeHardwareError, "scan region "+f.Plan.Rect.String()+" not accepted by panel", err)
		}
		p.mu.Lock()
		p.scan = f.Plan.Rect
		p.mu.Unlock()
	}

	if err := p.writeShadow(f.Registers); err != nil {
		return display.NewError(display.ErrCodeHardwareError, "shadow register write failed", err)
	}

	p.drainSignals()
	if err := p.opts.Hardware.ApplyAndTrigger(); err != nil {
		return display.NewError(display.ErrCodeHardwareError, "trigger failed", err)
	}
	f.triggered = true

	p.setFrameState(f, FrameAwaitingVsync)
	if err := p.await(p.vsync, p.opts.VsyncTimeout, display.ErrCodeVsyncTimeout); err != nil {
		return err
	}

	p.setFrameState(f, FrameAwaitingHardwareAck)
	if err := p.await(p.ack, p.opts.AckTimeout, display.ErrCodeAckTimeout); err != nil {
		return err
	}

	p.release(f)
	return nil
}

func (p *Pipeline) acquireUnits(f *Frame) error {
	if p.opts.Units == nil {
		return nil
	}
	for _, id := range f.Units {
		if err := p.opts.Units.Acquire(p.ctx, id, p.opts.ID); err != nil {
			return display.NewError(display.ErrCodeUnitBusy, "compositing unit unavailable", err)
		}
	}
	return nil
}

// raiseQoS requests bandwidth before the new configuration is latched.
// Requests only grow here; lowerQoS trims them after release.
func (p *Pipeline) raiseQoS(est bandwidth.Estimate) {
	p.mu.Lock()
	prev := p.qosEstimate
	p.mu.Unlock()

	if est.Level <= prev.Level && est.InterconnectBps <= prev.InterconnectBps && est.DisplayClockHz <= prev.DisplayClockHz {
		return
	}
	p.requestQoS(est)
}

// lowerQoS settles the request on what the displayed frame needs.
func (p *Pipeline) lowerQoS(est bandwidth.Estimate) {
	p.mu.Lock()
	prev := p.qosEstimate
	p.mu.Unlock()

	if est.SameRequest(prev) {
		return
	}
	p.requestQoS(est)
}

func (p *Pipeline) requestQoS(est bandwidth.Estimate) {
	admitted := true
	if err := p.qos.Request(p.opts.ID, est); err != nil {
		admitted = false
		p.logger.Warn("Bandwidth request rejected",
			"code", display.ErrCodeBandwidthAdmission,
			"level", est.Level,
			"interconnect_bps", est.InterconnectBps,
			"error", err)
	} else {
		p.mu.Lock()
		p.qosEstimate = est
		p.mu.Unlock()
	}

	p.opts.Events.Publish(events.BandwidthRequestEvent{
		Pipeline:        p.opts.ID,
		Level:           est.Level.String(),
		Depth:           est.Depth,
		EffectiveDepth:  est.EffectiveDepth,
		InterconnectBps: est.InterconnectBps,
		DisplayClockHz:  est.DisplayClockHz,
		Admitted:        admitted,
		Timestamp:       time.Now().Format(time.RFC3339),
	})
}

func (p *Pipeline) currentScan() geom.Rect {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scan
}

func (p *Pipeline) writeShadow(regs []hw.WindowRegisters) error {
	for _, r := range regs {
		var err error
		if r.Enabled {
			err = p.opts.Hardware.WriteShadow(r.Index, r)
		} else {
			err = p.opts.Hardware.DisableShadow(r.Index)
		}
		if err != nil && !errors.Is(err, hw.ErrNoWindow) {
			return err
		}
	}
	return nil
}

// drainSignals discards stale notifications from an earlier frame.
func (p *Pipeline) drainSignals() {
	for {
		select {
		case <-p.vsync:
		case <-p.ack:
		case <-p.hwErr:
		default:
			return
		}
	}
}

func (p *Pipeline) await(ch <-chan struct{}, timeout time.Duration, code string) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case err := <-p.hwErr:
		return display.NewError(display.ErrCodeHardwareError, "controller reported an error", err)
	case <-timer.C:
		return display.NewError(code, "timed out after "+timeout.String(), nil)
	case <-p.ctx.Done():
		return display.NewError(display.ErrCodePipelineStopped, "pipeline stopped", p.ctx.Err())
	}
}

// release completes f: the frame it superseded gives back its buffers and
// units, then the token is signaled.
func (p *Pipeline) release(f *Frame) {
	p.mu.Lock()
	prev := p.displayed
	limbo := p.limbo
	p.limbo = nil
	p.displayed = f
	p.baseline = f.Registers
	p.mu.Unlock()

	released := buffer.ReleaseAll(limbo)
	if prev != nil {
		released += buffer.ReleaseAll(prev.Buffers)
	}
	if p.opts.Units != nil {
		p.opts.Units.ReleaseOwned(p.opts.ID, f.unitSet())
	}
	p.lowerQoS(f.Estimate)
	p.calc.Commit(f.Plan)

	p.setFrameState(f, FrameReleased)
	if p.opts.OnRelease != nil {
		p.opts.OnRelease(p.opts.ID, f.Token, "")
	}
	if err := p.fences.Signal(f.Token, false); err != nil {
		p.logger.Error("Failed to signal token", "token", f.Token, "error", err)
	}

	latency := time.Since(f.SubmittedAt)
	p.logger.Debug("Frame released",
		"token", f.Token,
		"latency", latency,
		"released_buffers", released)
	p.opts.Events.Publish(events.FrameReleasedEvent{
		Pipeline:        p.opts.ID,
		Token:           uint64(f.Token),
		LatencySeconds:  latency.Seconds(),
		ReleasedBuffers: released,
		Timestamp:       time.Now().Format(time.RFC3339),
	})
}

// fail handles a commit error. Timeouts leave the hardware in an unknown
// state, so the shadow bank is rolled back and the pipeline degrades.
func (p *Pipeline) fail(f *Frame, err error) {
	var derr *display.Error
	if !errors.As(err, &derr) {
		derr = display.NewError(display.ErrCodeHardwareError, "commit failed", err)
	}

	switch derr.Kind {
	case display.KindHardwareTimeout:
		p.logger.Error("Hardware did not respond, degrading pipeline",
			"token", f.Token,
			"state", f.state,
			"code", derr.Code)
		p.rollback()
		queued := p.degrade(derr)
		p.abort(f, derr)
		for _, q := range queued {
			p.abort(q, display.NewError(display.ErrCodePipelineDegraded, "pipeline degraded", derr))
		}
	default:
		p.logger.Warn("Frame aborted", "token", f.Token, "code", derr.Code, "error", derr)
		// A triggered frame stays armed until the next vsync. Its buffers
		// are about to be given back, so the shadow bank must not point at them.
		if f.triggered {
			p.rollback()
		}
		p.abort(f, derr)
	}
}

// rollback rewrites the last displayed configuration into the shadow bank so
// a late latch shows a known image.
func (p *Pipeline) rollback() {
	p.mu.Lock()
	baseline := p.baseline
	p.mu.Unlock()

	if err := p.writeShadow(baseline); err != nil {
		p.logger.Error("Failed to roll back shadow registers", "error", err)
	}
}

// degrade marks the pipeline degraded and takes the frames queued behind the
// failed one. Both happen under p.mu so a concurrent Reset cannot let a new
// frame into the queue before it is drained.
func (p *Pipeline) degrade(cause *display.Error) []*Frame {
	p.mu.Lock()
	if p.state == StateRunning {
		p.state = StateDegraded
		p.degradedCause = cause
	}
	queued := p.queue.Drain()
	p.mu.Unlock()

	p.opts.Events.Publish(events.PipelineDegradedEvent{
		Pipeline:  p.opts.ID,
		Degraded:  true,
		Code:      cause.Code,
		Message:   cause.Message,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return queued
}

// abort signals f as aborted. Buffers of a frame that was already triggered
// may still be scanned out, so they wait for the next release.
func (p *Pipeline) abort(f *Frame, cause *display.Error) {
	released := 0
	p.mu.Lock()
	if f.triggered {
		p.limbo = append(p.limbo, f.Buffers...)
	} else {
		p.mu.Unlock()
		released = buffer.ReleaseAll(f.Buffers)
		p.mu.Lock()
	}
	var keep map[units.ID]bool
	if p.displayed != nil {
		keep = p.displayed.unitSet()
	}
	p.mu.Unlock()

	p.calc.Abort(f.Plan)
	if p.opts.Units != nil {
		p.opts.Units.ReleaseOwned(p.opts.ID, keep)
	}

	p.setFrameState(f, FrameAborted)
	if p.opts.OnRelease != nil {
		p.opts.OnRelease(p.opts.ID, f.Token, cause.Code)
	}
	if err := p.fences.Signal(f.Token, true); err != nil {
		p.logger.Error("Failed to signal aborted token", "token", f.Token, "error", err)
	}

	p.opts.Events.Publish(events.FrameReleasedEvent{
		Pipeline:        p.opts.ID,
		Token:           uint64(f.Token),
		Aborted:         true,
		Code:            cause.Code,
		LatencySeconds:  time.Since(f.SubmittedAt).Seconds(),
		ReleasedBuffers: released,
		Timestamp:       time.Now().Format(time.RFC3339),
	})
}

func (p *Pipeline) setFrameState(f *Frame, state FrameState) {
	p.mu.Lock()
	old := f.state
	f.state = state
	p.mu.Unlock()
	p.notifyState(f, old, state)
}

func (p *Pipeline) notifyState(f *Frame, old, state FrameState) {
	if p.opts.OnStateChange != nil {
		p.opts.OnStateChange(p.opts.ID, f.Token, old, state)
	}
	p.opts.Events.Publish(events.FrameStateChangedEvent{
		Pipeline:  p.opts.ID,
		Token:     uint64(f.Token),
		From:      string(old),
		To:        string(state),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
