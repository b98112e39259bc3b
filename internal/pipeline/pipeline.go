package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/decon/internal/bandwidth"
	"github.com/smazurov/decon/internal/buffer"
	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/events"
	"github.com/smazurov/decon/internal/fence"
	"github.com/smazurov/decon/internal/format"
	"github.com/smazurov/decon/internal/geom"
	"github.com/smazurov/decon/internal/hw"
	"github.com/smazurov/decon/internal/partial"
	"github.com/smazurov/decon/internal/qos"
	"github.com/smazurov/decon/internal/transport"
	"github.com/smazurov/decon/internal/units"
)

// Pipeline owns one display controller: it validates producer requests,
// queues them and commits them to hardware one frame at a time.
type Pipeline struct {
	opts      Options
	caps      display.Capabilities
	logger    *slog.Logger
	queue     *Queue
	fences    *fence.Tracker
	calc      *partial.Calculator
	estimator *bandwidth.Estimator
	qos       qos.Requester
	transport transport.ScanRegionSetter

	// submitSem serializes token issue with enqueue.
	submitSem chan struct{}

	vsync chan struct{}
	ack   chan struct{}
	hwErr chan error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu            sync.Mutex
	state         State
	inFlight      *Frame
	displayed     *Frame
	limbo         []*buffer.Buffer
	baseline      []hw.WindowRegisters
	scan          geom.Rect
	qosEstimate   bandwidth.Estimate
	degradedCause *display.Error
}

// New creates a pipeline. Start must be called before frames are committed.
func New(opts Options) (*Pipeline, error) {
	if opts.ID == "" {
		return nil, errors.New("pipeline ID is required")
	}
	if opts.Hardware == nil {
		return nil, errors.New("pipeline hardware is required")
	}
	if opts.Importer == nil {
		return nil, errors.New("pipeline buffer importer is required")
	}
	if opts.Panel.Width <= 0 || opts.Panel.Height <= 0 {
		return nil, fmt.Errorf("invalid panel size %dx%d", opts.Panel.Width, opts.Panel.Height)
	}
	if opts.MaxWindows <= 0 {
		opts.MaxWindows = DefaultMaxWindows
	}
	if opts.VsyncTimeout <= 0 {
		opts.VsyncTimeout = DefaultVsyncTimeout
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("pipeline", opts.ID)

	estimator := opts.Estimator
	if estimator == nil {
		estimator = bandwidth.NewEstimator(bandwidth.DefaultTuning(), logger)
	}
	requester := opts.QoS
	if requester == nil {
		requester = qos.New(qos.BackendNoop, logger)
	}
	scan := opts.Transport
	if scan == nil {
		scan = transport.NewNoop()
	}

	formats := opts.Formats
	if len(formats) == 0 {
		formats = format.All()
	}
	var unitIDs []units.ID
	if opts.Units != nil {
		unitIDs = opts.Units.IDs()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pipeline{
		opts: opts,
		caps: display.Capabilities{
			Panel:            opts.Panel,
			MaxWindows:       opts.MaxWindows,
			Formats:          formats,
			Units:            unitIDs,
			PartialUpdate:    opts.PartialUpdate,
			ProtectedContent: opts.ProtectedContent,
		},
		logger:    logger,
		queue:     NewQueue(1),
		fences:    fence.NewTracker(0),
		calc:      partial.NewCalculator(opts.Panel, opts.PartialUpdate, logger),
		estimator: estimator,
		qos:       requester,
		transport: scan,
		submitSem: make(chan struct{}, 1),
		vsync:     make(chan struct{}, 1),
		ack:       make(chan struct{}, 1),
		hwErr:     make(chan error, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateCreated,
		baseline:  disabledRegisters(opts.MaxWindows),
		scan:      opts.Panel.Bounds(),
	}, nil
}

// ID returns the pipeline name.
func (p *Pipeline) ID() string {
	return p.opts.ID
}

// Capabilities reports what producers may submit.
func (p *Pipeline) Capabilities() display.Capabilities {
	return p.caps
}

// Estimator returns the bandwidth estimator so tuning can be swapped at runtime.
func (p *Pipeline) Estimator() *bandwidth.Estimator {
	return p.estimator
}

// Start launches the commit worker.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateCreated {
		return fmt.Errorf("pipeline %s already started", p.opts.ID)
	}
	p.state = StateRunning

	go p.run()
	p.logger.Info("Pipeline started",
		"panel", fmt.Sprintf("%dx%d@%d", p.opts.Panel.Width, p.opts.Panel.Height, p.opts.Panel.RefreshHz),
		"windows", p.opts.MaxWindows,
		"partial_update", p.opts.PartialUpdate,
		"qos", p.qos.Name(),
		"transport", p.transport.Name())
	return nil
}

// Submit validates req, imports its buffers and queues it for commit. It
// blocks while another frame is already waiting behind the one being applied.
// The returned token is signaled once the frame is on screen. Its own buffers
// are still being scanned out at that point; they may be reused only after the
// next frame's token is signaled.
func (p *Pipeline) Submit(ctx context.Context, req display.Request) (fence.Token, error) {
	if err := p.acceptingErr(); err != nil {
		return 0, err
	}

	windows, region, err := display.ValidateRequest(req, p.caps)
	if err != nil {
		return 0, err
	}
	if err := display.Resolve(windows); err != nil {
		return 0, err
	}

	bufs, err := p.importAll(ctx, windows)
	if err != nil {
		return 0, err
	}

	select {
	case p.submitSem <- struct{}{}:
	case <-ctx.Done():
		buffer.ReleaseAll(bufs)
		return 0, ctx.Err()
	}
	defer func() { <-p.submitSem }()

	if err := p.acceptingErr(); err != nil {
		buffer.ReleaseAll(bufs)
		return 0, err
	}

	plan := p.calc.Plan(windows, region)
	f := &Frame{
		Windows:     windows,
		Plan:        plan,
		Registers:   deriveRegisters(plan.Windows),
		Estimate:    p.estimator.Estimate(plan.Windows, p.opts.Panel),
		Buffers:     bufs,
		Units:       frameUnits(windows),
		SubmittedAt: time.Now(),
		state:       FrameQueued,
	}
	f.Token = p.fences.Issue()

	if err := p.queue.Push(ctx, f); err != nil {
		p.calc.Abort(plan)
		buffer.ReleaseAll(bufs)
		if abandonErr := p.fences.Abandon(f.Token); abandonErr != nil {
			p.logger.Warn("Failed to abandon token", "token", f.Token, "error", abandonErr)
		}
		if errors.Is(err, ErrQueueClosed) {
			return 0, display.NewError(display.ErrCodePipelineStopped, "pipeline is stopping", err)
		}
		return 0, err
	}

	p.logger.Debug("Frame queued",
		"token", f.Token,
		"full", plan.Full,
		"region", plan.Rect.String(),
		"depth", f.Estimate.EffectiveDepth,
		"level", f.Estimate.Level)
	p.notifyState(f, "", FrameQueued)
	return f.Token, nil
}

func (p *Pipeline) acceptingErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateStopped:
		return display.NewError(display.ErrCodePipelineStopped, "pipeline is stopped", nil)
	case StateDegraded:
		return display.NewError(display.ErrCodePipelineDegraded, "pipeline is degraded, reset required", p.degradedCause)
	}
	return nil
}

// importAll attaches every plane of every buffer window. Nothing stays
// attached when any import fails.
func (p *Pipeline) importAll(ctx context.Context, windows []display.WindowConfig) ([]*buffer.Buffer, error) {
	var all []*buffer.Buffer
	for i := range windows {
		w := &windows[i]
		if w.State != display.StateBuffer {
			continue
		}
		bufs, err := p.opts.Importer.ImportAll(ctx, w.Planes)
		if err != nil {
			buffer.ReleaseAll(all)
			e := display.NewError(display.ErrCodeImportFailed, fmt.Sprintf("window %d: buffer import failed", w.Index), err)
			e.Window = w.Index
			return nil, e
		}
		w.Buffers = bufs
		all = append(all, bufs...)
	}
	return all, nil
}

func frameUnits(windows []display.WindowConfig) []units.ID {
	var ids []units.ID
	for _, w := range windows {
		if w.Active() && w.Unit != nil {
			ids = append(ids, *w.Unit)
		}
	}
	return ids
}

// Wait blocks until token is released or aborted, timeout elapses or ctx is done.
func (p *Pipeline) Wait(ctx context.Context, token fence.Token, timeout time.Duration) (fence.Status, error) {
	return p.fences.Wait(ctx, token, timeout)
}

// FenceStatus returns the state of token without blocking.
func (p *Pipeline) FenceStatus(token fence.Token) (fence.Status, error) {
	return p.fences.Status(token)
}

// OnVsync implements hw.Sink.
func (p *Pipeline) OnVsync() {
	select {
	case p.vsync <- struct{}{}:
	default:
	}
}

// OnHardwareAck implements hw.Sink.
func (p *Pipeline) OnHardwareAck() {
	select {
	case p.ack <- struct{}{}:
	default:
	}
}

// OnHardwareError implements hw.Sink.
func (p *Pipeline) OnHardwareError(err error) {
	select {
	case p.hwErr <- err:
	default:
		p.logger.Warn("Dropping hardware error, one already pending", "error", err)
	}
}

// Reset leaves the degraded state so frames are accepted again. The next
// frame is committed as a full frame.
func (p *Pipeline) Reset() error {
	p.mu.Lock()
	if p.state != StateDegraded {
		state := p.state
		p.mu.Unlock()
		if state == StateStopped {
			return display.NewError(display.ErrCodePipelineStopped, "pipeline is stopped", nil)
		}
		return nil
	}
	p.state = StateRunning
	p.degradedCause = nil
	p.mu.Unlock()

	p.calc.Reset()
	p.logger.Info("Pipeline reset")
	p.opts.Events.Publish(events.PipelineDegradedEvent{
		Pipeline:  p.opts.ID,
		Degraded:  false,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return nil
}

// Stop tears the pipeline down. The in-flight frame completes unless ctx is
// done first, queued frames are aborted and every held buffer and unit is
// released.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return nil
	}
	started := p.state != StateCreated
	p.state = StateStopped
	p.mu.Unlock()

	p.queue.Close()

	// Wait for any Submit still inside the critical section.
	p.submitSem <- struct{}{}
	<-p.submitSem

	var err error
	if started {
		select {
		case <-p.done:
		case <-ctx.Done():
			err = ctx.Err()
			p.cancel()
			<-p.done
		}
	}
	p.cancel()

	stopped := display.NewError(display.ErrCodePipelineStopped, "pipeline stopped", nil)
	for _, f := range p.queue.Drain() {
		p.abort(f, stopped)
	}

	// The worker has exited, and any triggered frame it aborted was rolled
	// back out of the shadow bank, so limbo is no longer referenced.
	p.mu.Lock()
	released := 0
	if p.displayed != nil {
		released += buffer.ReleaseAll(p.displayed.Buffers)
		p.displayed = nil
	}
	released += buffer.ReleaseAll(p.limbo)
	p.limbo = nil
	p.mu.Unlock()

	if p.opts.Units != nil {
		p.opts.Units.ReleaseOwned(p.opts.ID, nil)
	}
	if qosErr := p.qos.Clear(p.opts.ID); qosErr != nil {
		p.logger.Warn("Failed to clear QoS request", "error", qosErr)
	}

	p.logger.Info("Pipeline stopped", "released_buffers", released)
	return err
}

// Status returns a snapshot of the pipeline.
func (p *Pipeline) Status() Status {
	partialState, _ := p.calc.State()

	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		ID:           p.opts.ID,
		State:        p.state,
		Issued:       p.fences.Issued(),
		LastSignaled: p.fences.Last(),
		QueueLength:  p.queue.Len(),
		PartialState: partialState.String(),
		ScanRegion:   p.scan,
		QoSLevel:     p.qosEstimate.Level,
	}
	if p.inFlight != nil {
		s.InFlight = p.inFlight.state
		s.InFlightToken = p.inFlight.Token
	}
	if p.displayed != nil {
		s.Displayed = p.displayed.Token
	}
	if p.degradedCause != nil {
		s.DegradedCode = p.degradedCause.Code
		s.DegradedError = p.degradedCause.Message
	}
	return s
}

var _ hw.Sink = (*Pipeline)(nil)
