package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/smazurov/decon/internal/bandwidth"
	"github.com/smazurov/decon/internal/buffer"
	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/events"
	"github.com/smazurov/decon/internal/fence"
	"github.com/smazurov/decon/internal/hw/sim"
	"github.com/smazurov/decon/internal/pipeline"
	"github.com/smazurov/decon/internal/units"
)

// PipelineID is the name of the pipeline a simulation runs.
const PipelineID = "scenario"

var errSimulatedFault = errors.New("simulated FIFO underrun")

// RunOptions tunes a simulation.
type RunOptions struct {
	// Period is the simulated vsync interval. Zero uses the panel refresh rate.
	Period       time.Duration
	VsyncTimeout time.Duration
	AckTimeout   time.Duration
	// Events receives the pipeline events (optional).
	Events *events.Bus
	Logger *slog.Logger
}

// Run plays every frame against a simulated controller, one at a time, and
// waits for each frame's token before submitting the next. It returns an
// error only when the simulation itself misbehaves, such as buffers left
// attached after the pipeline stopped.
func Run(ctx context.Context, s *Scenario, opts RunOptions) ([]Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Period <= 0 {
		opts.Period = time.Second / time.Duration(max(s.Panel.RefreshHz, 1))
	}
	if opts.VsyncTimeout <= 0 {
		opts.VsyncTimeout = pipeline.DefaultVsyncTimeout
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = pipeline.DefaultAckTimeout
	}

	alloc := newAllocator(s)
	ctrl := sim.NewController(sim.Options{
		Name:    PipelineID,
		Windows: s.MaxWindows,
		Period:  opts.Period,
		Logger:  logger,
	})

	var arbiter *units.Arbiter
	if len(s.Units) > 0 {
		arbiter = units.NewArbiter(sim.NewUnitPool(), units.Options{
			IDs:    s.Units,
			Logger: logger,
			OnChange: func(id units.ID, from, to string) {
				opts.Events.Publish(events.UnitOwnershipEvent{
					Unit:      int(id),
					From:      from,
					To:        to,
					Timestamp: time.Now().Format(time.RFC3339),
				})
			},
		})
	}

	var (
		mu    sync.Mutex
		codes = make(map[fence.Token]string)
	)
	p, err := pipeline.New(pipeline.Options{
		ID:            PipelineID,
		Panel:         s.Panel,
		MaxWindows:    s.MaxWindows,
		Formats:       s.Formats,
		PartialUpdate: s.PartialUpdate,
		Hardware:      ctrl,
		Importer:      buffer.NewImporter(alloc),
		Units:         arbiter,
		Estimator:     bandwidth.NewEstimator(s.Tuning, logger),
		Events:        opts.Events,
		VsyncTimeout:  opts.VsyncTimeout,
		AckTimeout:    opts.AckTimeout,
		OnRelease: func(_ string, token fence.Token, code string) {
			mu.Lock()
			codes[token] = code
			mu.Unlock()
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	ctrl.Attach(p)
	ctrl.Start(ctx)
	defer ctrl.Stop()
	if err := p.Start(); err != nil {
		return nil, err
	}

	waitFor := opts.VsyncTimeout + opts.AckTimeout + time.Second
	reports := make([]Report, 0, len(s.Frames))
	for _, f := range s.Frames {
		if ctx.Err() != nil {
			break
		}
		r := Report{Frame: f.Name, Expect: f.Expect}

		if f.Reset {
			ctrl.Disarm()
			if err := p.Reset(); err != nil {
				logger.Warn("Pipeline reset failed", "frame", f.Name, "error", err)
			}
		}
		injectFault(ctrl, f.Fault)

		token, err := p.Submit(ctx, display.Request{Windows: f.Windows})
		if err != nil {
			r.Code = display.CodeOf(err)
			r.Error = err.Error()
		} else {
			r.Token = token
			status, err := p.Wait(ctx, token, waitFor)
			switch {
			case err != nil:
				r.Error = err.Error()
			case status == fence.StatusTimedOut:
				r.Error = "frame was not released in time"
			default:
				mu.Lock()
				r.Code = codes[token]
				mu.Unlock()
				if r.Code != "" {
					r.Error = fmt.Sprintf("frame aborted: %s", r.Code)
				}
			}
		}
		clearFaults(ctrl)

		r.Pass = r.Code == f.Expect && (r.Error == "" || r.Code != "")
		reports = append(reports, r)
		logger.Info("Frame simulated", "frame", f.Name, "token", r.Token, "code", r.Code, "pass", r.Pass)
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), waitFor)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		return reports, fmt.Errorf("failed to stop pipeline: %w", err)
	}
	if n := alloc.Outstanding(); n != 0 {
		return reports, fmt.Errorf("%d buffer references still attached after stop", n)
	}
	return reports, nil
}

func injectFault(ctrl *sim.Controller, fault Fault) {
	switch fault {
	case FaultDropVsync:
		ctrl.DropVsync(math.MaxInt32)
	case FaultDropAck:
		ctrl.DropAck(1)
	case FaultHardwareError:
		ctrl.InjectError(errSimulatedFault)
	}
}

func clearFaults(ctrl *sim.Controller) {
	ctrl.DropVsync(0)
	ctrl.DropAck(0)
	ctrl.InjectError(nil)
}
