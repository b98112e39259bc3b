package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/decon/internal/bandwidth"
	"github.com/smazurov/decon/internal/buffer"
	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/fence"
	"github.com/smazurov/decon/internal/format"
	"github.com/smazurov/decon/internal/geom"
	"github.com/smazurov/decon/internal/hw/sim"
	"github.com/smazurov/decon/internal/transport"
	"github.com/smazurov/decon/internal/units"
)

var testPanel = display.Panel{
	Width:        320,
	Height:       240,
	RefreshHz:    60,
	UpdateXAlign: 16,
	UpdateYAlign: 16,
}

type harness struct {
	p     *Pipeline
	ctrl  *sim.Controller
	alloc *buffer.SimAllocator
}

// newHarness starts a pipeline on a simulated controller ticking every
// millisecond. mutate may adjust the options before the pipeline is created.
func newHarness(t *testing.T, mutate func(*Options, *sim.Options)) *harness {
	t.Helper()

	alloc := buffer.NewSimAllocator()
	for i := range 8 {
		alloc.Register(buffer.Handle(fmt.Sprintf("fb%d", i)), 320*240*4)
	}

	simOpts := sim.Options{Name: "test", Windows: DefaultMaxWindows, Period: time.Millisecond}
	opts := Options{
		ID:           "internal",
		Panel:        testPanel,
		Importer:     buffer.NewImporter(alloc),
		VsyncTimeout: 200 * time.Millisecond,
		AckTimeout:   200 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts, &simOpts)
	}

	ctrl := sim.NewController(simOpts)
	opts.Hardware = ctrl

	p, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctrl.Attach(p)
	ctrl.Start(context.Background())
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Stop(ctx)
		ctrl.Stop()
	})

	return &harness{p: p, ctrl: ctrl, alloc: alloc}
}

func fullscreen(handle string) display.WindowConfig {
	return display.WindowConfig{
		Index:      0,
		State:      display.StateBuffer,
		Dst:        geom.R(0, 0, 320, 240),
		Src:        geom.R(0, 0, 320, 240),
		Format:     format.ARGB8888,
		PlaneAlpha: 255,
		Planes:     []buffer.Handle{buffer.Handle(handle)},
	}
}

func overlay(index int, handle string, dst geom.Rect) display.WindowConfig {
	return display.WindowConfig{
		Index:      index,
		State:      display.StateBuffer,
		Dst:        dst,
		Src:        geom.R(0, 0, dst.Width, dst.Height),
		Format:     format.ARGB8888,
		Blend:      format.BlendPremultiplied,
		PlaneAlpha: 255,
		Planes:     []buffer.Handle{buffer.Handle(handle)},
	}
}

func request(windows ...display.WindowConfig) display.Request {
	return display.Request{Windows: windows}
}

func (h *harness) submitAndWait(t *testing.T, req display.Request) (fence.Token, fence.Status) {
	t.Helper()
	ctx := context.Background()
	token, err := h.p.Submit(ctx, req)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	status, err := h.p.Wait(ctx, token, time.Second)
	if err != nil {
		t.Fatalf("Wait(%d) error = %v", token, err)
	}
	return token, status
}

func TestSubmitReleasesFrame(t *testing.T) {
	h := newHarness(t, nil)

	token, status := h.submitAndWait(t, request(fullscreen("fb0")))
	if token != 1 {
		t.Errorf("first token = %d, want 1", token)
	}
	if status != fence.StatusReleased {
		t.Fatalf("status = %s, want released", status)
	}

	active := h.ctrl.Active()
	if !active[0].Enabled || active[0].Solid {
		t.Errorf("window 0 not latched: %+v", active[0])
	}
	if active[1].Enabled {
		t.Error("window 1 should stay disabled")
	}

	st := h.p.Status()
	if st.Displayed != token || st.LastSignaled != token {
		t.Errorf("status displayed=%d last=%d, want %d", st.Displayed, st.LastSignaled, token)
	}
	if st.State != StateRunning {
		t.Errorf("state = %s, want running", st.State)
	}
}

func TestTokenReleasedBeforeNextShadowWrite(t *testing.T) {
	var mu sync.Mutex
	var log []string
	record := func(s string) {
		mu.Lock()
		log = append(log, s)
		mu.Unlock()
	}

	h := newHarness(t, func(o *Options, s *sim.Options) {
		s.OnShadowWrite = func(win int) { record("write") }
		o.OnStateChange = func(_ string, token fence.Token, _, state FrameState) {
			if state == FrameReleased {
				record(fmt.Sprintf("released %d", token))
			}
		}
	})

	ctx := context.Background()
	var tokens []fence.Token
	for _, fb := range []string{"fb0", "fb1", "fb2"} {
		token, err := h.p.Submit(ctx, request(fullscreen(fb)))
		if err != nil {
			t.Fatalf("Submit(%s) error = %v", fb, err)
		}
		tokens = append(tokens, token)
	}
	for _, token := range tokens {
		if status, err := h.p.Wait(ctx, token, time.Second); err != nil || status != fence.StatusReleased {
			t.Fatalf("Wait(%d) = %s, %v", token, status, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()

	// Every frame writes the whole bank, and the next frame's writes only
	// start after the previous token is released.
	want := DefaultMaxWindows
	writes := 0
	for _, entry := range log {
		if entry == "write" {
			writes++
			continue
		}
		if writes != want {
			t.Fatalf("%s after %d shadow writes, want %d (log %v)", entry, writes, want, log)
		}
		want += DefaultMaxWindows
	}
}

func TestSupersededBuffersReleased(t *testing.T) {
	h := newHarness(t, nil)
	before := h.alloc.Outstanding()

	h.submitAndWait(t, request(fullscreen("fb0"), overlay(1, "fb1", geom.R(0, 0, 64, 64))))
	if got := h.alloc.RefCount("fb0"); got != 1 {
		t.Errorf("fb0 refcount while displayed = %d, want 1", got)
	}

	h.submitAndWait(t, request(fullscreen("fb2")))
	if got := h.alloc.RefCount("fb0"); got != 0 {
		t.Errorf("fb0 refcount after supersede = %d, want 0", got)
	}
	if got := h.alloc.RefCount("fb1"); got != 0 {
		t.Errorf("fb1 refcount after supersede = %d, want 0", got)
	}
	if got := h.alloc.RefCount("fb2"); got != 1 {
		t.Errorf("fb2 refcount while displayed = %d, want 1", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.p.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := h.alloc.Outstanding(); got != before {
		t.Errorf("outstanding after stop = %d, want %d", got, before)
	}
}

func TestSubmitRejectsWithoutSideEffects(t *testing.T) {
	tests := []struct {
		name     string
		req      display.Request
		wantCode string
	}{
		{
			name: "background window blends",
			req: request(display.WindowConfig{
				Index:  0,
				State:  display.StateBuffer,
				Dst:    geom.R(0, 0, 320, 240),
				Src:    geom.R(0, 0, 320, 240),
				Format: format.ARGB8888,
				Blend:  format.BlendPremultiplied,
				Planes: []buffer.Handle{"fb0"},
			}),
			wantCode: display.ErrCodeBlendingNotAllowed,
		},
		{
			name:     "unknown buffer",
			req:      request(fullscreen("fb0"), overlay(1, "missing", geom.R(0, 0, 64, 64))),
			wantCode: display.ErrCodeImportFailed,
		},
		{
			name:     "outside panel",
			req:      request(overlay(1, "fb1", geom.R(300, 0, 64, 64))),
			wantCode: display.ErrCodeInvalidGeometry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			_, err := h.p.Submit(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Submit() expected error")
			}
			if code := display.CodeOf(err); code != tt.wantCode {
				t.Errorf("code = %s, want %s (%v)", code, tt.wantCode, err)
			}
			if got := h.alloc.Outstanding(); got != 0 {
				t.Errorf("outstanding = %d, want 0", got)
			}
			if _, writes := h.ctrl.Stats(); writes != 0 {
				t.Errorf("shadow writes = %d, want 0", writes)
			}
			if issued := h.p.Status().Issued; issued != 0 {
				t.Errorf("issued = %d, want 0", issued)
			}
		})
	}
}

func TestVsyncTimeoutDegradesUntilReset(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *sim.Options) {
		o.VsyncTimeout = 20 * time.Millisecond
	})

	h.submitAndWait(t, request(fullscreen("fb0")))

	h.ctrl.DropVsync(1 << 20)
	_, status := h.submitAndWait(t, request(fullscreen("fb1")))
	if status != fence.StatusAborted {
		t.Fatalf("status = %s, want aborted", status)
	}

	st := h.p.Status()
	if st.State != StateDegraded {
		t.Fatalf("state = %s, want degraded", st.State)
	}
	if st.DegradedCode != display.ErrCodeVsyncTimeout {
		t.Errorf("degraded code = %s", st.DegradedCode)
	}

	// The shadow bank is back to the displayed frame.
	shadow := h.ctrl.Shadow()
	fb0 := h.ctrl.Active()[0].Addresses[0]
	if len(shadow[0].Addresses) != 1 || shadow[0].Addresses[0] != fb0 {
		t.Errorf("shadow window 0 = %+v, want rollback to %#x", shadow[0], fb0)
	}

	_, err := h.p.Submit(context.Background(), request(fullscreen("fb2")))
	if code := display.CodeOf(err); code != display.ErrCodePipelineDegraded {
		t.Fatalf("Submit while degraded code = %q, want %s", code, display.ErrCodePipelineDegraded)
	}
	if got := h.alloc.RefCount("fb2"); got != 0 {
		t.Errorf("fb2 imported while degraded: refcount %d", got)
	}

	h.ctrl.DropVsync(0)
	h.ctrl.Disarm()
	if err := h.p.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	_, status = h.submitAndWait(t, request(fullscreen("fb2")))
	if status != fence.StatusReleased {
		t.Fatalf("status after reset = %s, want released", status)
	}
	// fb1 was triggered before the timeout and is held until a later frame is on screen.
	if got := h.alloc.RefCount("fb1"); got != 0 {
		t.Errorf("fb1 refcount = %d, want 0", got)
	}
	if got := h.alloc.RefCount("fb0"); got != 0 {
		t.Errorf("fb0 refcount = %d, want 0", got)
	}
}

func TestAckTimeoutDegrades(t *testing.T) {
	h := newHarness(t, func(o *Options, _ *sim.Options) {
		o.AckTimeout = 20 * time.Millisecond
	})

	h.ctrl.DropAck(1)
	_, status := h.submitAndWait(t, request(fullscreen("fb0")))
	if status != fence.StatusAborted {
		t.Fatalf("status = %s, want aborted", status)
	}
	if st := h.p.Status(); st.State != StateDegraded || st.DegradedCode != display.ErrCodeAckTimeout {
		t.Errorf("status = %+v, want degraded by %s", st, display.ErrCodeAckTimeout)
	}
}

func TestResetDuringTimeoutKeepsNextFrame(t *testing.T) {
	type result struct {
		token fence.Token
		err   error
	}
	var (
		h     *harness
		once  sync.Once
		after = make(chan result, 1)
	)
	h = newHarness(t, func(o *Options, _ *sim.Options) {
		o.VsyncTimeout = 20 * time.Millisecond
		o.OnRelease = func(_ string, _ fence.Token, code string) {
			if code != display.ErrCodeVsyncTimeout {
				return
			}
			// Reset and resubmit while the failed frame is still being aborted.
			once.Do(func() {
				h.ctrl.DropVsync(0)
				h.ctrl.Disarm()
				if err := h.p.Reset(); err != nil {
					after <- result{err: err}
					return
				}
				token, err := h.p.Submit(context.Background(), request(fullscreen("fb1")))
				after <- result{token, err}
			})
		}
	})

	h.ctrl.DropVsync(1 << 20)
	_, status := h.submitAndWait(t, request(fullscreen("fb0")))
	if status != fence.StatusAborted {
		t.Fatalf("status = %s, want aborted", status)
	}

	var r result
	select {
	case r = <-after:
	case <-time.After(time.Second):
		t.Fatal("timed-out frame was never aborted")
	}
	if r.err != nil {
		t.Fatalf("Reset/Submit during abort error = %v", r.err)
	}

	status, err := h.p.Wait(context.Background(), r.token, time.Second)
	if err != nil {
		t.Fatalf("Wait(%d) error = %v", r.token, err)
	}
	if status != fence.StatusReleased {
		t.Errorf("frame submitted after reset = %s, want released", status)
	}
	if st := h.p.Status(); st.State != StateRunning {
		t.Errorf("state = %s, want running", st.State)
	}
}

func TestHardwareErrorAbortsFrameOnly(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.InjectError(errors.New("fifo underrun"))
	_, status := h.submitAndWait(t, request(fullscreen("fb0")))
	if status != fence.StatusAborted {
		t.Fatalf("status = %s, want aborted", status)
	}
	if st := h.p.Status(); st.State != StateRunning {
		t.Fatalf("state = %s, want running", st.State)
	}

	_, status = h.submitAndWait(t, request(fullscreen("fb1")))
	if status != fence.StatusReleased {
		t.Fatalf("status = %s, want released", status)
	}
	if got := h.alloc.RefCount("fb0"); got != 0 {
		t.Errorf("aborted frame buffer refcount = %d, want 0", got)
	}
}

func TestHardwareErrorRollsBackShadow(t *testing.T) {
	h := newHarness(t, nil)

	h.submitAndWait(t, request(fullscreen("fb0")))
	fb0 := h.ctrl.Active()[0].Addresses

	h.ctrl.InjectError(errors.New("fifo underrun"))
	_, status := h.submitAndWait(t, request(fullscreen("fb1")))
	if status != fence.StatusAborted {
		t.Fatalf("status = %s, want aborted", status)
	}

	if h.ctrl.Armed() {
		t.Error("controller still armed after hardware error")
	}
	shadow := h.ctrl.Shadow()
	if !shadow[0].Enabled || len(shadow[0].Addresses) != 1 || shadow[0].Addresses[0] != fb0[0] {
		t.Errorf("shadow window 0 = %+v, want rollback to %#x", shadow[0], fb0[0])
	}
}

func TestOnReleaseReportsOutcome(t *testing.T) {
	type outcome struct {
		token fence.Token
		code  string
	}
	var (
		mu  sync.Mutex
		got []outcome
	)
	h := newHarness(t, func(o *Options, _ *sim.Options) {
		o.OnRelease = func(id string, token fence.Token, code string) {
			if id != "internal" {
				t.Errorf("OnRelease id = %q", id)
			}
			mu.Lock()
			got = append(got, outcome{token, code})
			mu.Unlock()
		}
	})

	h.ctrl.InjectError(errors.New("fifo underrun"))
	h.submitAndWait(t, request(fullscreen("fb0")))
	h.submitAndWait(t, request(fullscreen("fb1")))

	// Wait returning implies the callback already ran.
	mu.Lock()
	defer mu.Unlock()
	want := []outcome{{1, display.ErrCodeHardwareError}, {2, ""}}
	if len(got) != len(want) {
		t.Fatalf("OnRelease calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestUnitBusyAbortsFrame(t *testing.T) {
	pool := sim.NewUnitPool()
	arbiter := units.NewArbiter(pool, units.Options{
		IDs:          []units.ID{1, 2},
		DrainTimeout: 10 * time.Millisecond,
	})
	if err := arbiter.Acquire(context.Background(), 1, "external"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	pool.SetBusy(1, true)

	h := newHarness(t, func(o *Options, _ *sim.Options) {
		o.Units = arbiter
	})

	unit := units.ID(1)
	scaled := overlay(1, "fb1", geom.R(0, 0, 128, 128))
	scaled.Src = geom.R(0, 0, 64, 64)
	scaled.Unit = &unit

	_, status := h.submitAndWait(t, request(fullscreen("fb0"), scaled))
	if status != fence.StatusAborted {
		t.Fatalf("status = %s, want aborted", status)
	}
	if owner := arbiter.Owner(1); owner != "external" {
		t.Errorf("unit 1 owner = %q, want external", owner)
	}
	if _, writes := h.ctrl.Stats(); writes != 0 {
		t.Errorf("shadow writes = %d, want 0", writes)
	}
	if got := h.alloc.Outstanding(); got != 0 {
		t.Errorf("outstanding = %d, want 0", got)
	}

	pool.SetBusy(1, false)
	_, status = h.submitAndWait(t, request(fullscreen("fb2"), scaled))
	if status != fence.StatusReleased {
		t.Fatalf("status after drain = %s, want released", status)
	}
	if owner := arbiter.Owner(1); owner != "internal" {
		t.Errorf("unit 1 owner = %q, want internal", owner)
	}
	if route := pool.RoutedTo(1); route != "internal" {
		t.Errorf("unit 1 routed to %q, want internal", route)
	}

	// A frame without the unit gives it back.
	h.submitAndWait(t, request(fullscreen("fb3")))
	if owner := arbiter.Owner(1); owner != "" {
		t.Errorf("unit 1 owner after release = %q, want none", owner)
	}
}

func TestPartialUpdateProgramsScanRegion(t *testing.T) {
	scan := transport.NewNoop()
	h := newHarness(t, func(o *Options, _ *sim.Options) {
		o.PartialUpdate = true
		o.Transport = scan
	})

	windows := []display.WindowConfig{
		fullscreen("fb0"),
		overlay(1, "fb1", geom.R(256, 192, 64, 48)),
	}
	h.submitAndWait(t, request(windows...))
	if _, calls := scan.Region(); calls != 0 {
		t.Errorf("full frame programmed the scan region %d times", calls)
	}

	region := display.WindowConfig{State: display.StatePartialUpdateRegion, Dst: geom.R(4, 4, 40, 20)}
	h.submitAndWait(t, request(append(windows, region)...))

	got, calls := scan.Region()
	if calls != 1 || got != geom.R(0, 0, 48, 32) {
		t.Errorf("scan region = %v after %d calls, want [0,0 48x32] once", got, calls)
	}
	active := h.ctrl.Active()
	if active[0].Dst != geom.R(0, 0, 48, 32) {
		t.Errorf("window 0 dst = %v, want clipped to region", active[0].Dst)
	}
	if active[1].Enabled {
		t.Error("window outside the region should be disabled")
	}
	if st := h.p.Status(); st.PartialState != "active_region" || st.ScanRegion != geom.R(0, 0, 48, 32) {
		t.Errorf("status partial=%s scan=%v", st.PartialState, st.ScanRegion)
	}

	// The overlay stays imported even though it was not scanned out.
	if got := h.alloc.RefCount("fb1"); got != 1 {
		t.Errorf("fb1 refcount = %d, want 1", got)
	}

	h.submitAndWait(t, request(windows...))
	got, calls = scan.Region()
	if calls != 2 || got != testPanel.Bounds() {
		t.Errorf("scan region = %v after %d calls, want full panel", got, calls)
	}
}

func TestStopAbortsQueuedFrames(t *testing.T) {
	alloc := buffer.NewSimAllocator()
	alloc.Register("fb0", 1024)
	alloc.Register("fb1", 1024)

	// No ticker: the first frame never latches.
	ctrl := sim.NewController(sim.Options{Windows: DefaultMaxWindows})
	p, err := New(Options{
		ID:           "internal",
		Panel:        testPanel,
		Hardware:     ctrl,
		Importer:     buffer.NewImporter(alloc),
		VsyncTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctrl.Attach(p)
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx := context.Background()
	first, err := p.Submit(ctx, request(fullscreen("fb0")))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := p.Submit(ctx, request(fullscreen("fb1")))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := p.Stop(stopCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop() error = %v, want deadline exceeded", err)
	}

	for _, token := range []fence.Token{first, second} {
		status, err := p.FenceStatus(token)
		if err != nil || status != fence.StatusAborted {
			t.Errorf("token %d = %s, %v; want aborted", token, status, err)
		}
	}
	if got := alloc.Outstanding(); got != 0 {
		t.Errorf("outstanding after stop = %d, want 0", got)
	}

	_, err = p.Submit(ctx, request(fullscreen("fb0")))
	if code := display.CodeOf(err); code != display.ErrCodePipelineStopped {
		t.Errorf("Submit after stop code = %q, want %s", code, display.ErrCodePipelineStopped)
	}
}

func TestStopRollsBackTriggeredFrame(t *testing.T) {
	alloc := buffer.NewSimAllocator()
	alloc.Register("fb0", 1024)

	ctrl := sim.NewController(sim.Options{Windows: DefaultMaxWindows})
	p, err := New(Options{
		ID:           "internal",
		Panel:        testPanel,
		Hardware:     ctrl,
		Importer:     buffer.NewImporter(alloc),
		VsyncTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctrl.Attach(p)
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	token, err := p.Submit(context.Background(), request(fullscreen("fb0")))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for !ctrl.Armed() {
		if time.Now().After(deadline) {
			t.Fatal("frame was never triggered")
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop() error = %v, want deadline exceeded", err)
	}
	if status, _ := p.FenceStatus(token); status != fence.StatusAborted {
		t.Errorf("token %d = %s, want aborted", token, status)
	}
	if got := alloc.RefCount("fb0"); got != 0 {
		t.Fatalf("fb0 refcount = %d, want 0", got)
	}

	// Nothing was ever displayed, so the shadow bank is back to all windows off.
	for i, r := range ctrl.Shadow() {
		if r.Enabled || len(r.Addresses) != 0 {
			t.Errorf("shadow window %d = %+v, want disabled", i, r)
		}
	}

	// A late vsync must not put the released buffer on screen.
	ctrl.Tick()
	if active := ctrl.Active(); active[0].Enabled {
		t.Errorf("active window 0 = %+v after teardown, want disabled", active[0])
	}
}

func TestSubmitHonorsContext(t *testing.T) {
	alloc := buffer.NewSimAllocator()
	for _, h := range []buffer.Handle{"fb0", "fb1", "fb2"} {
		alloc.Register(h, 1024)
	}
	// Not started: the queue fills after one frame.
	p, err := New(Options{
		ID:       "internal",
		Panel:    testPanel,
		Hardware: sim.NewController(sim.Options{}),
		Importer: buffer.NewImporter(alloc),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	first, err := p.Submit(ctx, request(fullscreen("fb0")))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := p.Submit(short, request(fullscreen("fb1"))); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit() error = %v, want deadline exceeded", err)
	}
	if got := alloc.RefCount("fb1"); got != 0 {
		t.Errorf("fb1 refcount = %d, want 0", got)
	}

	status, err := p.Wait(ctx, first, 10*time.Millisecond)
	if err != nil || status != fence.StatusTimedOut {
		t.Errorf("Wait() = %s, %v; want timed_out", status, err)
	}

	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := alloc.Outstanding(); got != 0 {
		t.Errorf("outstanding after stop = %d, want 0", got)
	}
}

func TestCapabilities(t *testing.T) {
	unitIDs := []units.ID{1, 2}
	arbiter := units.NewArbiter(sim.NewUnitPool(), units.Options{IDs: unitIDs})
	p, err := New(Options{
		ID:       "external",
		Panel:    testPanel,
		Formats:  []format.Pixel{format.ARGB8888, format.NV12},
		Hardware: sim.NewController(sim.Options{}),
		Importer: buffer.NewImporter(buffer.NewSimAllocator()),
		Units:    arbiter,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	caps := p.Capabilities()
	if caps.MaxWindows != DefaultMaxWindows {
		t.Errorf("MaxWindows = %d", caps.MaxWindows)
	}
	if caps.Panel.Width != 320 || caps.Panel.Height != 240 {
		t.Errorf("panel = %dx%d", caps.Panel.Width, caps.Panel.Height)
	}
	if len(caps.Formats) != 2 || len(caps.Units) != 2 {
		t.Errorf("formats = %v units = %v", caps.Formats, caps.Units)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing id", Options{Panel: testPanel, Hardware: sim.NewController(sim.Options{}), Importer: buffer.NewImporter(nil)}},
		{"missing hardware", Options{ID: "x", Panel: testPanel, Importer: buffer.NewImporter(nil)}},
		{"missing importer", Options{ID: "x", Panel: testPanel, Hardware: sim.NewController(sim.Options{})}},
		{"empty panel", Options{ID: "x", Hardware: sim.NewController(sim.Options{}), Importer: buffer.NewImporter(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

type countingQoS struct {
	mu       sync.Mutex
	requests []bandwidth.Estimate
}

func (q *countingQoS) Request(_ string, est bandwidth.Estimate) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, est)
	return nil
}

func (q *countingQoS) Clear(string) error { return nil }

func (q *countingQoS) Name() string { return "counting" }

func (q *countingQoS) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

func TestQoSRequestedOnlyOnChange(t *testing.T) {
	q := &countingQoS{}
	h := newHarness(t, func(o *Options, _ *sim.Options) {
		o.QoS = q
	})

	h.submitAndWait(t, request(fullscreen("fb0")))
	if got := q.count(); got != 1 {
		t.Fatalf("requests after first frame = %d, want 1", got)
	}

	// Same geometry on new buffers puts the same demand on the interconnect.
	h.submitAndWait(t, request(fullscreen("fb1")))
	h.submitAndWait(t, request(fullscreen("fb2")))
	if got := q.count(); got != 1 {
		t.Errorf("requests after identical frames = %d, want 1", got)
	}

	h.submitAndWait(t, request(fullscreen("fb3"), overlay(1, "fb4", geom.R(0, 0, 160, 120))))
	if got := q.count(); got < 2 {
		t.Errorf("requests after adding an overlay = %d, want more than 1", got)
	}
}
