package scenario

import (
	"context"
	"log/slog"

	"github.com/smazurov/decon/internal/bandwidth"
	"github.com/smazurov/decon/internal/buffer"
	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/fence"
	"github.com/smazurov/decon/internal/partial"
)

// Report is the outcome of one scenario frame.
type Report struct {
	Frame    string              `json:"frame"`
	Token    fence.Token         `json:"token,omitempty"`
	Code     string              `json:"code,omitempty"`
	Error    string              `json:"error,omitempty"`
	Expect   string              `json:"expect,omitempty"`
	Pass     bool                `json:"pass"`
	Plan     *partial.Plan       `json:"plan,omitempty"`
	Estimate *bandwidth.Estimate `json:"estimate,omitempty"`
}

// Passed reports whether every frame matched its expectation.
func Passed(reports []Report) bool {
	for _, r := range reports {
		if !r.Pass {
			return false
		}
	}
	return true
}

// Check runs every frame through validation, format resolution, buffer
// import, partial-update planning and bandwidth estimation without touching
// hardware. Only codes those stages can produce are compared against the
// frame expectations.
func Check(ctx context.Context, s *Scenario, logger *slog.Logger) []Report {
	if logger == nil {
		logger = slog.Default()
	}

	alloc := newAllocator(s)
	importer := buffer.NewImporter(alloc)
	caps := s.Capabilities()
	calc := partial.NewCalculator(s.Panel, s.PartialUpdate, logger)
	estimator := bandwidth.NewEstimator(s.Tuning, logger)

	reports := make([]Report, 0, len(s.Frames))
	for _, f := range s.Frames {
		r := Report{Frame: f.Name, Expect: f.Expect}

		plan, est, err := checkFrame(ctx, f, caps, importer, calc, estimator)
		if err != nil {
			r.Code = display.CodeOf(err)
			r.Error = err.Error()
		} else {
			r.Plan = &plan
			r.Estimate = &est
		}
		r.Pass = r.Code == offlineExpectation(f.Expect)
		reports = append(reports, r)

		logger.Debug("Frame checked", "frame", f.Name, "code", r.Code, "pass", r.Pass)
	}
	return reports
}

func checkFrame(
	ctx context.Context,
	f Frame,
	caps display.Capabilities,
	importer *buffer.Importer,
	calc *partial.Calculator,
	estimator *bandwidth.Estimator,
) (partial.Plan, bandwidth.Estimate, error) {
	windows, region, err := display.ValidateRequest(display.Request{Windows: f.Windows}, caps)
	if err != nil {
		return partial.Plan{}, bandwidth.Estimate{}, err
	}
	if err := display.Resolve(windows); err != nil {
		return partial.Plan{}, bandwidth.Estimate{}, err
	}

	for _, w := range windows {
		if w.State != display.StateBuffer {
			continue
		}
		bufs, err := importer.ImportAll(ctx, w.Planes)
		if err != nil {
			e := display.NewError(display.ErrCodeImportFailed, "buffer import failed", err)
			e.Window = w.Index
			return partial.Plan{}, bandwidth.Estimate{}, e
		}
		buffer.ReleaseAll(bufs)
	}

	plan := calc.Plan(windows, region)
	calc.Commit(plan)
	return plan, estimator.Estimate(plan.Windows, caps.Panel), nil
}

// offlineExpectation maps an expected code to what Check can observe.
// Codes raised by the commit worker are invisible offline.
func offlineExpectation(code string) string {
	if display.KindForCode(code) == display.KindValidation || code == display.ErrCodeImportFailed {
		return code
	}
	return ""
}

func newAllocator(s *Scenario) *buffer.SimAllocator {
	alloc := buffer.NewSimAllocator()
	for _, b := range s.Buffers {
		size := b.Size
		if size == 0 {
			size = uint64(s.Panel.Width) * uint64(s.Panel.Height) * 4
		}
		alloc.Register(b.Handle, size)
	}
	return alloc
}
