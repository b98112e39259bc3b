package scenario

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/geom"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoadTOML(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "overlay.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if s.Name != "overlay over background" || !s.PartialUpdate {
		t.Errorf("header = %q partial=%v", s.Name, s.PartialUpdate)
	}
	if s.Panel.Width != 320 || s.Panel.UpdateXAlign != 16 {
		t.Errorf("panel = %+v", s.Panel)
	}
	if s.MaxWindows != 7 || len(s.Formats) == 0 {
		t.Errorf("defaults not applied: max_windows=%d formats=%d", s.MaxWindows, len(s.Formats))
	}
	// Keys missing from [tuning] keep their defaults.
	if s.Tuning.HeadroomPercent != 20 || s.Tuning.NarrowRatio != 10 {
		t.Errorf("tuning = %+v", s.Tuning)
	}
	if len(s.Frames) != 5 {
		t.Fatalf("frames = %d, want 5", len(s.Frames))
	}
	ov := s.Frames[1].Windows[1]
	if ov.Dst != geom.R(40, 40, 128, 64) || ov.Blend != "premultiplied" {
		t.Errorf("overlay window = %+v", ov)
	}
	if s.Frames[3].Expect != display.ErrCodeImportFailed {
		t.Errorf("expect = %q", s.Frames[3].Expect)
	}
}

func TestLoadYAML(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "faults.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(s.Units) != 1 || s.Units[0] != 0 {
		t.Errorf("units = %v", s.Units)
	}
	if s.Frames[1].Fault != FaultHardwareError || s.Frames[2].Fault != FaultDropVsync {
		t.Errorf("faults = %q, %q", s.Frames[1].Fault, s.Frames[2].Fault)
	}
	solid := s.Frames[2].Windows[0]
	if solid.State != display.StateSolidColor || solid.Color != 0xff00ff00 {
		t.Errorf("solid window = %+v", solid)
	}
	scaled := s.Frames[4].Windows[0]
	if scaled.Unit == nil || *scaled.Unit != 0 || !s.Frames[4].Reset {
		t.Errorf("scaled frame = %+v reset=%v", scaled, s.Frames[4].Reset)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		data string
	}{
		{"unknown extension", ".json", `{}`},
		{"bad toml", ".toml", "[panel\nwidth ="},
		{"bad yaml", ".yaml", "panel: [1, 2"},
		{"no panel", ".toml", "[[frames]]\nname = \"a\"\n"},
		{"no frames", ".toml", "[panel]\nwidth = 10\nheight = 10\n"},
		{"unknown fault", ".yml", "panel: {width: 10, height: 10}\nframes: [{fault: brownout}]\n"},
		{"unknown code", ".yml", "panel: {width: 10, height: 10}\nframes: [{expect: OOPS}]\n"},
		{"duplicate buffer", ".yml", "panel: {width: 10, height: 10}\nbuffers: [{handle: a}, {handle: a}]\nframes: [{}]\n"},
		{"bad tuning", ".toml", "[panel]\nwidth = 10\nheight = 10\n[tuning]\nmax_depth = 0\n[[frames]]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data), tt.ext); err == nil {
				t.Error("Parse() expected error")
			}
		})
	}

	if _, err := Parse([]byte(`{}`), ".ini"); !errors.Is(err, ErrUnknownExtension) {
		t.Errorf("Parse(.ini) error = %v, want ErrUnknownExtension", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() of missing file expected error")
	}
}

func TestCheck(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "overlay.toml"))
	if err != nil {
		t.Fatal(err)
	}

	reports := Check(context.Background(), s, quietLogger())
	if len(reports) != len(s.Frames) {
		t.Fatalf("reports = %d, want %d", len(reports), len(s.Frames))
	}
	if !Passed(reports) {
		t.Errorf("Check() did not pass: %+v", reports)
	}

	tests := []struct {
		frame    int
		code     string
		full     bool
		rect     geom.Rect
		minDepth int
	}{
		{0, "", true, geom.R(0, 0, 320, 240), 1},
		{1, "", true, geom.R(0, 0, 320, 240), 2},
		{2, display.ErrCodeBlendingNotAllowed, false, geom.Rect{}, 0},
		{3, display.ErrCodeImportFailed, false, geom.Rect{}, 0},
		{4, "", false, geom.R(0, 0, 48, 32), 1},
	}
	for _, tt := range tests {
		r := reports[tt.frame]
		if r.Code != tt.code {
			t.Errorf("frame %d code = %q, want %q", tt.frame, r.Code, tt.code)
			continue
		}
		if tt.code != "" {
			if r.Plan != nil || r.Estimate != nil {
				t.Errorf("frame %d: rejected frame carries a plan", tt.frame)
			}
			continue
		}
		if r.Plan.Full != tt.full || r.Plan.Rect != tt.rect {
			t.Errorf("frame %d plan = full:%v %v, want full:%v %v", tt.frame, r.Plan.Full, r.Plan.Rect, tt.full, tt.rect)
		}
		if r.Estimate.Depth < tt.minDepth {
			t.Errorf("frame %d depth = %d, want >= %d", tt.frame, r.Estimate.Depth, tt.minDepth)
		}
	}
}

func TestCheckFlagsUnexpectedRejection(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "overlay.toml"))
	if err != nil {
		t.Fatal(err)
	}
	s.Frames[2].Expect = ""

	reports := Check(context.Background(), s, quietLogger())
	if reports[2].Pass || Passed(reports) {
		t.Error("rejected frame without expectation should fail")
	}
}

func TestRun(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "faults.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reports, err := Run(ctx, s, RunOptions{
		Period:       time.Millisecond,
		VsyncTimeout: 50 * time.Millisecond,
		AckTimeout:   50 * time.Millisecond,
		Logger:       quietLogger(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(reports) != len(s.Frames) {
		t.Fatalf("reports = %d, want %d", len(reports), len(s.Frames))
	}

	want := []string{
		"",
		display.ErrCodeHardwareError,
		display.ErrCodeVsyncTimeout,
		display.ErrCodePipelineDegraded,
		"",
	}
	for i, code := range want {
		if reports[i].Code != code || !reports[i].Pass {
			t.Errorf("frame %q = code %q pass %v (%s), want %q", reports[i].Frame, reports[i].Code, reports[i].Pass, reports[i].Error, code)
		}
	}

	// Tokens are issued only to accepted frames and stay in order.
	if reports[0].Token != 1 || reports[1].Token != 2 || reports[2].Token != 3 || reports[3].Token != 0 || reports[4].Token != 4 {
		t.Errorf("tokens = %d %d %d %d %d", reports[0].Token, reports[1].Token, reports[2].Token, reports[3].Token, reports[4].Token)
	}
}

func TestRunOverlay(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "overlay.toml"))
	if err != nil {
		t.Fatal(err)
	}

	reports, err := Run(context.Background(), s, RunOptions{Period: time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !Passed(reports) {
		t.Errorf("Run() did not pass: %+v", reports)
	}
}
