package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

// testOptions mirrors the shape of the daemon options.
type testOptions struct {
	Config string `help:"Config file path"`

	PanelWidth    int           `toml:"panel.width" env:"PANEL_WIDTH"`
	PanelClock    uint64        `toml:"panel.pixel_clock_hz" env:"PANEL_PIXEL_CLOCK_HZ"`
	PartialUpdate bool          `toml:"pipeline.partial_update" env:"PIPELINE_PARTIAL_UPDATE"`
	VsyncTimeout  time.Duration `toml:"pipeline.vsync_timeout" env:"PIPELINE_VSYNC_TIMEOUT"`
	QoSBackend    string        `toml:"qos.backend" env:"QOS_BACKEND"`
	Formats       []string      `toml:"pipeline.formats" env:"PIPELINE_FORMATS"`
	UnitIDs       []int         `toml:"units.ids" env:"UNITS_IDS"`
	Headroom      float64       `toml:"bandwidth.headroom" env:"BANDWIDTH_HEADROOM"`
}

const sampleTOML = `
[panel]
width = 1080
pixel_clock_hz = 148500000

[pipeline]
partial_update = true
vsync_timeout = "250ms"
formats = ["argb8888", "nv12"]

[qos]
backend = "sysfs"

[units]
ids = [1, 2]

[bandwidth]
headroom = 1.15
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeFile(t, "decon.toml", sampleTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	want := testOptions{
		Config:        opts.Config,
		PanelWidth:    1080,
		PanelClock:    148500000,
		PartialUpdate: true,
		VsyncTimeout:  250 * time.Millisecond,
		QoSBackend:    "sysfs",
		Formats:       []string{"argb8888", "nv12"},
		UnitIDs:       []int{1, 2},
		Headroom:      1.15,
	}
	if !reflect.DeepEqual(*opts, want) {
		t.Errorf("LoadConfig() = %+v, want %+v", *opts, want)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DECON_PANEL_WIDTH", "720")
	t.Setenv("DECON_PANEL_PIXEL_CLOCK_HZ", "74250000")
	t.Setenv("DECON_PIPELINE_PARTIAL_UPDATE", "true")
	t.Setenv("DECON_PIPELINE_VSYNC_TIMEOUT", "1s")
	t.Setenv("DECON_PIPELINE_FORMATS", "rgb565, xrgb8888")
	t.Setenv("DECON_UNITS_IDS", "3,4")

	opts := &testOptions{}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if opts.PanelWidth != 720 || opts.PanelClock != 74250000 || !opts.PartialUpdate {
		t.Errorf("scalar fields = %+v", opts)
	}
	if opts.VsyncTimeout != time.Second {
		t.Errorf("VsyncTimeout = %v, want 1s", opts.VsyncTimeout)
	}
	if !reflect.DeepEqual(opts.Formats, []string{"rgb565", "xrgb8888"}) {
		t.Errorf("Formats = %v", opts.Formats)
	}
	if !reflect.DeepEqual(opts.UnitIDs, []int{3, 4}) {
		t.Errorf("UnitIDs = %v", opts.UnitIDs)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	t.Setenv("DECON_QOS_BACKEND", "noop")
	t.Setenv("DECON_PANEL_WIDTH", "640")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Int("panel-width", 0, "")
	if err := cmd.Flags().Set("panel-width", "1440"); err != nil {
		t.Fatal(err)
	}

	opts := &testOptions{
		Config:     writeFile(t, "decon.toml", sampleTOML),
		PanelWidth: 1440,
	}
	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"flag beats env and file", opts.PanelWidth, 1440},
		{"env beats file", opts.QoSBackend, "noop"},
		{"file fills the rest", opts.VsyncTimeout, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		toml  string
		env   map[string]string
		notOK bool
	}{
		{name: "missing file is fine"},
		{name: "invalid toml", toml: "[panel\nwidth =", notOK: true},
		{name: "wrong type", toml: "[panel]\nwidth = \"wide\"\n", notOK: true},
		{name: "bad duration", env: map[string]string{"DECON_PIPELINE_VSYNC_TIMEOUT": "soon"}, notOK: true},
		{name: "bad int", env: map[string]string{"DECON_PANEL_WIDTH": "x"}, notOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			opts := &testOptions{Config: filepath.Join(t.TempDir(), "missing.toml")}
			if tt.toml != "" {
				opts.Config = writeFile(t, "decon.toml", tt.toml)
			}

			err := LoadConfig(opts, nil)
			if tt.notOK && err == nil {
				t.Error("LoadConfig() expected error")
			}
			if !tt.notOK && err != nil {
				t.Errorf("LoadConfig() error = %v", err)
			}
		})
	}

	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Error("LoadConfig() with non-pointer expected error")
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":             "port",
		"PanelWidth":       "panel-width",
		"LoggingLevel":     "logging-level",
		"PartialUpdate":    "partial-update",
		"CORSOrigin":       "cors-origin",
		"LEDBackend":       "led-backend",
		"TransportSPIPort": "transport-spi-port",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"panel": map[string]any{
			"timing": map[string]any{"refresh": int64(60)},
			"width":  int64(1080),
		},
		"root": "value",
	}

	tests := []struct {
		path string
		want any
	}{
		{"root", "value"},
		{"panel.width", int64(1080)},
		{"panel.timing.refresh", int64(60)},
		{"missing", nil},
		{"root.child", nil},
	}
	for _, tt := range tests {
		if got := getNestedValue(data, tt.path); got != tt.want {
			t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeFile(t, "decon.toml", `
[logging]
level = "warn"
format = "json"
pipeline = "debug"
units = "error"
`)

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("level/format = %s/%s", cfg.Level, cfg.Format)
	}
	want := map[string]string{"pipeline": "debug", "units": "error"}
	if !reflect.DeepEqual(cfg.Modules, want) {
		t.Errorf("Modules = %v, want %v", cfg.Modules, want)
	}

	def := LoadLoggingConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if def.Level != "info" || def.Format != "text" || len(def.Modules) != 0 {
		t.Errorf("defaults = %+v", def)
	}
}
