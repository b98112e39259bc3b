package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/decon/cmd"
	"github.com/smazurov/decon/internal/api"
	"github.com/smazurov/decon/internal/bandwidth"
	"github.com/smazurov/decon/internal/buffer"
	"github.com/smazurov/decon/internal/config"
	"github.com/smazurov/decon/internal/display"
	"github.com/smazurov/decon/internal/events"
	"github.com/smazurov/decon/internal/hw/sim"
	"github.com/smazurov/decon/internal/led"
	"github.com/smazurov/decon/internal/logging"
	"github.com/smazurov/decon/internal/metrics/collectors"
	"github.com/smazurov/decon/internal/metrics/exporters"
	"github.com/smazurov/decon/internal/pipeline"
	"github.com/smazurov/decon/internal/qos"
	"github.com/smazurov/decon/internal/systemd"
	"github.com/smazurov/decon/internal/transport"
	"github.com/smazurov/decon/internal/units"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port       string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Allowed CORS origin" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Internal panel settings
	PanelWidth            int  `help:"Internal panel width" default:"1080" toml:"panel.width" env:"PANEL_WIDTH"`
	PanelHeight           int  `help:"Internal panel height" default:"1920" toml:"panel.height" env:"PANEL_HEIGHT"`
	PanelRefreshHz        int  `help:"Internal panel refresh rate" default:"60" toml:"panel.refresh_hz" env:"PANEL_REFRESH_HZ"`
	PanelPixelClockKHz    int  `help:"Internal panel pixel clock in kHz, 0 derives it from the mode" default:"0" toml:"panel.pixel_clock_khz" env:"PANEL_PIXEL_CLOCK_KHZ"`
	PanelMaxWindows       int  `help:"Hardware windows of the internal pipeline" default:"7" toml:"panel.max_windows" env:"PANEL_MAX_WINDOWS"`
	PanelUpdateXAlign     int  `help:"Partial update column alignment" default:"0" toml:"panel.update_x_align" env:"PANEL_UPDATE_X_ALIGN"`
	PanelUpdateYAlign     int  `help:"Partial update row alignment" default:"0" toml:"panel.update_y_align" env:"PANEL_UPDATE_Y_ALIGN"`
	PanelPartialUpdate    bool `help:"Enable partial updates on the internal panel" default:"true" toml:"panel.partial_update" env:"PANEL_PARTIAL_UPDATE"`
	PanelProtectedContent bool `help:"Accept protected buffers on the internal panel" default:"false" toml:"panel.protected_content" env:"PANEL_PROTECTED_CONTENT"`

	// External panel settings
	ExternalEnabled    bool `help:"Drive an external display pipeline" default:"false" toml:"external.enabled" env:"EXTERNAL_ENABLED"`
	ExternalWidth      int  `help:"External panel width" default:"1920" toml:"external.width" env:"EXTERNAL_WIDTH"`
	ExternalHeight     int  `help:"External panel height" default:"1080" toml:"external.height" env:"EXTERNAL_HEIGHT"`
	ExternalRefreshHz  int  `help:"External panel refresh rate" default:"60" toml:"external.refresh_hz" env:"EXTERNAL_REFRESH_HZ"`
	ExternalMaxWindows int  `help:"Hardware windows of the external pipeline" default:"4" toml:"external.max_windows" env:"EXTERNAL_MAX_WINDOWS"`

	// Pipeline settings
	PipelineVsyncTimeoutMs int `help:"Vsync wait timeout in milliseconds" default:"300" toml:"pipeline.vsync_timeout_ms" env:"PIPELINE_VSYNC_TIMEOUT_MS"`
	PipelineAckTimeoutMs   int `help:"Hardware ack timeout in milliseconds" default:"100" toml:"pipeline.ack_timeout_ms" env:"PIPELINE_ACK_TIMEOUT_MS"`
	PipelineBuffers        int `help:"Simulated scanout buffers registered per pipeline" default:"8" toml:"pipeline.buffers" env:"PIPELINE_BUFFERS"`

	// Compositing unit settings
	UnitsCount          int `help:"Compositing units shared by all pipelines" default:"2" toml:"units.count" env:"UNITS_COUNT"`
	UnitsDrainTimeoutMs int `help:"How long to wait for a unit to go idle before taking it over" default:"50" toml:"units.drain_timeout_ms" env:"UNITS_DRAIN_TIMEOUT_MS"`

	// Bandwidth settings
	BandwidthTuningFile string `help:"Bandwidth tuning file, reloaded on change" default:"" toml:"bandwidth.tuning_file" env:"BANDWIDTH_TUNING_FILE"`

	// QoS settings
	QoSBackend string `help:"QoS backend (auto, sysfs, noop)" default:"auto" toml:"qos.backend" env:"QOS_BACKEND"`

	// Transport settings
	TransportBackend string `help:"Panel command transport (noop, spi)" default:"noop" toml:"transport.backend" env:"TRANSPORT_BACKEND"`
	TransportSPIPort string `help:"SPI port of the panel command bus" default:"" toml:"transport.spi_port" env:"TRANSPORT_SPI_PORT"`
	TransportDCPin   string `help:"Data/Command GPIO pin" default:"GPIO25" toml:"transport.dc_pin" env:"TRANSPORT_DC_PIN"`
	TransportHz      int    `help:"SPI clock in Hz" default:"10000000" toml:"transport.hz" env:"TRANSPORT_HZ"`

	// LED settings
	LEDBackend string `help:"Status LED backend (auto, sysfs, gpio, none)" default:"none" toml:"led.backend" env:"LED_BACKEND"`
	LEDSysfs   string `help:"Sysfs LED name for the sysfs backend" default:"" toml:"led.sysfs" env:"LED_SYSFS"`
	LEDGPIO    string `help:"GPIO pin for the gpio backend" default:"" toml:"led.gpio" env:"LED_GPIO"`

	// Metrics settings
	MetricsPrometheusEnabled bool   `help:"Enable Prometheus" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsSSEEnabled        bool   `help:"Enable SSE" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`
	MetricsDevfreqNodes      string `help:"Comma separated devfreq nodes to sample" default:"" toml:"metrics.devfreq_nodes" env:"METRICS_DEVFREQ_NODES"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPipeline string `help:"Pipeline logging level" default:"info" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingUnits    string `help:"Unit arbiter logging level" default:"info" toml:"logging.units" env:"LOGGING_UNITS"`
	LoggingQoS      string `help:"QoS logging level" default:"info" toml:"logging.qos" env:"LOGGING_QOS"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP     string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

// panelSpec is one pipeline to create at startup.
type panelSpec struct {
	id         string
	panel      display.Panel
	maxWindows int
	partial    bool
	protected  bool
	transport  transport.ScanRegionSetter
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system. Extra [logging] keys in the file set
		// levels for modules without a dedicated option.
		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		loggingConfig.Modules["pipeline"] = opts.LoggingPipeline
		loggingConfig.Modules["units"] = opts.LoggingUnits
		loggingConfig.Modules["qos"] = opts.LoggingQoS
		loggingConfig.Modules["api"] = opts.LoggingAPI
		loggingConfig.Modules["http"] = opts.LoggingHTTP
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()

		// Stream log records to SSE subscribers
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(api.LogEntryToEvent(entry))
		})

		// Shared compositing units
		unitIDs := make([]units.ID, opts.UnitsCount)
		for i := range unitIDs {
			unitIDs[i] = units.ID(i)
		}
		arbiter := units.NewArbiter(sim.NewUnitPool(), units.Options{
			IDs:          unitIDs,
			DrainTimeout: time.Duration(opts.UnitsDrainTimeoutMs) * time.Millisecond,
			OnChange: func(id units.ID, oldOwner, newOwner string) {
				eventBus.Publish(events.UnitOwnershipEvent{
					Unit:      int(id),
					From:      oldOwner,
					To:        newOwner,
					Timestamp: time.Now().Format(time.RFC3339),
				})
			},
			Logger: logging.GetLogger("units"),
		})
		manager := pipeline.NewManager(arbiter, logging.GetLogger("pipeline"))

		panelTransport := newTransport(opts, logger)
		specs := []panelSpec{{
			id: "internal",
			panel: display.Panel{
				Width:        opts.PanelWidth,
				Height:       opts.PanelHeight,
				RefreshHz:    opts.PanelRefreshHz,
				PixelClockHz: uint64(opts.PanelPixelClockKHz) * 1000,
				UpdateXAlign: opts.PanelUpdateXAlign,
				UpdateYAlign: opts.PanelUpdateYAlign,
			},
			maxWindows: opts.PanelMaxWindows,
			partial:    opts.PanelPartialUpdate,
			protected:  opts.PanelProtectedContent,
			transport:  panelTransport,
		}}
		if opts.ExternalEnabled {
			specs = append(specs, panelSpec{
				id: "external",
				panel: display.Panel{
					Width:     opts.ExternalWidth,
					Height:    opts.ExternalHeight,
					RefreshHz: opts.ExternalRefreshHz,
				},
				maxWindows: opts.ExternalMaxWindows,
				transport:  transport.NewNoop(),
			})
		}

		qosRequester := qos.New(opts.QoSBackend, logging.GetLogger("qos"))
		controllers := make([]*sim.Controller, 0, len(specs))
		for _, spec := range specs {
			ctrl, err := addPipeline(manager, spec, opts, qosRequester, eventBus)
			if err != nil {
				logger.Error("Failed to create pipeline", "pipeline", spec.id, "error", err)
				os.Exit(1)
			}
			controllers = append(controllers, ctrl)
		}

		// Bandwidth tuning hot reload
		var tuningWatcher *config.Watcher[bandwidth.Tuning]
		if opts.BandwidthTuningFile != "" {
			tuningWatcher = config.NewConfigWatcher(opts.BandwidthTuningFile, bandwidth.LoadTuning, logging.GetLogger("config"))
			tuningWatcher.OnReload(func(t bandwidth.Tuning) {
				for _, p := range manager.List() {
					p.Estimator().SetTuning(t)
				}
				logger.Info("Bandwidth tuning applied", "file", opts.BandwidthTuningFile)
			})
		}

		// Metrics
		eventCollector := collectors.NewEventCollector(eventBus, logging.GetLogger("metrics"))
		var devfreqCollector *collectors.DevfreqCollector
		if nodes := splitList(opts.MetricsDevfreqNodes); len(nodes) > 0 {
			devfreqCollector = collectors.NewDevfreqCollector(nodes...)
		}
		var sseExporter *exporters.SSEExporter
		if opts.MetricsSSEEnabled {
			sseExporter = exporters.NewSSEExporter(eventBus)
		}

		// Status LED follows pipeline health
		var ledManager *led.Manager
		if opts.LEDBackend != led.BackendNone {
			ledController := led.New(led.Options{
				Backend: opts.LEDBackend,
				Sysfs:   opts.LEDSysfs,
				GPIO:    opts.LEDGPIO,
			}, logging.GetLogger("led"))
			ledManager = led.NewManager(ledController, eventBus, logging.GetLogger("led"))
		}

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			CORSOrigin:   opts.CORSOrigin,
			Pipelines:    manager,
			EventBus:     eventBus,
			LEDManager:   ledManager,
		}
		if opts.MetricsPrometheusEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))
		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			// Collectors subscribe before the first frame is committed
			eventCollector.Start()
			if devfreqCollector != nil {
				if startErr := devfreqCollector.Start(ctx); startErr != nil {
					logger.Warn("Failed to start devfreq collector", "error", startErr)
				}
			}
			if sseExporter != nil {
				sseExporter.Start(ctx)
			}
			if ledManager != nil {
				ledManager.Start()
			}

			for _, ctrl := range controllers {
				ctrl.Start(ctx)
			}
			if startErr := manager.StartAll(); startErr != nil {
				logger.Error("Failed to start pipelines", "error", startErr)
				os.Exit(1)
			}

			if tuningWatcher != nil {
				if reloadErr := tuningWatcher.Reload(); reloadErr != nil {
					logger.Warn("Failed to load bandwidth tuning", "file", opts.BandwidthTuningFile, "error", reloadErr)
				}
				if startErr := tuningWatcher.Start(); startErr != nil {
					logger.Warn("Failed to watch bandwidth tuning", "error", startErr)
				}
			}

			notifier.Ready(healthStatus(manager))
			notifier.StartWatchdog(func() (bool, string) {
				return true, healthStatus(manager)
			})

			logger.Info("Starting HTTP server", "port", opts.Port, "pipelines", len(specs))
			if startErr := server.Start(opts.Port); startErr != nil {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Drain in-flight frames before the controllers stop latching
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if stopErr := manager.StopAll(stopCtx); stopErr != nil {
				logger.Error("Error stopping pipelines", "error", stopErr)
			}
			stopCancel()

			for _, ctrl := range controllers {
				ctrl.Stop()
			}
			if tuningWatcher != nil {
				if stopErr := tuningWatcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping tuning watcher", "error", stopErr)
				}
			}
			if ledManager != nil {
				ledManager.Stop()
			}
			if sseExporter != nil {
				sseExporter.Stop()
			}
			if devfreqCollector != nil {
				if stopErr := devfreqCollector.Stop(); stopErr != nil {
					logger.Warn("Error stopping devfreq collector", "error", stopErr)
				}
			}
			eventCollector.Stop()
			cancel()

			if closeErr := panelTransport.Close(); closeErr != nil {
				logger.Warn("Error closing panel transport", "error", closeErr)
			}
		})
	})

	// Offline scenario tooling
	cli.Root().AddCommand(cmd.CreateValidateCmd())
	cli.Root().AddCommand(cmd.CreateSimulateCmd())

	// Run the CLI
	cli.Run()
}

// addPipeline creates a pipeline on its own simulated controller with a
// pool of registered scanout buffers named fb0..fbN.
func addPipeline(manager *pipeline.Manager, spec panelSpec, opts *Options, requester qos.Requester, bus *events.Bus) (*sim.Controller, error) {
	pipelineLogger := logging.GetLogger("pipeline").With("pipeline", spec.id)

	alloc := buffer.NewSimAllocator()
	size := uint64(spec.panel.Width) * uint64(spec.panel.Height) * 4
	for i := range opts.PipelineBuffers {
		alloc.Register(buffer.Handle(fmt.Sprintf("%s/fb%d", spec.id, i)), size)
	}

	period := time.Second / 60
	if spec.panel.RefreshHz > 0 {
		period = time.Second / time.Duration(spec.panel.RefreshHz)
	}
	ctrl := sim.NewController(sim.Options{
		Name:    spec.id,
		Windows: spec.maxWindows,
		Period:  period,
		Logger:  pipelineLogger,
	})

	p, err := manager.Add(pipeline.Options{
		ID:               spec.id,
		Panel:            spec.panel,
		MaxWindows:       spec.maxWindows,
		PartialUpdate:    spec.partial,
		ProtectedContent: spec.protected,
		Hardware:         ctrl,
		Importer:         buffer.NewImporter(alloc),
		Units:            manager.Arbiter(),
		QoS:              requester,
		Transport:        spec.transport,
		Events:           bus,
		VsyncTimeout:     time.Duration(opts.PipelineVsyncTimeoutMs) * time.Millisecond,
		AckTimeout:       time.Duration(opts.PipelineAckTimeoutMs) * time.Millisecond,
		Logger:           pipelineLogger,
	})
	if err != nil {
		return nil, err
	}
	ctrl.Attach(p)
	return ctrl, nil
}

// newTransport opens the internal panel's command bus, falling back to a
// no-op transport when the SPI link is unavailable.
func newTransport(opts *Options, logger *slog.Logger) transport.ScanRegionSetter {
	if opts.TransportBackend != "spi" {
		return transport.NewNoop()
	}
	dcs, err := transport.OpenSPI(transport.SPIOptions{
		Port: opts.TransportSPIPort,
		DC:   opts.TransportDCPin,
		Hz:   int64(opts.TransportHz),
	})
	if err != nil {
		logger.Warn("Panel command bus unavailable, partial updates will not move the scan region", "error", err)
		return transport.NewNoop()
	}
	return dcs
}

// healthStatus summarizes pipeline states for systemctl status.
func healthStatus(manager *pipeline.Manager) string {
	var running, degraded []string
	for _, p := range manager.List() {
		switch p.Status().State {
		case pipeline.StateRunning:
			running = append(running, p.ID())
		case pipeline.StateDegraded:
			degraded = append(degraded, p.ID())
		}
	}
	if len(degraded) > 0 {
		return fmt.Sprintf("%d running, degraded: %s", len(running), strings.Join(degraded, ", "))
	}
	return fmt.Sprintf("%d running", len(running))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
