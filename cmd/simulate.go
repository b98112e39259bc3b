package cmd

import (
	"time"

	"github.com/smazurov/decon/internal/events"
	"github.com/smazurov/decon/internal/logging"
	"github.com/smazurov/decon/internal/scenario"
	"github.com/spf13/cobra"
)

// CreateSimulateCmd creates the simulate command.
func CreateSimulateCmd() *cobra.Command {
	var (
		asJSON       bool
		logLevel     string
		period       time.Duration
		vsyncTimeout time.Duration
		ackTimeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate [scenario]",
		Short: "Run a scenario against the simulated display controller",
		Long: `Submits every frame of a scenario to a pipeline driving the simulated display controller, ` +
			`injecting the scripted faults, and reports how each frame's release token ended.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Initialize(logging.Config{Level: logLevel, Format: "text"})
			logger := logging.GetLogger("simulate")

			s, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			bus := events.New()
			unsubscribe := bus.Subscribe(func(e events.PipelineDegradedEvent) {
				if e.Degraded {
					logger.Warn("Pipeline degraded", "code", e.Code, "message", e.Message)
				}
			})
			defer unsubscribe()

			logger.Info("Simulating scenario", "name", s.Name, "frames", len(s.Frames))
			reports, runErr := scenario.Run(cmd.Context(), s, scenario.RunOptions{
				Period:       period,
				VsyncTimeout: vsyncTimeout,
				AckTimeout:   ackTimeout,
				Events:       bus,
				Logger:       logger,
			})
			if err := report(cmd.OutOrStdout(), reports, asJSON); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the reports as JSON")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&period, "period", 0, "Simulated vsync period, 0 uses the panel refresh rate")
	cmd.Flags().DurationVar(&vsyncTimeout, "vsync-timeout", 0, "Vsync timeout, 0 uses the pipeline default")
	cmd.Flags().DurationVar(&ackTimeout, "ack-timeout", 0, "Hardware ack timeout, 0 uses the pipeline default")
	return cmd
}
