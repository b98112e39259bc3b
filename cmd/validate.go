package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smazurov/decon/internal/logging"
	"github.com/smazurov/decon/internal/scenario"
	"github.com/spf13/cobra"
)

// errScenarioFailed is returned when a frame did not end as expected.
var errScenarioFailed = errors.New("scenario failed")

// CreateValidateCmd creates the validate command.
func CreateValidateCmd() *cobra.Command {
	var asJSON bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "validate [scenario]",
		Short: "Validate a scenario offline",
		Long: `Runs every frame of a scenario through window validation, format resolution, ` +
			`buffer import, partial-update planning and bandwidth estimation without driving hardware. ` +
			`Scenarios are .toml, .yaml or .yml files.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Initialize(logging.Config{Level: logLevel, Format: "text"})
			logger := logging.GetLogger("validate")

			s, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			logger.Info("Validating scenario", "name", s.Name, "frames", len(s.Frames))

			reports := scenario.Check(cmd.Context(), s, logger)
			return report(cmd.OutOrStdout(), reports, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the reports as JSON")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	return cmd
}

// report prints one line per frame and fails when any frame missed its expectation.
func report(out io.Writer, reports []scenario.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FRAME\tTOKEN\tRESULT\tEXPECT\tDETAIL")
		for _, r := range reports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Frame, tokenString(r), outcome(r), dash(r.Expect), detail(r))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if !scenario.Passed(reports) {
		return errScenarioFailed
	}
	return nil
}

func outcome(r scenario.Report) string {
	mark := "ok"
	if !r.Pass {
		mark = "FAIL"
	}
	if r.Code != "" {
		return mark + " " + r.Code
	}
	return mark
}

func tokenString(r scenario.Report) string {
	if r.Token == 0 {
		return "-"
	}
	return fmt.Sprint(r.Token)
}

func detail(r scenario.Report) string {
	switch {
	case r.Plan != nil && r.Estimate != nil:
		region := "full"
		if !r.Plan.Full {
			region = r.Plan.Rect.String()
		}
		return fmt.Sprintf("region=%s depth=%d level=%s", region, r.Estimate.EffectiveDepth, r.Estimate.Level)
	case r.Error != "":
		return r.Error
	}
	return ""
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
