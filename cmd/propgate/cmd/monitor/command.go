// Package monitor provides the monitor command.
package monitor

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/propgate/propgate/cmd/application"
	"github.com/propgate/propgate/internal/cmd/output"
	pgmonitor "github.com/propgate/propgate/pkg/monitor"
)

// NewCommand creates the monitor command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "monitor",
		GroupID: "operations",
		Short:   "Watch production for regressions",
		Long: `Monitor compares production metrics against the stored baseline on a
schedule and logs an alert for every regression it finds. The first cycle
adopts the current metrics as the baseline when none exists.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newStartCommand(app))
	cmd.AddCommand(newRunCommand(app))
	cmd.AddCommand(newAlertsCommand(app))

	return cmd
}

func newStartCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run scheduled monitoring until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pg, err := app.Client()
			if err != nil {
				return err
			}
			pg.OnAlert(func(a pgmonitor.Alert) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s: %s\n",
					a.Timestamp.Format(time.RFC3339), a.Severity, a.Type, a.Message)
			})
			if err := pg.MonitoringOn(cmd.Context()); err != nil {
				return err
			}
			<-cmd.Context().Done()
			return pg.MonitoringOff()
		},
	}
}

func newRunCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "run [kind]",
		Short: "Run one monitoring cycle now",
		Long: `Run executes one monitoring cycle immediately. The kind selects the
checks: full (default), quick, quality or trend.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := pgmonitor.KindFull
			if len(args) == 1 {
				k, err := pgmonitor.ParseKind(args[0])
				if err != nil {
					return err
				}
				kind = k
			}

			pg, err := app.Client()
			if err != nil {
				return err
			}
			res, err := pg.RunCycle(cmd.Context(), kind)
			if err != nil {
				return err
			}

			format := output.DetectFormat(app.OutputFormat())
			if err := output.Write(cmd.OutOrStdout(), format, res, func(bool) output.Data {
				return output.AlertsTable(res.Alerts)
			}); err != nil {
				return err
			}
			if format.IsTable() {
				status := fmt.Sprintf("%d alerts", len(res.Alerts))
				if res.BaselineAdopted {
					status = "baseline adopted"
				}
				fmt.Fprint(cmd.OutOrStdout(), output.Summary(
					"cycle", fmt.Sprintf("%d (%s)", res.Cycle, res.Kind),
					"result", status,
					"snapshot", res.Snapshot,
				))
			}
			return nil
		},
	}
}

func newAlertsCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show the alerts logged on one day",
		Example: `  propgate monitor alerts
  propgate monitor alerts --day 2026-10-17`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day := time.Now().UTC()
			if s, _ := cmd.Flags().GetString("day"); s != "" {
				d, err := time.Parse(time.DateOnly, s)
				if err != nil {
					return fmt.Errorf("invalid --day %q: %w", s, err)
				}
				day = d
			}

			pg, err := app.Client()
			if err != nil {
				return err
			}
			alerts, err := pg.Alerts(day)
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), output.DetectFormat(app.OutputFormat()), alerts, func(bool) output.Data {
				return output.AlertsTable(alerts)
			})
		},
	}

	cmd.Flags().String("day", "", "UTC day as YYYY-MM-DD (default today)")

	return cmd
}

func kindNames() []string {
	names := make([]string, 0, len(pgmonitor.Kinds))
	for _, k := range pgmonitor.Kinds {
		names = append(names, string(k))
	}
	return names
}
