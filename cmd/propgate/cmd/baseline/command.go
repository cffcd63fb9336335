// Package baseline provides the baseline command.
package baseline

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/propgate/propgate/cmd/application"
	"github.com/propgate/propgate/internal/cmd/output"
)

// NewCommand creates the baseline command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "baseline",
		GroupID: "operations",
		Short:   "Manage the monitoring baseline",
		Long: `The baseline is the production snapshot monitoring cycles compare
against. It only changes when set or reset here, or when a cycle finds none.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored baseline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pg, err := app.Client()
			if err != nil {
				return err
			}
			m, err := pg.Baseline()
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), output.DetectFormat(app.OutputFormat()), m, func(bool) output.Data {
				return output.MetricsTable(m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Replace the baseline with current production metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pg, err := app.Client()
			if err != nil {
				return err
			}
			m, err := pg.SetBaseline(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "baseline set: %d files, mean quality %.3f\n", m.FileCount, m.MeanQuality)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Remove the baseline; the next cycle adopts a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pg, err := app.Client()
			if err != nil {
				return err
			}
			if err := pg.ResetBaseline(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "baseline reset")
			return nil
		},
	})

	return cmd
}
