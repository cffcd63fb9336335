// Package validate provides the validate command.
package validate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/propgate/propgate/cmd/application"
	"github.com/propgate/propgate/internal/cmd/output"
	"github.com/propgate/propgate/pkg/crossval"
)

// NewCommand creates the validate command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "validate",
		GroupID: "pipeline",
		Short:   "Cross-validate candidate records against statistics and peers",
		Long: `Validate loads the candidate item records and research artifacts and
checks every numeric property against the statistics of its category and
against the values of similar items.

Unreadable records are reported and skipped.`,
		Example: `  propgate validate                      # Validate every category
  propgate validate --category metals    # Validate one category
  propgate validate -o json              # Emit findings as JSON`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories, _ := cmd.Flags().GetStringSlice("category")

			pg, err := app.Client()
			if err != nil {
				return err
			}
			v, err := pg.Validate(cmd.Context(), categories...)
			if err != nil {
				return err
			}

			format := output.DetectFormat(app.OutputFormat())
			if err := output.Write(cmd.OutOrStdout(), format, v, func(wide bool) output.Data {
				return output.FindingsTable(v.Findings, wide)
			}); err != nil {
				return err
			}
			if format.IsTable() {
				fmt.Fprint(cmd.OutOrStdout(), output.Summary(
					"items", fmt.Sprint(v.Items),
					"high", fmt.Sprint(v.Counts[crossval.SeverityHigh]),
					"medium", fmt.Sprint(v.Counts[crossval.SeverityMedium]),
					"low", fmt.Sprint(v.Counts[crossval.SeverityLow]),
					"skipped", fmt.Sprint(len(v.LoadErrors)),
				))
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("category", nil, "limit validation to these categories")

	return cmd
}
