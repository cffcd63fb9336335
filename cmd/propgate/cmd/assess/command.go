// Package assess provides the assess command.
package assess

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/propgate/propgate/cmd/application"
	"github.com/propgate/propgate/internal/cmd/output"
)

// NewCommand creates the assess command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "assess",
		GroupID: "pipeline",
		Short:   "Score candidate records and decide deployment readiness",
		Long: `Assess validates the candidate records, scores their quality on six
dimensions, grades them and applies the deployment gate. A QA report is
written to the reports directory.`,
		Example: `  propgate assess
  propgate assess --category metals -o wide`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories, _ := cmd.Flags().GetStringSlice("category")

			pg, err := app.Client()
			if err != nil {
				return err
			}
			a, err := pg.Assess(cmd.Context(), categories...)
			if err != nil {
				return err
			}

			format := output.DetectFormat(app.OutputFormat())
			if err := output.Write(cmd.OutOrStdout(), format, a, func(wide bool) output.Data {
				return output.CandidatesTable(a.Candidates, wide)
			}); err != nil {
				return err
			}
			if format.IsTable() {
				fmt.Fprint(cmd.OutOrStdout(), output.Summary(
					"items", fmt.Sprint(len(a.Candidates)),
					"ready", fmt.Sprint(len(a.Ready())),
					"mean score", fmt.Sprintf("%.3f", a.Summary.MeanScore),
					"report", a.ReportPath,
				))
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("category", nil, "limit assessment to these categories")

	return cmd
}
