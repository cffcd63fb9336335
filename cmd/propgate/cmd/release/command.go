// Package release provides the release command.
package release

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/propgate/propgate"
	"github.com/propgate/propgate/cmd/application"
	"github.com/propgate/propgate/internal/cmd/output"
	"github.com/propgate/propgate/pkg/constants"
	pgrelease "github.com/propgate/propgate/pkg/release"
)

// NewCommand creates the release command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "release",
		GroupID: "pipeline",
		Short:   "Deploy ready records to production",
		Long: `Release assesses the candidate records and deploys the ready ones in
batches. Production is backed up first; every record is staged, passed
through the validation gates and applied with an atomic rename, and the
applied files are checksummed afterwards.

A dry run stages and gates the records without touching production.`,
		Example: `  propgate release --dry-run
  propgate release --category metals --batch-size 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := propgate.ReleaseOptions{}
			opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
			opts.Categories, _ = cmd.Flags().GetStringSlice("category")
			opts.BatchSize, _ = cmd.Flags().GetInt("batch-size")

			pg, err := app.Client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), constants.ReleaseTimeout)
			defer cancel()
			out, runErr := pg.Release(ctx, opts)
			if out == nil {
				return runErr
			}

			format := output.DetectFormat(app.OutputFormat())
			if err := output.Write(cmd.OutOrStdout(), format, out, func(wide bool) output.Data {
				return output.ReleaseTable(out.Result, wide)
			}); err != nil {
				return err
			}
			res := out.Result
			if format.IsTable() {
				fmt.Fprint(cmd.OutOrStdout(), output.Summary(
					"status", string(res.Status),
					"applied", fmt.Sprint(res.Count(pgrelease.ItemApplied)),
					"gate failed", fmt.Sprint(res.Count(pgrelease.ItemGateFailed)),
					"failed", fmt.Sprint(res.Count(pgrelease.ItemFailed)),
					"backup", res.BackupID,
					"report", out.ReportPath,
				))
			}
			if runErr != nil {
				return runErr
			}
			if res.Status == pgrelease.StatusFailed {
				return fmt.Errorf("release %s failed", res.RunID)
			}
			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "stage and gate records without applying them")
	cmd.Flags().StringSlice("category", nil, "limit the release to these categories")
	cmd.Flags().Int("batch-size", 0, "records per batch (default from configuration)")

	return cmd
}
