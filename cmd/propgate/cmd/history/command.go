// Package history provides the history command.
package history

import (
	"github.com/spf13/cobra"

	"github.com/propgate/propgate/cmd/application"
	"github.com/propgate/propgate/internal/cmd/output"
	"github.com/propgate/propgate/internal/history"
	"github.com/propgate/propgate/pkg/errors"
)

// NewCommand creates the history command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		GroupID: "operations",
		Short:   "Show past assessments, releases, rollbacks and monitor cycles",
		Example: `  propgate history
  propgate history --kind release --limit 5
  propgate history --item metals/copper`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			limit, _ := cmd.Flags().GetInt("limit")
			item, _ := cmd.Flags().GetString("item")

			pg, err := app.Client()
			if err != nil {
				return err
			}
			cfg := pg.Config()
			if !cfg.History.Enabled {
				return errors.Configuration("history.enabled", "history is disabled", nil)
			}
			ledger, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer ledger.Close()

			format := output.DetectFormat(app.OutputFormat())
			if item != "" {
				rows, err := ledger.ItemHistory(cmd.Context(), item)
				if err != nil {
					return err
				}
				return output.Write(cmd.OutOrStdout(), format, rows, func(bool) output.Data {
					return output.ItemHistoryTable(rows)
				})
			}

			entries, err := ledger.Recent(cmd.Context(), kind, limit)
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), format, entries, func(bool) output.Data {
				return output.HistoryTable(entries)
			})
		},
	}

	cmd.Flags().String("kind", "", "entry kind: assessment, release, rollback, cycle (default all)")
	cmd.Flags().Int("limit", 20, "entries per kind")
	cmd.Flags().String("item", "", "show the assessment history of one item (category/name)")

	return cmd
}
