// Package rollback provides the rollback command.
package rollback

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/propgate/propgate/cmd/application"
	"github.com/propgate/propgate/internal/cmd/output"
	"github.com/propgate/propgate/pkg/release"
)

// NewCommand creates the rollback command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rollback [backup-id]",
		GroupID: "pipeline",
		Short:   "Restore production from a backup",
		Long: `Rollback restores the production store from a backup taken before a
release. Without a backup id the latest backup is used. Rolling back to the
same backup twice leaves production unchanged.`,
		Example: `  propgate rollback --list
  propgate rollback
  propgate rollback 20261017-120000 --prune`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := app.Client()
			if err != nil {
				return err
			}
			format := output.DetectFormat(app.OutputFormat())

			if list, _ := cmd.Flags().GetBool("list"); list {
				backups, err := pg.Backups()
				if err != nil {
					return err
				}
				return output.Write(cmd.OutOrStdout(), format, backups, func(bool) output.Data {
					return output.BackupsTable(backups)
				})
			}

			opts := release.RollbackOptions{BackupID: release.LatestBackup}
			if len(args) == 1 {
				opts.BackupID = args[0]
			}
			opts.VerifyBefore, _ = cmd.Flags().GetBool("verify-before")
			opts.VerifyAfter, _ = cmd.Flags().GetBool("verify-after")
			opts.Prune, _ = cmd.Flags().GetBool("prune")

			res, err := pg.Rollback(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := output.Write(cmd.OutOrStdout(), format, res, func(bool) output.Data {
				return output.RollbackTable(res)
			}); err != nil {
				return err
			}
			if format.IsTable() {
				fmt.Fprintf(cmd.OutOrStdout(), "restored backup %s\n", res.BackupID)
			}
			return nil
		},
	}

	cmd.Flags().Bool("list", false, "list available backups")
	cmd.Flags().Bool("verify-before", true, "verify backup checksums before restoring")
	cmd.Flags().Bool("verify-after", true, "verify restored checksums")
	cmd.Flags().Bool("prune", false, "remove production files created after the backup")

	return cmd
}
