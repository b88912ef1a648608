package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/invsync/internal/presentation/cli/output"
)

// errIncomplete is returned when a sync finished but some records or kinds
// failed. The report has already been printed.
var errIncomplete = fmt.Errorf("sync completed with failures")

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	var kinds []string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push local changes to the remote",
		Long: `Push every record that is ahead of the remote.

A checkpoint of the local state is written before anything is sent. If the
checkpoint cannot be written the run stops without contacting the remote.
Records modified on both sides are reported as conflicts and are not
pushed. Records that are only newer remotely are left alone.

Only one sync or restore runs at a time.`,
		Example: `  # Sync every configured kind
  invsync sync

  # Sync laptops only
  invsync sync --kinds laptop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			requested, err := parseKinds(kinds, app.Config)
			if err != nil {
				return err
			}

			f := app.Formatter
			var spinner *output.Spinner
			if f.Format() == output.FormatText && output.ColorSupported() {
				spinner = output.NewSpinner("syncing...", os.Stderr)
				spinner.Start()
			}

			report, err := app.Container.Engine().Sync(cmd.Context(), requested)
			if spinner != nil {
				spinner.Stop()
			}
			if err != nil {
				return err
			}

			if err := output.RenderSyncReport(f, report); err != nil {
				return err
			}
			if s := report.Summarize(); s.Failed > 0 || s.KindErrors > 0 {
				return errIncomplete
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&kinds, "kinds", "k", nil, "kinds to sync (default: configured sync kinds)")

	return cmd
}
