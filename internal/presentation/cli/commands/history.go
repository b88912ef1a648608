package commands

import (
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/presentation/cli/output"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return errors.NewError(errors.CodeValidation, "--limit must be at least 1", nil)
			}
			app, err := mustApp()
			if err != nil {
				return err
			}
			runs, err := app.Container.Engine().History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return output.RenderHistory(app.Formatter, runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	return cmd
}
