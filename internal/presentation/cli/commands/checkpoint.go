package commands

import (
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/presentation/cli/output"
)

// NewCheckpointCmd creates the checkpoint command group.
func NewCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoint",
		Aliases: []string{"cp"},
		Short:   "Manage checkpoints of the local state",
		Long: `A checkpoint holds the local collection files and the sync links as they
were at one moment. Every sync writes one before pushing.`,
	}

	cmd.AddCommand(newCheckpointListCmd())
	cmd.AddCommand(newCheckpointCreateCmd())
	cmd.AddCommand(newCheckpointRestoreCmd())
	cmd.AddCommand(newCheckpointDeleteCmd())
	cmd.AddCommand(newCheckpointCleanupCmd())

	return cmd
}

func newCheckpointListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List checkpoints, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			list, err := app.Container.CheckpointManager().List(cmd.Context())
			if err != nil {
				return err
			}
			return output.RenderCheckpoints(app.Formatter, list)
		},
	}
}

func newCheckpointCreateCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write a checkpoint now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			cp, err := app.Container.CheckpointManager().Create(cmd.Context(), reason)
			if err != nil {
				return err
			}
			if app.Formatter.Format() == output.FormatJSON {
				return app.Formatter.JSON(cp.Summarize())
			}
			return app.Formatter.Success("checkpoint %s created", cp.ID)
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "manual", "why the checkpoint was taken")

	return cmd
}

func newCheckpointRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore the local state from a checkpoint",
		Long: `Overwrite the local collection files and the sync links with the content
of a checkpoint. Collections that did not exist when the checkpoint was
taken are removed. Fails if a sync is running.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			if err := app.Container.CheckpointManager().Restore(cmd.Context(), args[0]); err != nil {
				return err
			}
			if app.Formatter.Format() == output.FormatJSON {
				return app.Formatter.JSON(map[string]string{"restored": args[0]})
			}
			return app.Formatter.Success("restored checkpoint %s", args[0])
		},
	}
}

func newCheckpointDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a checkpoint",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			if err := app.Container.CheckpointManager().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if app.Formatter.Format() == output.FormatJSON {
				return app.Formatter.JSON(map[string]string{"deleted": args[0]})
			}
			return app.Formatter.Success("deleted checkpoint %s", args[0])
		},
	}
}

func newCheckpointCleanupCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete all but the newest checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				keep = app.Config.Sync.CheckpointRetention
			}
			if keep < 1 {
				return errors.NewError(errors.CodeValidation, "--keep must be at least 1", nil)
			}

			removed, err := app.Container.CheckpointManager().Cleanup(cmd.Context(), keep)
			if err != nil {
				return err
			}
			if app.Formatter.Format() == output.FormatJSON {
				if removed == nil {
					removed = []string{}
				}
				return app.Formatter.JSON(map[string]any{"removed": removed, "kept": keep})
			}
			return app.Formatter.Success("removed %d checkpoint(s), kept the newest %d", len(removed), keep)
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "number of checkpoints to keep (default: sync.checkpoint_retention)")

	return cmd
}
