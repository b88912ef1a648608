package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/invsync/internal/application/engine"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/watch"
	"github.com/jbctechsolutions/invsync/internal/presentation/cli/output"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var kinds []string
	var watchFiles bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show how local records compare with the remote",
		Long: `Classify every record of the requested kinds against the remote:

  ahead      exists or changed only locally, will be pushed
  behind     exists or changed only remotely, left alone
  modified   changed on both sides, reported but never pushed
  unchanged  identical on both sides

Status never writes anything. A kind whose remote cannot be reached is
reported on its own and does not hide the others.`,
		Example: `  # Status of every configured kind
  invsync status

  # Only laptops and people, as JSON
  invsync status --kinds laptops,people -o json

  # Re-check whenever a collection file changes
  invsync status --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			requested, err := parseKinds(kinds, app.Config)
			if err != nil {
				return err
			}
			if watchFiles {
				return runStatusWatch(cmd.Context(), app, requested)
			}
			return runStatus(cmd.Context(), app.Container.Engine(), app.Formatter, requested)
		},
	}

	cmd.Flags().StringSliceVarP(&kinds, "kinds", "k", nil, "kinds to check (default: configured sync kinds)")
	cmd.Flags().BoolVarP(&watchFiles, "watch", "w", false, "re-check when a collection file changes")

	return cmd
}

func runStatus(ctx context.Context, svc *engine.Service, f *output.Formatter, kinds []entity.Kind) error {
	report, err := svc.Status(ctx, kinds)
	if err != nil {
		return err
	}
	return output.RenderStatus(f, report)
}

func runStatusWatch(ctx context.Context, app *AppContext, kinds []entity.Kind) error {
	dir := app.Container.DataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	w, err := watch.New(dir, kinds, watch.DefaultConfig())
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Start(ctx); err != nil {
		return err
	}

	f := app.Formatter
	svc := app.Container.Engine()
	if err := runStatus(ctx, svc, f, kinds); err != nil {
		return err
	}
	if f.Format() == output.FormatText {
		f.Info("watching %s, press Ctrl+C to stop", dir)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-w.Changes():
			if !ok {
				return nil
			}
			if f.Format() == output.FormatText {
				f.Println("")
				f.Info("%s %s", change.Path, change.Op)
			}
			if err := runStatus(ctx, svc, f, kinds); err != nil {
				f.Error("%v", err)
			}
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			app.Container.Logger().Warn("watcher error", "error", err)
		}
	}
}
